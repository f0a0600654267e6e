package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

const metafileName = "meta.json"

// Build runs esbuild with the configured settings, names the outputs,
// renders the page and, unless disabled, writes everything to disk
func (p *Pipeline) Build() (*Result, error) {
	log.Info().Str("mode", p.config.ModeName).Int("entries", len(p.config.Entries)).Msg("Building assets")

	result := api.Build(p.buildOptions())
	return p.handle(result)
}

// Watch builds, then rebuilds whenever an input changes, until ctx is
// cancelled. onRebuild is called after every build, failed ones included.
func (p *Pipeline) Watch(ctx context.Context, onRebuild func(*Result, error)) error {
	opts := p.buildOptions()
	opts.Plugins = append(opts.Plugins, api.Plugin{
		Name: "webbundle-rebuild",
		Setup: func(pb api.PluginBuild) {
			pb.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				res, err := p.handle(*result)
				if onRebuild != nil {
					onRebuild(res, err)
				}
				return api.OnEndResult{}, nil
			})
		},
	})

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return fmt.Errorf("failed to create build context: %w", buildError(cerr.Errors))
	}
	defer bctx.Dispose()

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}

	log.Info().Msg("Watching for changes")

	<-ctx.Done()
	return nil
}

func (p *Pipeline) handle(result api.BuildResult) (*Result, error) {
	for _, msg := range result.Warnings {
		log.Warn().Str("warning", msg.Text).Msg("Build warning")
	}

	if len(result.Errors) > 0 {
		if !p.config.NoErrors {
			p.mu.Lock()
			p.result = nil
			p.mu.Unlock()
		}
		return nil, buildError(result.Errors)
	}

	// Parse and cache metadata
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	res, err := p.collect(result.OutputFiles, &metadata)
	if err != nil {
		return nil, err
	}
	res.Metafile = result.Metafile
	res.Warnings = len(result.Warnings)

	if p.tmpl != nil {
		page, err := p.renderHTML(res)
		if err != nil {
			return nil, err
		}
		res.HTML = page
	}

	if p.write {
		if err := p.writeResult(res); err != nil {
			return nil, err
		}
	}

	for _, asset := range res.Assets {
		log.Debug().Str("file", asset.Name).Str("url", asset.URL).Msg("Output ready")
	}

	p.mu.Lock()
	p.metadata = &metadata
	p.result = res
	p.mu.Unlock()

	return res, nil
}

// collect names every output file and orders the page's scripts and styles.
func (p *Pipeline) collect(files []api.OutputFile, metadata *BuildMetadata) (*Result, error) {
	cfg := p.config
	byMetaKey := make(map[string]string, len(files))
	res := &Result{outputs: byMetaKey}

	for _, file := range files {
		rel, err := filepath.Rel(cfg.Output.Path, file.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to relativize output %s: %w", file.Path, err)
		}
		rel = filepath.ToSlash(rel)

		metaKey, err := filepath.Rel(cfg.Root, file.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to relativize output %s: %w", file.Path, err)
		}

		asset := Asset{
			Name:     rel,
			Kind:     kindOf(rel),
			Hash:     contentHash(file.Contents),
			Contents: file.Contents,
		}

		ext := path.Ext(rel)
		if base := strings.TrimSuffix(rel, ext); !strings.Contains(base, "/") {
			if _, ok := cfg.Entry(base); ok {
				asset.Entry = base
			}
		}

		switch {
		case asset.Entry != "" && asset.Kind == KindJS:
			asset.Name, asset.URL = p.name(cfg.Output.Filename, asset.Entry, asset.Hash)
		case asset.Entry != "" && asset.Kind == KindCSS:
			asset.Name, asset.URL = p.name(cfg.Output.CSSFilename, asset.Entry, asset.Hash)
		default:
			asset.URL = p.publicURL(rel)
		}

		byMetaKey[filepath.ToSlash(metaKey)] = asset.URL
		res.Assets = append(res.Assets, asset)
	}

	for _, name := range p.entryOrder() {
		for _, asset := range res.Assets {
			if asset.Entry != name {
				continue
			}
			switch asset.Kind {
			case KindCSS:
				res.Styles = append(res.Styles, asset.URL)
			case KindJS:
				res.Scripts = appendUnique(res.Scripts, asset.URL)
				res.Scripts = p.addDependencies(metadata, byMetaKey, asset, res.Scripts)
			}
		}
	}

	return res, nil
}

// entryOrder puts the commons chunk first, then the remaining entries in
// configuration order.
func (p *Pipeline) entryOrder() []string {
	var names []string
	if p.config.CommonsChunk != "" {
		names = append(names, p.config.CommonsChunk)
	}
	for _, e := range p.config.Entries {
		if e.Name != p.config.CommonsChunk {
			names = append(names, e.Name)
		}
	}
	return names
}

// addDependencies appends the statically imported chunks of an entry script
func (p *Pipeline) addDependencies(metadata *BuildMetadata, urls map[string]string, entry Asset, scripts []string) []string {
	var metaKey string
	for key, url := range urls {
		if url == entry.URL {
			metaKey = key
			break
		}
	}

	visited := map[string]bool{metaKey: true}
	var walk func(info OutputInfo)
	walk = func(info OutputInfo) {
		for _, imp := range info.Imports {
			if imp.Kind != "" && imp.Kind != "import-statement" {
				continue
			}
			if visited[imp.Path] {
				continue
			}
			visited[imp.Path] = true

			if url, ok := urls[imp.Path]; ok {
				scripts = appendUnique(scripts, url)
			}
			if chunkInfo, exists := metadata.Outputs[imp.Path]; exists {
				walk(chunkInfo)
			}
		}
	}

	if info, ok := metadata.Outputs[metaKey]; ok {
		walk(info)
	}
	return scripts
}

// name applies a filename pattern. The part before "?" is the name on disk,
// the query is only added to the URL.
func (p *Pipeline) name(pattern, entry, hash string) (string, string) {
	diskPattern, query, _ := strings.Cut(pattern, "?")

	disk := fillPlaceholders(diskPattern, entry, hash)
	url := p.publicURL(disk)
	if query != "" {
		url += "?" + fillPlaceholders(query, entry, hash)
	}
	return disk, url
}

func (p *Pipeline) publicURL(name string) string {
	return strings.TrimSuffix(p.config.Output.PublicPath, "/") + "/" + name
}

func fillPlaceholders(pattern, entry, hash string) string {
	return strings.NewReplacer(
		"[name]", entry,
		"[hash]", hash,
		"[chunkhash]", hash,
		"[contenthash]", hash,
	).Replace(pattern)
}

func contentHash(contents []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(contents))
}

func kindOf(name string) string {
	switch path.Ext(name) {
	case ".js", ".mjs":
		return KindJS
	case ".css":
		return KindCSS
	case ".html":
		return KindHTML
	}
	return KindFile
}

func appendUnique(list []string, value string) []string {
	if slices.Contains(list, value) {
		return list
	}
	return append(list, value)
}

// LoadScripts returns the ordered list of script URLs the page loads for
// the given entry, and the entry's own script URL
func (p *Pipeline) LoadScripts(entry string) ([]string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.result == nil || p.metadata == nil {
		return nil, "", errors.New("assets not built yet, call Build() first")
	}

	for _, asset := range p.result.Assets {
		if asset.Entry == entry && asset.Kind == KindJS {
			scripts := p.addDependencies(p.metadata, p.result.outputs, asset, []string{asset.URL})
			return scripts, asset.URL, nil
		}
	}

	return nil, "", errors.New("entrypoint not found in metadata")
}

// writeResult writes assets, the page and the metafile below the output directory.
func (p *Pipeline) writeResult(res *Result) error {
	outdir := p.config.Output.Path

	files := make([]Asset, 0, len(res.Assets)+1)
	files = append(files, res.Assets...)
	if res.HTML != nil {
		files = append(files, *res.HTML)
	}

	for _, asset := range files {
		dest := filepath.Join(outdir, filepath.FromSlash(asset.Name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(dest, asset.Contents, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("failed to write %s: %w", asset.Name, err)
		}
		log.Info().Str("file", dest).Msg("Built file")
	}

	// Write metafile
	if err := os.WriteFile(filepath.Join(outdir, metafileName), []byte(res.Metafile), 0o644); err != nil { //nolint:gosec
		return err
	}

	if p.config.Compress {
		return compressAll(outdir, files)
	}
	return nil
}
