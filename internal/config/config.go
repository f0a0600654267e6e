// Package config assembles the bundle configuration: it scans sources,
// harvests CSS definitions, resolves aliases for the build mode and layers
// the hot reload bootstrap on top.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbundle/internal/alias"
	"github.com/wolfeidau/webbundle/internal/cssvars"
	"github.com/wolfeidau/webbundle/internal/env"
	"github.com/wolfeidau/webbundle/internal/scan"
)

var (
	// ErrNoEntries is returned when no entry resolves to any file.
	ErrNoEntries = errors.New("no entry points configured")

	// ErrUnknownSource is returned when an entry names an undeclared source set.
	ErrUnknownSource = errors.New("unknown source set")

	// ErrUnknownLoader is returned for a rule with an unsupported loader.
	ErrUnknownLoader = errors.New("unknown loader")
)

// Loader names accepted by rules.
const (
	LoaderJS   = "js"
	LoaderJSX  = "jsx"
	LoaderTS   = "ts"
	LoaderTSX  = "tsx"
	LoaderCSS  = "css"
	LoaderJSON = "json"
	LoaderText = "text"
)

// TransformCSSVars substitutes harvested CSS definitions before loading.
const TransformCSSVars = "cssvars"

// Inject positions for generated tags.
const (
	InjectHead = "head"
	InjectBody = "body"
)

// Dev-server bootstrap modules prepended to the hot entry.
const (
	DevClientModule = "webbundle/dev-client"
	HotModule       = "webbundle/hot/only-dev-server"
)

// Output describes where bundles are written and how they are named. A
// "?query" suffix on a filename pattern only appears in URLs, with the
// [hash], [chunkhash] and [contenthash] placeholders filled in.
type Output struct {
	Path        string `yaml:"path"`
	Filename    string `yaml:"filename"`
	CSSFilename string `yaml:"cssFilename"`
	PublicPath  string `yaml:"publicPath"`
}

// HTML configures the generated page.
type HTML struct {
	Filename string `yaml:"filename"`
	Template string `yaml:"template"`
	Inject   string `yaml:"inject"`
	Title    string `yaml:"title"`
}

// Rule selects a loader and transforms for files matching Test and not
// matching Exclude. Rules are tried in order.
type Rule struct {
	Test       string   `yaml:"test"`
	Exclude    string   `yaml:"exclude,omitempty"`
	Loader     string   `yaml:"loader"`
	Transforms []string `yaml:"transforms,omitempty"`

	test    *regexp.Regexp
	exclude *regexp.Regexp
}

// Compile validates the loader and compiles the test and exclude patterns.
func (r *Rule) Compile() error {
	if !slices.Contains([]string{LoaderJS, LoaderJSX, LoaderTS, LoaderTSX, LoaderCSS, LoaderJSON, LoaderText}, r.Loader) {
		return fmt.Errorf("%w %q for rule %s", ErrUnknownLoader, r.Loader, r.Test)
	}

	test, err := regexp.Compile(r.Test)
	if err != nil {
		return fmt.Errorf("invalid rule test %q: %w", r.Test, err)
	}
	r.test = test

	if r.Exclude != "" {
		exclude, err := regexp.Compile(r.Exclude)
		if err != nil {
			return fmt.Errorf("invalid rule exclude %q: %w", r.Exclude, err)
		}
		r.exclude = exclude
	}
	return nil
}

// Match reports whether the rule applies to path.
func (r *Rule) Match(path string) bool {
	if r.test == nil {
		if err := r.Compile(); err != nil {
			return false
		}
	}
	if !r.test.MatchString(path) {
		return false
	}
	return r.exclude == nil || !r.exclude.MatchString(path)
}

// HasTransform reports whether name is among the rule's transforms.
func (r *Rule) HasTransform(name string) bool {
	return slices.Contains(r.Transforms, name)
}

// Entry is a named entry point and its files, in order.
type Entry struct {
	Name  string   `yaml:"name"`
	Files []string `yaml:"files"`
}

// CSS holds what the CSS transform needs.
type CSS struct {
	Maps        cssvars.Maps `yaml:"maps"`
	ImportPaths []string     `yaml:"importPaths"`
}

// Config is the assembled build description handed to the asset pipeline.
type Config struct {
	Mode         env.Mode          `yaml:"-"`
	ModeName     string            `yaml:"mode"`
	Root         string            `yaml:"root"`
	Entries      []Entry           `yaml:"entries"`
	Output       Output            `yaml:"output"`
	Rules        []Rule            `yaml:"rules"`
	Alias        alias.Table       `yaml:"alias"`
	HTML         *HTML             `yaml:"html,omitempty"`
	CommonsChunk string            `yaml:"commonsChunk,omitempty"`
	Define       map[string]string `yaml:"define"`
	CSS          CSS               `yaml:"css"`
	DevServer    DevServer         `yaml:"devServer"`
	Target       string            `yaml:"target"`
	Minify       bool              `yaml:"minify"`
	SourceMap    bool              `yaml:"sourceMap"`
	NoErrors     bool              `yaml:"noErrors"`
	Compress     bool              `yaml:"compress"`
	Watch        bool              `yaml:"watch"`
}

// Plugins lists the plugin stages the configuration enables, in the order
// the pipeline applies them.
func (c *Config) Plugins() []string {
	var plugins []string
	if c.NoErrors {
		plugins = append(plugins, "no-errors")
	}
	if c.CommonsChunk != "" {
		plugins = append(plugins, "commons-chunk:"+c.CommonsChunk)
	}
	plugins = append(plugins, "extract-css", "alias", "rules", "define")
	if c.HTML != nil {
		plugins = append(plugins, "html")
	}
	if c.Compress {
		plugins = append(plugins, "compress")
	}
	return plugins
}

// Entry returns the entry with the given name.
func (c *Config) Entry(name string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// DevServerOrigin is the absolute origin of the hot reload server.
func (c *Config) DevServerOrigin() string {
	return "http://" + c.DevServer.Addr
}

// Options tune assembly.
type Options struct {
	// Watch enables watch mode, which only affects the CSS warning here.
	Watch bool
	// Exists checks for unminified alias targets, alias.FileExists when nil.
	Exists alias.ExistsFunc
}

// Assemble builds the Config for mode. Every failure is fatal to the build.
func Assemble(p *Project, mode env.Mode, opts Options) (*Config, error) {
	if opts.Exists == nil {
		opts.Exists = alias.FileExists
	}

	root, err := filepath.Abs(p.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	scanner, err := scan.New(resolve(root, p.BasePath))
	if err != nil {
		return nil, err
	}

	sources := make(map[string][]string, len(p.Sources))
	for name, patterns := range p.Sources {
		files, err := scanner.Scan(patterns)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source set %s: %w", name, err)
		}
		sources[name] = files
	}

	var cssFiles []string
	for _, name := range p.CSS.Sources {
		files, ok := sources[name]
		if !ok {
			return nil, fmt.Errorf("%w %q in css sources", ErrUnknownSource, name)
		}
		cssFiles = append(cssFiles, files...)
	}

	if opts.Watch {
		cssvars.WarnWatch()
	}

	maps, err := cssvars.Harvest(cssFiles)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode:         mode,
		ModeName:     mode.String(),
		Root:         root,
		CommonsChunk: p.CommonsChunk,
		DevServer:    p.DevServer,
		Target:       p.Target,
		Minify:       mode.IsProduction(),
		SourceMap:    mode.IsDevelopment(),
		Compress:     p.Compress && mode.IsProduction(),
		Watch:        opts.Watch,
		Define: map[string]string{
			"process.env.NODE_ENV": strconv.Quote(string(mode.Env)),
		},
		CSS: CSS{
			Maps:        maps,
			ImportPaths: resolveAll(root, p.CSS.ImportPaths),
		},
		Output: Output{
			Path:        resolve(root, p.Output.Path),
			Filename:    p.Output.Filename,
			CSSFilename: p.Output.CSSFilename,
			PublicPath:  p.Output.PublicPath,
		},
	}

	if p.HTML != nil {
		html := *p.HTML
		html.Template = resolve(root, html.Template)
		cfg.HTML = &html
	}

	cfg.Entries, err = entries(root, p.Entries, sources)
	if err != nil {
		return nil, err
	}

	cfg.Rules = slices.Clone(p.Rules)

	table := make(alias.Table, len(p.Alias))
	for name, target := range p.Alias {
		table[name] = resolve(root, target)
	}
	cfg.Alias = alias.Resolve(mode, table, opts.Exists)

	if mode.Hot {
		if err := applyHot(cfg); err != nil {
			return nil, err
		}
	}

	for i := range cfg.Rules {
		if err := cfg.Rules[i].Compile(); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("mode", cfg.ModeName).
		Int("entries", len(cfg.Entries)).
		Int("aliases", len(cfg.Alias)).
		Int("css_definitions", maps.Len()).
		Msg("assembled bundle config")

	return cfg, nil
}

func entries(root string, specs []EntrySpec, sources map[string][]string) ([]Entry, error) {
	var out []Entry
	for _, spec := range specs {
		files := resolveAll(root, spec.Files)
		for _, name := range spec.Sources {
			set, ok := sources[name]
			if !ok {
				return nil, fmt.Errorf("%w %q in entry %s", ErrUnknownSource, name, spec.Name)
			}
			files = append(files, set...)
		}

		if len(files) == 0 {
			log.Warn().Str("entry", spec.Name).Msg("entry has no files, skipping")
			continue
		}
		out = append(out, Entry{Name: spec.Name, Files: files})
	}

	if len(out) == 0 {
		return nil, ErrNoEntries
	}
	return out, nil
}

// applyHot prepends the dev-server bootstrap to the hot entry, points the
// public path at the dev server and turns on hot-capable JSX loading.
func applyHot(cfg *Config) error {
	origin := cfg.DevServerOrigin()

	idx := slices.IndexFunc(cfg.Entries, func(e Entry) bool { return e.Name == cfg.DevServer.Entry })
	if idx < 0 {
		return fmt.Errorf("hot entry %q not found", cfg.DevServer.Entry)
	}

	entry := &cfg.Entries[idx]
	entry.Files = append([]string{DevClientModule + "?" + origin, HotModule}, entry.Files...)

	cfg.Output.PublicPath = origin + cfg.Output.PublicPath
	cfg.Rules = append([]Rule{{Test: `\.react\.js$`, Exclude: `node_modules`, Loader: LoaderJSX}}, cfg.Rules...)
	cfg.NoErrors = true

	return nil
}

func resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, filepath.FromSlash(path))
}

func resolveAll(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, resolve(root, p))
	}
	return out
}

// IsVirtual reports whether an entry file names a built-in module rather
// than a file on disk.
func IsVirtual(file string) bool {
	return strings.HasPrefix(file, "webbundle/")
}
