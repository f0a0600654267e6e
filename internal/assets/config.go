package assets

import (
	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/webbundle/internal/config"
)

const (
	entryNamespace = "webbundle-entry"
	devNamespace   = "webbundle-dev"
)

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var loaders = map[string]api.Loader{
	config.LoaderJS:   api.LoaderJS,
	config.LoaderJSX:  api.LoaderJSX,
	config.LoaderTS:   api.LoaderTS,
	config.LoaderTSX:  api.LoaderTSX,
	config.LoaderCSS:  api.LoaderCSS,
	config.LoaderJSON: api.LoaderJSON,
	config.LoaderText: api.LoaderText,
}

// buildOptions translates the assembled configuration into esbuild options.
// Output is never written by esbuild; the pipeline renames and writes files
// itself once the build succeeds.
func (p *Pipeline) buildOptions() api.BuildOptions {
	cfg := p.config
	splitting := cfg.CommonsChunk != ""

	target, ok := targets[cfg.Target]
	if !ok {
		target = api.ES2017
	}

	return api.BuildOptions{
		AbsWorkingDir:       cfg.Root,
		EntryPointsAdvanced: entryPoints(cfg),
		Bundle:              true,
		Splitting:           splitting,
		Write:               false,
		Metafile:            true,
		Outdir:              cfg.Output.Path,
		EntryNames:          "[name]",
		ChunkNames:          "chunks/[name]-[hash]",
		AssetNames:          "assets/[name]-[hash]",
		Format:              cond(splitting, api.FormatESModule, api.FormatIIFE),
		Target:              target,
		MinifyWhitespace:    cfg.Minify,
		MinifyIdentifiers:   cfg.Minify,
		MinifySyntax:        cfg.Minify,
		TreeShaking:         api.TreeShakingTrue,
		Sourcemap:           cond(cfg.SourceMap, api.SourceMapInline, api.SourceMapNone),
		Define:              cfg.Define,
		LogLevel:            api.LogLevelSilent,
		Loader: map[string]api.Loader{
			".png":   api.LoaderFile,
			".jpg":   api.LoaderFile,
			".gif":   api.LoaderFile,
			".svg":   api.LoaderFile,
			".woff":  api.LoaderFile,
			".woff2": api.LoaderFile,
			".ttf":   api.LoaderFile,
			".eot":   api.LoaderFile,
			".html":  api.LoaderText,
		},
		Plugins: []api.Plugin{
			entryPlugin(cfg),
			devClientPlugin(),
			aliasPlugin(cfg.Alias),
			cssImportPlugin(cfg.CSS.ImportPaths),
			rulesPlugin(cfg),
		},
	}
}

// entryPoints maps every entry to a single esbuild input. Entries with more
// than one file, or with built-in modules, go through a generated module.
func entryPoints(cfg *config.Config) []api.EntryPoint {
	eps := make([]api.EntryPoint, 0, len(cfg.Entries))
	for _, e := range cfg.Entries {
		input := entryNamespace + ":" + e.Name
		if len(e.Files) == 1 && !config.IsVirtual(e.Files[0]) {
			input = e.Files[0]
		}
		eps = append(eps, api.EntryPoint{InputPath: input, OutputPath: e.Name})
	}
	return eps
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
