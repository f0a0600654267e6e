package assets

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbundle/internal/alias"
	"github.com/wolfeidau/webbundle/internal/config"
	"github.com/wolfeidau/webbundle/internal/cssvars"
)

//go:embed client/dev-client.js
var devClientScript string

//go:embed client/only-dev-server.js
var hotScript string

// originPlaceholder is replaced with the quoted dev-server origin.
const originPlaceholder = "__WEBBUNDLE_ORIGIN__"

// entryPlugin serves the generated module for multi-file entries. A module
// whose files are all stylesheets is CSS, so the entry emits a stylesheet;
// otherwise it is JavaScript and any imported CSS is extracted next to it.
func entryPlugin(cfg *config.Config) api.Plugin {
	return api.Plugin{
		Name: "webbundle-entry",
		Setup: func(pb api.PluginBuild) {
			pb.OnResolve(api.OnResolveOptions{Filter: "^" + entryNamespace + ":"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{
					Path:      strings.TrimPrefix(args.Path, entryNamespace+":"),
					Namespace: entryNamespace,
				}, nil
			})

			pb.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: entryNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				entry, ok := cfg.Entry(args.Path)
				if !ok {
					return api.OnLoadResult{}, fmt.Errorf("unknown entry %q", args.Path)
				}

				contents, loader := entryModule(entry.Files)
				return api.OnLoadResult{
					Contents:   &contents,
					Loader:     loader,
					ResolveDir: cfg.Root,
				}, nil
			})
		},
	}
}

func entryModule(files []string) (string, api.Loader) {
	allCSS := true
	for _, f := range files {
		if !strings.HasSuffix(f, ".css") {
			allCSS = false
			break
		}
	}

	var b strings.Builder
	for _, f := range files {
		if allCSS {
			fmt.Fprintf(&b, "@import %s;\n", strconv.Quote(filepath.ToSlash(f)))
		} else {
			fmt.Fprintf(&b, "import %s;\n", strconv.Quote(filepath.ToSlash(f)))
		}
	}

	if allCSS {
		return b.String(), api.LoaderCSS
	}
	return b.String(), api.LoaderJS
}

// devClientPlugin resolves the built-in dev-server bootstrap modules.
func devClientPlugin() api.Plugin {
	return api.Plugin{
		Name: "webbundle-dev-client",
		Setup: func(pb api.PluginBuild) {
			pb.OnResolve(api.OnResolveOptions{Filter: "^webbundle/"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: args.Path, Namespace: devNamespace}, nil
			})

			pb.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: devNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				module, origin, _ := strings.Cut(args.Path, "?")

				var contents string
				switch module {
				case config.DevClientModule:
					contents = strings.ReplaceAll(devClientScript, originPlaceholder, strconv.Quote(origin))
				case config.HotModule:
					contents = hotScript
				default:
					return api.OnLoadResult{}, fmt.Errorf("unknown built-in module %q", module)
				}

				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

// aliasPlugin resolves aliased module names, and paths below them, to their
// configured targets.
func aliasPlugin(table alias.Table) api.Plugin {
	return api.Plugin{
		Name: "webbundle-alias",
		Setup: func(pb api.PluginBuild) {
			for _, name := range table.Names() {
				target := table[name]
				info, err := os.Stat(target)
				isDir := err == nil && info.IsDir()

				pb.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(name) + "(/.*)?$"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					sub := strings.TrimPrefix(strings.TrimPrefix(args.Path, name), "/")
					if sub == "" && !isDir {
						return api.OnResolveResult{Path: target}, nil
					}

					dir := target
					if !isDir {
						dir = filepath.Dir(target)
					}

					res := pb.Resolve("./"+sub, api.ResolveOptions{
						ResolveDir: dir,
						Kind:       args.Kind,
						Importer:   args.Importer,
					})
					if len(res.Errors) > 0 {
						return api.OnResolveResult{}, fmt.Errorf("failed to resolve alias %s: %s", args.Path, res.Errors[0].Text)
					}

					return api.OnResolveResult{Path: res.Path, Namespace: res.Namespace}, nil
				})
			}
		},
	}
}

// cssImportPlugin looks up bare @import specifiers in the configured import
// paths. A file next to the importing stylesheet takes precedence and is left
// to esbuild.
func cssImportPlugin(importPaths []string) api.Plugin {
	return api.Plugin{
		Name: "webbundle-css-import",
		Setup: func(pb api.PluginBuild) {
			if len(importPaths) == 0 {
				return
			}

			pb.OnResolve(api.OnResolveOptions{Filter: `^[^./]`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind != api.ResolveCSSImportRule {
					return api.OnResolveResult{}, nil
				}

				if args.Namespace == "file" && args.Importer != "" {
					sibling := filepath.Join(filepath.Dir(args.Importer), filepath.FromSlash(args.Path))
					if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
						return api.OnResolveResult{}, nil
					}
				}

				for _, dir := range importPaths {
					for _, candidate := range []string{args.Path, args.Path + ".css"} {
						path := filepath.Join(dir, filepath.FromSlash(candidate))
						if info, err := os.Stat(path); err == nil && !info.IsDir() {
							return api.OnResolveResult{Path: path}, nil
						}
					}
				}

				return api.OnResolveResult{}, nil
			})
		},
	}
}

// rulesPlugin applies the configured rules in order. The first rule whose
// test matches and whose exclude does not wins; unmatched files fall through
// to esbuild's own loaders.
func rulesPlugin(cfg *config.Config) api.Plugin {
	return api.Plugin{
		Name: "webbundle-rules",
		Setup: func(pb api.PluginBuild) {
			for i := range cfg.Rules {
				rule := &cfg.Rules[i]
				if err := rule.Compile(); err != nil {
					log.Error().Err(err).Str("rule", rule.Test).Msg("Skipping rule")
					continue
				}
				loader := loaders[rule.Loader]

				pb.OnLoad(api.OnLoadOptions{Filter: rule.Test, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					if !rule.Match(args.Path) {
						return api.OnLoadResult{}, nil
					}

					src, err := os.ReadFile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}

					if rule.HasTransform(config.TransformCSSVars) {
						src, err = cssvars.Transform(src, cfg.CSS.Maps)
						if err != nil {
							return api.OnLoadResult{}, fmt.Errorf("failed to transform %s: %w", args.Path, err)
						}
					}

					contents := string(src)
					return api.OnLoadResult{
						Contents:   &contents,
						Loader:     loader,
						ResolveDir: filepath.Dir(args.Path),
					}, nil
				})
			}
		},
	}
}

func buildError(msgs []api.Message) error {
	for _, msg := range msgs {
		event := log.Error().Str("error", msg.Text)
		if msg.Location != nil {
			event = event.Str("file", msg.Location.File).Int("line", msg.Location.Line)
		}
		event.Msg("Build error")
	}

	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	return errors.Join(ErrBuildFailed, errors.New(strings.Join(formatted, "")))
}
