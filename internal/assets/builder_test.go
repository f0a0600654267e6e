package assets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/webbundle/internal/alias"
	"github.com/wolfeidau/webbundle/internal/config"
	"github.com/wolfeidau/webbundle/internal/cssvars"
	"github.com/wolfeidau/webbundle/internal/env"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
}

func newConfig(t *testing.T, mode env.Mode) *config.Config {
	t.Helper()
	root := t.TempDir()

	writeFiles(t, root, map[string]string{
		"src/app.js": `import lib from "lib";
import "./app.css";
if (process.env.NODE_ENV !== "production") { console.log("DEV_ONLY"); }
console.log(lib);
`,
		"src/app.css":          `.app { margin: var(--brand); }`,
		"src/base.css":         `body { margin: 0; }`,
		"src/theme.css":        `@media (--small) { .nav { display: none; } }`,
		"vendor/lib.js":        `export default "LIB_MARKER";`,
		"templates/index.html": `<!DOCTYPE html><html><head><title>{{.Title}}</title></head><body data-mode="{{.Mode}}"></body></html>`,
	})

	maps := cssvars.NewMaps()
	maps.Vars["--brand"] = "12px"
	maps.Media["--small"] = "(max-width: 40em)"

	return &config.Config{
		Mode:     mode,
		ModeName: mode.String(),
		Root:     root,
		Entries: []config.Entry{
			{Name: "app", Files: []string{filepath.Join(root, "src", "app.js")}},
			{Name: "styles", Files: []string{filepath.Join(root, "src", "base.css"), filepath.Join(root, "src", "theme.css")}},
		},
		Output: config.Output{
			Path:        filepath.Join(root, "dist"),
			Filename:    "[name].bundle.js?[hash]",
			CSSFilename: "[name].bundle.css?[contenthash]",
			PublicPath:  "/app/dist",
		},
		Rules: config.DefaultRules(),
		Alias: alias.Table{"lib": filepath.Join(root, "vendor", "lib.js")},
		HTML: &config.HTML{
			Filename: "../index.html",
			Template: filepath.Join(root, "templates", "index.html"),
			Inject:   config.InjectHead,
			Title:    "Bundle",
		},
		Define:    map[string]string{"process.env.NODE_ENV": `"` + string(mode.Env) + `"`},
		CSS:       config.CSS{Maps: maps},
		DevServer: config.DevServer{Addr: "localhost:8080", Entry: "app"},
		Target:    "es2017",
		Minify:    mode.IsProduction(),
		SourceMap: mode.IsDevelopment(),
	}
}

func TestBuild_production(t *testing.T) {
	cfg := newConfig(t, env.Mode{Env: env.Production})

	p, err := New(cfg)
	require.NoError(t, err)

	res, err := p.Build()
	require.NoError(t, err)
	require.Same(t, res, p.Current())

	app, ok := res.Lookup("app.bundle.js")
	require.True(t, ok)
	require.Equal(t, "app", app.Entry)
	require.Equal(t, KindJS, app.Kind)
	require.Equal(t, "/app/dist/app.bundle.js?"+app.Hash, app.URL)
	require.Contains(t, string(app.Contents), "LIB_MARKER")
	require.NotContains(t, string(app.Contents), "DEV_ONLY")
	require.NotContains(t, string(app.Contents), "sourceMappingURL")

	appCSS, ok := res.Lookup("app.bundle.css")
	require.True(t, ok)
	require.Contains(t, string(appCSS.Contents), "12px")
	require.NotContains(t, string(appCSS.Contents), "var(")

	styles, ok := res.Lookup("styles.bundle.css")
	require.True(t, ok)
	require.Contains(t, string(styles.Contents), "max-width")
	require.NotContains(t, string(styles.Contents), "--small")

	require.Equal(t, []string{app.URL}, res.Scripts)
	require.Equal(t, []string{appCSS.URL, styles.URL}, res.Styles)

	for _, name := range []string{"app.bundle.js", "app.bundle.css", "styles.bundle.css", metafileName} {
		require.FileExists(t, filepath.Join(cfg.Output.Path, name))
	}

	bundleInfo, err := os.Stat(filepath.Join(cfg.Output.Path, "app.bundle.js"))
	require.NoError(t, err)
	metaInfo, err := os.Stat(filepath.Join(cfg.Output.Path, metafileName))
	require.NoError(t, err)
	require.Equal(t, bundleInfo.Mode().Perm(), metaInfo.Mode().Perm())

	require.NotNil(t, res.HTML)
	page, err := os.ReadFile(filepath.Join(cfg.Root, "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(page), "<title>Bundle</title>")
	require.Contains(t, string(page), `data-mode="production"`)
	require.Contains(t, string(page), `<script src="`+app.URL+`"></script>`)
	require.Contains(t, string(page), `<link rel="stylesheet" href="`+styles.URL+`"/>`)

	scripts, entry, err := p.LoadScripts("app")
	require.NoError(t, err)
	require.Equal(t, app.URL, entry)
	require.Equal(t, []string{app.URL}, scripts)
}

func TestBuild_development(t *testing.T) {
	cfg := newConfig(t, env.Mode{Env: env.Development})

	p, err := New(cfg, WithoutWrite())
	require.NoError(t, err)

	res, err := p.Build()
	require.NoError(t, err)

	app, ok := res.Lookup("app.bundle.js")
	require.True(t, ok)
	require.Contains(t, string(app.Contents), "DEV_ONLY")
	require.Contains(t, string(app.Contents), "sourceMappingURL=data:")

	require.NoDirExists(t, cfg.Output.Path)
}

func TestBuild_commonsChunk(t *testing.T) {
	cfg := newConfig(t, env.Mode{Env: env.Production})
	writeFiles(t, cfg.Root, map[string]string{
		"src/shared.js": `export const shared = () => "SHARED_MARKER";`,
		"src/vendor.js": `import { shared } from "./shared.js"; console.log(shared());`,
		"src/main.js":   `import { shared } from "./shared.js"; console.log("main", shared());`,
	})
	cfg.CommonsChunk = "vendor"
	cfg.Entries = []config.Entry{
		{Name: "main", Files: []string{filepath.Join(cfg.Root, "src", "main.js")}},
		{Name: "vendor", Files: []string{filepath.Join(cfg.Root, "src", "vendor.js")}},
	}

	p, err := New(cfg, WithoutWrite())
	require.NoError(t, err)

	res, err := p.Build()
	require.NoError(t, err)

	vendor, ok := res.Lookup("vendor.bundle.js")
	require.True(t, ok)
	main, ok := res.Lookup("main.bundle.js")
	require.True(t, ok)

	require.Equal(t, vendor.URL, res.Scripts[0])
	require.Contains(t, res.Scripts, main.URL)

	var chunks int
	for _, url := range res.Scripts {
		if strings.HasPrefix(url, "/app/dist/chunks/") {
			chunks++
		}
	}
	require.Equal(t, 1, chunks)
	require.Len(t, res.Scripts, 3)

	require.Contains(t, string(res.HTML.Contents), `type="module"`)
}

func TestBuild_noErrorsKeepsPreviousResult(t *testing.T) {
	tests := []struct {
		name     string
		noErrors bool
	}{
		{name: "keep", noErrors: true},
		{name: "reset", noErrors: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t, env.Mode{Env: env.Development})
			cfg.NoErrors = tt.noErrors

			p, err := New(cfg, WithoutWrite())
			require.NoError(t, err)

			first, err := p.Build()
			require.NoError(t, err)

			writeFiles(t, cfg.Root, map[string]string{"src/app.js": "export default {"})

			_, err = p.Build()
			require.ErrorIs(t, err, ErrBuildFailed)

			if tt.noErrors {
				require.Same(t, first, p.Current())
			} else {
				require.Nil(t, p.Current())
			}
		})
	}
}

func TestBuild_hotBootstrap(t *testing.T) {
	cfg := newConfig(t, env.Mode{Env: env.Development, Hot: true})
	cfg.Entries[0].Files = append([]string{
		config.DevClientModule + "?http://localhost:8080",
		config.HotModule,
	}, cfg.Entries[0].Files...)

	p, err := New(cfg, WithoutWrite())
	require.NoError(t, err)

	res, err := p.Build()
	require.NoError(t, err)

	app, ok := res.Lookup("app.bundle.js")
	require.True(t, ok)
	require.Contains(t, string(app.Contents), `"http://localhost:8080"`)
	require.Contains(t, string(app.Contents), "webbundle:change")
	require.NotContains(t, string(app.Contents), originPlaceholder)
}

func TestBuild_unknownBuiltin(t *testing.T) {
	cfg := newConfig(t, env.Mode{Env: env.Development})
	cfg.Entries[0].Files = append([]string{"webbundle/nope"}, cfg.Entries[0].Files...)

	p, err := New(cfg, WithoutWrite())
	require.NoError(t, err)

	_, err = p.Build()
	require.ErrorIs(t, err, ErrBuildFailed)
}

func TestWatch_initialBuild(t *testing.T) {
	cfg := newConfig(t, env.Mode{Env: env.Development})

	p, err := New(cfg, WithoutWrite())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	built := make(chan *Result, 1)
	done := make(chan error, 1)
	go func() {
		done <- p.Watch(ctx, func(res *Result, err error) {
			if err == nil {
				select {
				case built <- res:
				default:
				}
			}
		})
	}()

	select {
	case res := <-built:
		_, ok := res.Lookup("app.bundle.js")
		require.True(t, ok)
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for the initial build")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestName(t *testing.T) {
	p := &Pipeline{config: &config.Config{Output: config.Output{PublicPath: "/app/dist/"}}}

	tests := []struct {
		pattern  string
		wantDisk string
		wantURL  string
	}{
		{pattern: "[name].bundle.js?[hash]", wantDisk: "app.bundle.js", wantURL: "/app/dist/app.bundle.js?abc"},
		{pattern: "[name].bundle.css?[contenthash]", wantDisk: "app.bundle.css", wantURL: "/app/dist/app.bundle.css?abc"},
		{pattern: "[name]-[chunkhash].js", wantDisk: "app-abc.js", wantURL: "/app/dist/app-abc.js"},
		{pattern: "js/[name].js?v=[hash]&n=[name]", wantDisk: "js/app.js", wantURL: "/app/dist/js/app.js?v=abc&n=app"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			disk, url := p.name(tt.pattern, "app", "abc")
			require.Equal(t, tt.wantDisk, disk)
			require.Equal(t, tt.wantURL, url)
		})
	}
}

func TestEntryModule(t *testing.T) {
	contents, loader := entryModule([]string{"/src/a.css", "/src/b.css"})
	require.Equal(t, "@import \"/src/a.css\";\n@import \"/src/b.css\";\n", contents)
	require.Equal(t, loaders[config.LoaderCSS], loader)

	contents, loader = entryModule([]string{"webbundle/hot/only-dev-server", "/src/a.js", "/src/a.css"})
	require.Equal(t, "import \"webbundle/hot/only-dev-server\";\nimport \"/src/a.js\";\nimport \"/src/a.css\";\n", contents)
	require.Equal(t, loaders[config.LoaderJS], loader)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindJS, kindOf("chunks/a.js"))
	require.Equal(t, KindCSS, kindOf("app.bundle.css"))
	require.Equal(t, KindHTML, kindOf("../index.html"))
	require.Equal(t, KindFile, kindOf("assets/logo-ABC.png"))
}

func TestBuild_cssImportPrefersSibling(t *testing.T) {
	cfg := newConfig(t, env.Mode{Env: env.Production})
	writeFiles(t, cfg.Root, map[string]string{
		"src/page.css":   `@import "colors.css"; @import "shared.css"; .p { a: b; }`,
		"src/colors.css": `.c { color: RELATIVE_SIBLING; }`,
		"css/colors.css": `.c { color: IMPORT_PATH; }`,
		"css/shared.css": `.s { color: SHARED_FROM_IMPORT_PATH; }`,
	})
	cfg.CSS.ImportPaths = []string{filepath.Join(cfg.Root, "css")}
	cfg.HTML = nil
	cfg.Entries = []config.Entry{
		{Name: "page", Files: []string{filepath.Join(cfg.Root, "src", "page.css")}},
	}

	p, err := New(cfg, WithoutWrite())
	require.NoError(t, err)

	res, err := p.Build()
	require.NoError(t, err)

	page, ok := res.Lookup("page.bundle.css")
	require.True(t, ok)
	require.Contains(t, string(page.Contents), "RELATIVE_SIBLING")
	require.NotContains(t, string(page.Contents), "color:IMPORT_PATH")
	require.Contains(t, string(page.Contents), "SHARED_FROM_IMPORT_PATH")
}
