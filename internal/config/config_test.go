package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/webbundle/internal/env"
	"gopkg.in/yaml.v3"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
}

func newProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()

	writeFiles(t, root, map[string]string{
		"resources/frontend_client/vendor.js":                  "import 'angular';",
		"resources/frontend_client/vendor.css":                 "body{margin:0}",
		"resources/frontend_client/app/init.js":                "console.log('init');",
		"resources/frontend_client/app/home/home.react.js":     "export default 1;",
		"resources/frontend_client/app/home/home.spec.js":      "it('works');",
		"resources/frontend_client/app/dist/app.bundle.js":     "old output",
		"resources/frontend_client/app/css/core/colors.css":    ":root { --brand: red; }",
		"resources/frontend_client/app/css/core/override.css":  ":root { --brand: blue; }",
		"resources/frontend_client/app/components/nav/nav.css": ".nav { color: var(--brand); }",
		"node_modules/angular/angular.min.js":                  "min",
		"node_modules/angular/angular.js":                      "full",
		"node_modules/d3/d3.min.js":                            "min",
		"resources/frontend_client/index_template.html":        "<html><head></head><body></body></html>",
	})

	p := DefaultProject()
	p.Root = root
	p.CommonsChunk = "vendor"
	p.Alias = map[string]string{
		"angular": "node_modules/angular/angular.min.js",
		"d3":      "node_modules/d3/d3.min.js",
	}
	return p
}

func rel(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		if IsVirtual(f) {
			out = append(out, f)
			continue
		}
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

func TestAssemble_production(t *testing.T) {
	p := newProject(t)

	cfg, err := Assemble(p, env.Mode{Env: env.Production}, Options{})
	require.NoError(t, err)

	require.Equal(t, "production", cfg.ModeName)
	require.True(t, cfg.Minify)
	require.False(t, cfg.SourceMap)
	require.False(t, cfg.NoErrors)
	require.Equal(t, `"production"`, cfg.Define["process.env.NODE_ENV"])
	require.Equal(t, "/app/dist", cfg.Output.PublicPath)
	require.Equal(t, filepath.Join(cfg.Root, "resources", "frontend_client", "app", "dist"), cfg.Output.Path)

	require.Len(t, cfg.Entries, 3)
	vendor, ok := cfg.Entry("vendor")
	require.True(t, ok)
	require.Equal(t, []string{"resources/frontend_client/vendor.js"}, rel(t, cfg.Root, vendor.Files))

	app, ok := cfg.Entry("app")
	require.True(t, ok)
	require.Equal(t, []string{
		"resources/frontend_client/app/home/home.react.js",
		"resources/frontend_client/app/init.js",
	}, rel(t, cfg.Root, app.Files))

	styles, ok := cfg.Entry("styles")
	require.True(t, ok)
	require.Equal(t, []string{
		"resources/frontend_client/vendor.css",
		"resources/frontend_client/app/css/core/colors.css",
		"resources/frontend_client/app/css/core/override.css",
		"resources/frontend_client/app/components/nav/nav.css",
	}, rel(t, cfg.Root, styles.Files))

	// later css files win
	require.Equal(t, "blue", cfg.CSS.Maps.Vars["--brand"])

	// minified aliases are kept in production
	require.Equal(t, filepath.Join(cfg.Root, "node_modules", "angular", "angular.min.js"), cfg.Alias["angular"])

	require.Len(t, cfg.Rules, 2)
	require.Contains(t, cfg.Plugins(), "commons-chunk:vendor")
	require.Contains(t, cfg.Plugins(), "html")
	require.NotContains(t, cfg.Plugins(), "no-errors")
}

func TestAssemble_developmentRewritesAliases(t *testing.T) {
	p := newProject(t)

	cfg, err := Assemble(p, env.Mode{Env: env.Development}, Options{})
	require.NoError(t, err)

	require.False(t, cfg.Minify)
	require.True(t, cfg.SourceMap)
	require.Equal(t, `"development"`, cfg.Define["process.env.NODE_ENV"])
	require.Equal(t, filepath.Join(cfg.Root, "node_modules", "angular", "angular.js"), cfg.Alias["angular"])
	require.Equal(t, filepath.Join(cfg.Root, "node_modules", "d3", "d3.min.js"), cfg.Alias["d3"])
}

func TestAssemble_injectedExists(t *testing.T) {
	p := newProject(t)

	var checked []string
	exists := func(path string) bool {
		checked = append(checked, path)
		return false
	}

	cfg, err := Assemble(p, env.Mode{Env: env.Development}, Options{Exists: exists})
	require.NoError(t, err)
	require.Len(t, checked, 2)
	require.True(t, strings.HasSuffix(cfg.Alias["angular"], "angular.min.js"))
}

func TestAssemble_hot(t *testing.T) {
	p := newProject(t)

	cfg, err := Assemble(p, env.Mode{Env: env.Development, Hot: true}, Options{})
	require.NoError(t, err)

	app, ok := cfg.Entry("app")
	require.True(t, ok)
	require.Equal(t, []string{
		"webbundle/dev-client?http://localhost:8080",
		"webbundle/hot/only-dev-server",
		"resources/frontend_client/app/home/home.react.js",
		"resources/frontend_client/app/init.js",
	}, rel(t, cfg.Root, app.Files))

	require.Equal(t, "http://localhost:8080/app/dist", cfg.Output.PublicPath)
	require.True(t, cfg.NoErrors)
	require.Equal(t, `"development"`, cfg.Define["process.env.NODE_ENV"])
	require.Equal(t, LoaderJSX, cfg.Rules[0].Loader)
	require.Len(t, cfg.Rules, 3)
	require.Equal(t, []string{"no-errors"}, cfg.Plugins()[:1])

	// react rule wins over the generic js rule
	path := filepath.Join(cfg.Root, "resources", "frontend_client", "app", "home", "home.react.js")
	require.True(t, cfg.Rules[0].Match(path))
	require.False(t, cfg.Rules[0].Match(filepath.Join(cfg.Root, "node_modules", "x.react.js")))
}

func TestAssemble_hotKeepsProductionBase(t *testing.T) {
	p := newProject(t)

	cfg, err := Assemble(p, env.Mode{Env: env.Production, Hot: true}, Options{})
	require.NoError(t, err)

	require.True(t, cfg.Minify)
	require.False(t, cfg.SourceMap)
	require.Equal(t, `"production"`, cfg.Define["process.env.NODE_ENV"])
	require.True(t, strings.HasSuffix(cfg.Alias["angular"], "angular.min.js"))

	require.Equal(t, "http://localhost:8080/app/dist", cfg.Output.PublicPath)
	require.True(t, cfg.NoErrors)
	app, ok := cfg.Entry("app")
	require.True(t, ok)
	require.Equal(t, "webbundle/dev-client?http://localhost:8080", app.Files[0])
}

func TestAssemble_watchWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })

	warnings := func() int {
		return strings.Count(buf.String(), "you must restart webbundle")
	}

	_, err := Assemble(newProject(t), env.Mode{Env: env.Development}, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, warnings())

	for range 2 {
		_, err := Assemble(newProject(t), env.Mode{Env: env.Development}, Options{Watch: true})
		require.NoError(t, err)
	}
	require.Equal(t, 1, warnings())
}

func TestAssemble_hotEntryMissing(t *testing.T) {
	p := newProject(t)
	p.DevServer.Entry = "main"

	_, err := Assemble(p, env.Mode{Env: env.Development, Hot: true}, Options{})
	require.Error(t, err)
}

func TestAssemble_missingBasePath(t *testing.T) {
	p := newProject(t)
	p.BasePath = "does/not/exist"

	_, err := Assemble(p, env.Mode{Env: env.Production}, Options{})
	require.Error(t, err)
}

func TestAssemble_unknownSource(t *testing.T) {
	p := newProject(t)
	p.Entries = append(p.Entries, EntrySpec{Name: "extra", Sources: []string{"ts"}})

	_, err := Assemble(p, env.Mode{Env: env.Production}, Options{})
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestAssemble_noEntries(t *testing.T) {
	p := newProject(t)
	p.Entries = []EntrySpec{{Name: "empty"}}

	_, err := Assemble(p, env.Mode{Env: env.Production}, Options{})
	require.ErrorIs(t, err, ErrNoEntries)
}

func TestAssemble_badRule(t *testing.T) {
	p := newProject(t)
	p.Rules = []Rule{{Test: `\.coffee$`, Loader: "coffee"}}

	_, err := Assemble(p, env.Mode{Env: env.Production}, Options{})
	require.ErrorIs(t, err, ErrUnknownLoader)

	p.Rules = []Rule{{Test: `(`, Loader: LoaderJS}}
	_, err = Assemble(p, env.Mode{Env: env.Production}, Options{})
	require.Error(t, err)
}

func TestConfig_marshalsToYAML(t *testing.T) {
	p := newProject(t)

	cfg, err := Assemble(p, env.Mode{Env: env.Production}, Options{})
	require.NoError(t, err)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.Contains(t, string(out), "mode: production")
	require.Contains(t, string(out), "publicPath: /app/dist")
}

func TestParseProject(t *testing.T) {
	p, err := ParseProject([]byte(`
root: web
output:
  publicPath: /static
alias:
  jquery: node_modules/jquery/dist/jquery.min.js
entries:
  - name: main
    files: [src/main.js]
`))
	require.NoError(t, err)

	require.Equal(t, "web", p.Root)
	require.Equal(t, "/static", p.Output.PublicPath)
	require.Equal(t, "[name].bundle.js?[hash]", p.Output.Filename)
	require.Equal(t, []EntrySpec{{Name: "main", Files: []string{"src/main.js"}}}, p.Entries)
	require.Equal(t, "node_modules/jquery/dist/jquery.min.js", p.Alias["jquery"])
	require.Equal(t, DefaultRules(), p.Rules)
	require.Equal(t, "localhost:8080", p.DevServer.Addr)
}

func TestParseProject_invalid(t *testing.T) {
	_, err := ParseProject([]byte("entries: {"))
	require.Error(t, err)
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webbundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("basePath: src\n"), 0o600))

	p, err := LoadProject(path)
	require.NoError(t, err)
	require.Equal(t, "src", p.BasePath)
	require.Equal(t, dir, p.Root)

	_, err = LoadProject(filepath.Join(dir, "other.yaml"))
	require.Error(t, err)
}

func TestLoadProject_missingDefault(t *testing.T) {
	dir := t.TempDir()

	p, err := LoadProject(filepath.Join(dir, DefaultProjectFile))
	require.NoError(t, err)
	require.Equal(t, dir, p.Root)
	require.Equal(t, "resources/frontend_client/app", p.BasePath)
}

func TestLoadProject_example(t *testing.T) {
	p, err := LoadProject(filepath.Join("..", "..", DefaultProjectFile))
	require.NoError(t, err)

	require.Len(t, p.Alias, 24)
	require.Equal(t, "node_modules/moment/min/moment.min.js", p.Alias["moment"])
	require.Equal(t, "vendor", p.CommonsChunk)
	require.Equal(t, []string{"vendor", "app", "styles"}, []string{p.Entries[0].Name, p.Entries[1].Name, p.Entries[2].Name})
	require.Equal(t, DefaultRules(), p.Rules)
}
