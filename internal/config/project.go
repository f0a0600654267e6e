package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbundle/internal/scan"
	"gopkg.in/yaml.v3"
)

// DefaultProjectFile is the project file looked up in the working directory.
const DefaultProjectFile = "webbundle.yaml"

// Project is the on-disk description of a front-end build. Paths are
// relative to Root unless absolute; source set patterns are relative to
// BasePath.
type Project struct {
	Root         string                   `yaml:"root"`
	BasePath     string                   `yaml:"basePath"`
	Sources      map[string]scan.Patterns `yaml:"sources"`
	Entries      []EntrySpec              `yaml:"entries"`
	Output       Output                   `yaml:"output"`
	Alias        map[string]string        `yaml:"alias"`
	Rules        []Rule                   `yaml:"rules"`
	HTML         *HTML                    `yaml:"html"`
	CommonsChunk string                   `yaml:"commonsChunk"`
	CSS          CSSSpec                  `yaml:"css"`
	DevServer    DevServer                `yaml:"devServer"`
	Compress     bool                     `yaml:"compress"`
	Target       string                   `yaml:"target"`
}

// EntrySpec names an entry point. Files come first, followed by every file
// of each named source set.
type EntrySpec struct {
	Name    string   `yaml:"name"`
	Files   []string `yaml:"files"`
	Sources []string `yaml:"sources"`
}

// CSSSpec configures custom property harvesting and @import lookup.
type CSSSpec struct {
	// Sources are the source sets scanned for custom properties.
	Sources []string `yaml:"sources"`
	// ImportPaths are searched for bare @import specifiers.
	ImportPaths []string `yaml:"importPaths"`
}

// DevServer configures the hot reload server.
type DevServer struct {
	Addr string `yaml:"addr"`
	// Entry is the entry the dev-server bootstrap is prepended to.
	Entry string `yaml:"entry"`
}

// DefaultProject returns the layout of a typical app under
// resources/frontend_client.
func DefaultProject() *Project {
	p := &Project{}
	p.setDefaults()
	return p
}

func (p *Project) setDefaults() {
	if p.Root == "" {
		p.Root = "."
	}
	if p.BasePath == "" {
		p.BasePath = "resources/frontend_client/app"
	}
	if p.Sources == nil {
		p.Sources = map[string]scan.Patterns{
			"js": {
				Include: []string{"**/*.js"},
				Exclude: []string{"dist/**/*.js", "**/*.spec.js"},
			},
			"css": {
				Include: []string{"css/**/*.css", "components/**/*.css"},
			},
		}
	}
	if p.Entries == nil {
		p.Entries = []EntrySpec{
			{Name: "vendor", Files: []string{"resources/frontend_client/vendor.js"}},
			{Name: "app", Sources: []string{"js"}},
			{Name: "styles", Files: []string{"resources/frontend_client/vendor.css"}, Sources: []string{"css"}},
		}
	}
	if p.Output.Path == "" {
		p.Output.Path = "resources/frontend_client/app/dist"
	}
	if p.Output.Filename == "" {
		p.Output.Filename = "[name].bundle.js?[hash]"
	}
	if p.Output.CSSFilename == "" {
		p.Output.CSSFilename = "[name].bundle.css?[contenthash]"
	}
	if p.Output.PublicPath == "" {
		p.Output.PublicPath = "/app/dist"
	}
	if p.Rules == nil {
		p.Rules = DefaultRules()
	}
	if p.HTML == nil {
		p.HTML = &HTML{
			Filename: "../../index.html",
			Template: "resources/frontend_client/index_template.html",
			Inject:   InjectHead,
		}
	}
	if p.HTML.Inject == "" {
		p.HTML.Inject = InjectHead
	}
	if p.CSS.Sources == nil {
		p.CSS.Sources = []string{"css"}
	}
	if p.CSS.ImportPaths == nil {
		p.CSS.ImportPaths = []string{"resources/frontend_client/app/css"}
	}
	if p.DevServer.Addr == "" {
		p.DevServer.Addr = "localhost:8080"
	}
	if p.DevServer.Entry == "" {
		p.DevServer.Entry = "app"
	}
	if p.Target == "" {
		p.Target = "es2017"
	}
}

// DefaultRules returns the JavaScript and CSS rules used when a project
// declares none.
func DefaultRules() []Rule {
	return []Rule{
		{Test: `\.js$`, Exclude: `node_modules`, Loader: LoaderJS},
		{Test: `\.css$`, Loader: LoaderCSS, Transforms: []string{TransformCSSVars}},
	}
}

// LoadProject reads a project file. A missing file is only tolerated for
// the default file name, in which case DefaultProject is returned. A
// relative root is taken relative to the file's directory.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && filepath.Base(path) == DefaultProjectFile {
			log.Debug().Str("path", path).Msg("project file not found, using defaults")
			p := DefaultProject()
			p.Root = filepath.Dir(path)
			return p, nil
		}
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	p, err := ParseProject(data)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(p.Root) {
		p.Root = filepath.Join(filepath.Dir(path), p.Root)
	}
	return p, nil
}

// ParseProject decodes a YAML project and fills in defaults.
func ParseProject(data []byte) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project file: %w", err)
	}

	p.setDefaults()
	return &p, nil
}
