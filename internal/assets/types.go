package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"sync"

	"github.com/wolfeidau/webbundle/internal/config"
)

// ErrBuildFailed is returned when esbuild reports errors.
var ErrBuildFailed = errors.New("esbuild failed with errors")

type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
}

type ImportInfo struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// Asset kinds.
const (
	KindJS   = "js"
	KindCSS  = "css"
	KindHTML = "html"
	KindFile = "file"
)

// Asset is one emitted file.
type Asset struct {
	// Name is the path on disk relative to the output directory, slash separated.
	Name string
	// URL is the public URL, including any hash query.
	URL string
	// Entry is the entry point name, empty for shared chunks and files.
	Entry    string
	Kind     string
	Hash     string
	Contents []byte
}

// Result is the outcome of one successful build.
type Result struct {
	Assets []Asset
	// Scripts and Styles are the URLs the generated page loads, in order.
	Scripts []string
	Styles  []string
	// HTML is the generated page, nil when no template is configured.
	HTML     *Asset
	Metafile string
	Warnings int

	// outputs maps metafile output keys to URLs.
	outputs map[string]string
}

// Lookup returns the asset with the given name.
func (r *Result) Lookup(name string) (*Asset, bool) {
	for i := range r.Assets {
		if r.Assets[i].Name == name {
			return &r.Assets[i], true
		}
	}
	return nil, false
}

// Hashes maps asset names to content hashes.
func (r *Result) Hashes() map[string]string {
	hashes := make(map[string]string, len(r.Assets))
	for _, a := range r.Assets {
		hashes[a.Name] = a.Hash
	}
	return hashes
}

// Pipeline manages the asset build process and the generated page
type Pipeline struct {
	config   *config.Config
	metadata *BuildMetadata
	result   *Result
	tmpl     *template.Template
	write    bool
	mu       sync.RWMutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithoutWrite keeps build results in memory only.
func WithoutWrite() Option {
	return func(p *Pipeline) {
		p.write = false
	}
}

// New creates a pipeline for cfg, loading the page template when one is configured.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		config: cfg,
		write:  true,
	}

	for _, opt := range opts {
		opt(p)
	}

	if cfg.HTML != nil && cfg.HTML.Template != "" {
		tmpl, err := parseTemplate(cfg.HTML.Template)
		if err != nil {
			return nil, err
		}
		p.tmpl = tmpl
	}

	return p, nil
}

// Current returns the latest successful result, nil before the first build.
func (p *Pipeline) Current() *Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}
