package assets

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/wolfeidau/webbundle/internal/config"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PageData is the data passed to the page template.
type PageData struct {
	Title      string
	Scripts    []string
	Styles     []string
	Mode       string
	PublicPath string
}

func parseTemplate(templatePath string) (*template.Template, error) {
	funcs := template.FuncMap{
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
	}

	tmpl, err := template.New(filepath.Base(templatePath)).Funcs(funcs).ParseFiles(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return tmpl, nil
}

// renderHTML executes the page template and injects a stylesheet link per
// style and a script tag per script.
func (p *Pipeline) renderHTML(res *Result) (*Asset, error) {
	cfg := p.config

	data := PageData{
		Title:      cfg.HTML.Title,
		Scripts:    res.Scripts,
		Styles:     res.Styles,
		Mode:       cfg.ModeName,
		PublicPath: cfg.Output.PublicPath,
	}

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	page, err := injectTags(buf.Bytes(), res.Styles, res.Scripts, cfg.HTML.Inject, cfg.CommonsChunk != "")
	if err != nil {
		return nil, err
	}

	name := filepath.ToSlash(cfg.HTML.Filename)
	return &Asset{
		Name:     name,
		URL:      "/",
		Kind:     KindHTML,
		Hash:     contentHash(page),
		Contents: page,
	}, nil
}

// injectTags appends link tags to head, and script tags to head or body
// depending on inject.
func injectTags(page []byte, styles, scripts []string, inject string, module bool) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	head := findElement(doc, atom.Head)
	body := findElement(doc, atom.Body)
	if head == nil || body == nil {
		return nil, errors.New("page has no head or body")
	}

	for _, href := range styles {
		head.AppendChild(element(atom.Link, []html.Attribute{
			{Key: "rel", Val: "stylesheet"},
			{Key: "href", Val: href},
		}))
	}

	target := head
	if inject == config.InjectBody {
		target = body
	}

	for _, src := range scripts {
		attrs := []html.Attribute{{Key: "src", Val: src}}
		if module {
			attrs = append(attrs, html.Attribute{Key: "type", Val: "module"})
		}
		target.AppendChild(element(atom.Script, attrs))
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return out.Bytes(), nil
}

func element(a atom.Atom, attrs []html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
