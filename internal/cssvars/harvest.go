// Package cssvars harvests CSS custom properties, custom media queries and
// custom selectors ahead of bundling, and substitutes them into stylesheets
// so that variables declared in one file resolve in every other file.
package cssvars

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tdewolff/parse/v2/css"
)

// Maps holds the harvested definitions, keyed by their declared names:
// "--color" for Vars and Media, ":--heading" for Selectors.
type Maps struct {
	Vars      map[string]string `json:"vars" yaml:"vars"`
	Media     map[string]string `json:"media" yaml:"media"`
	Selectors map[string]string `json:"selectors" yaml:"selectors"`
}

// NewMaps returns empty, non-nil maps.
func NewMaps() Maps {
	return Maps{
		Vars:      map[string]string{},
		Media:     map[string]string{},
		Selectors: map[string]string{},
	}
}

// Merge copies other into m. Names already present in m are overwritten.
func (m Maps) Merge(other Maps) {
	maps.Copy(m.Vars, other.Vars)
	maps.Copy(m.Media, other.Media)
	maps.Copy(m.Selectors, other.Selectors)
}

// Len returns the total number of definitions.
func (m Maps) Len() int {
	return len(m.Vars) + len(m.Media) + len(m.Selectors)
}

// Parse extracts the definitions declared in a single stylesheet. Custom
// properties are only taken from :root rules.
func Parse(src []byte) (Maps, error) {
	toks, err := tokenize(src)
	if err != nil {
		return Maps{}, err
	}

	out := NewMaps()
	var blocks []bool // true for each open :root block

	for _, st := range statements(toks) {
		inRoot := len(blocks) > 0 && blocks[len(blocks)-1]

		switch st.end {
		case css.LeftBraceToken:
			blocks = append(blocks, strings.TrimSpace(text(st.toks)) == ":root")
			continue
		case css.SemicolonToken, css.RightBraceToken, css.ErrorToken:
			switch {
			case inRoot:
				if name, value, ok := declaration(st.toks); ok {
					out.Vars[name] = value
				}
			case len(blocks) == 0 && st.end == css.SemicolonToken:
				harvestAtRule(st.toks, out)
			}
		}

		if st.end == css.RightBraceToken && len(blocks) > 0 {
			blocks = blocks[:len(blocks)-1]
		}
	}

	return out, nil
}

// declaration parses "--name: value" into its parts.
func declaration(toks []token) (string, string, bool) {
	toks = trim(toks)
	if len(toks) < 2 || toks[0].tt != css.CustomPropertyNameToken {
		return "", "", false
	}

	rest := trim(toks[1:])
	if len(rest) == 0 || rest[0].tt != css.ColonToken {
		return "", "", false
	}

	value := strings.TrimSpace(text(rest[1:]))
	value = strings.TrimSpace(strings.TrimSuffix(value, "!important"))
	return toks[0].text, value, true
}

func harvestAtRule(toks []token, out Maps) {
	switch atKeyword(toks) {
	case "@custom-media":
		body := trim(trim(toks)[1:])
		if len(body) == 0 || body[0].tt != css.CustomPropertyNameToken {
			return
		}
		out.Media[body[0].text] = strings.TrimSpace(text(body[1:]))
	case "@custom-selector":
		body := trim(trim(toks)[1:])
		if len(body) < 2 || body[0].tt != css.ColonToken || body[1].tt != css.CustomPropertyNameToken {
			return
		}
		out.Selectors[":"+body[1].text] = strings.TrimSpace(text(body[2:]))
	}
}

// Harvest parses each file in order and merges the results, so a definition
// in a later file replaces the same name from an earlier one.
func Harvest(files []string) (Maps, error) {
	return harvest(files, os.ReadFile)
}

// HarvestFS is Harvest reading from fsys.
func HarvestFS(fsys fs.FS, files []string) (Maps, error) {
	return harvest(files, func(name string) ([]byte, error) {
		return fs.ReadFile(fsys, name)
	})
}

func harvest(files []string, readFile func(string) ([]byte, error)) (Maps, error) {
	merged := NewMaps()

	for _, file := range files {
		src, err := readFile(file)
		if err != nil {
			return Maps{}, fmt.Errorf("failed to read css file: %w", err)
		}

		m, err := Parse(src)
		if err != nil {
			return Maps{}, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		merged.Merge(m)
	}

	log.Debug().
		Int("files", len(files)).
		Int("vars", len(merged.Vars)).
		Int("media", len(merged.Media)).
		Int("selectors", len(merged.Selectors)).
		Msg("harvested css definitions")

	return merged, nil
}

var watchWarning sync.Once

// WarnWatch logs, once per process, that harvested definitions are not
// refreshed while watching.
func WarnWatch() {
	watchWarning.Do(func() {
		log.Warn().Msg("in watch mode you must restart webbundle if you change any CSS variables or custom media queries")
	})
}
