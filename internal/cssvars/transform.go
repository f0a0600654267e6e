package cssvars

import (
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// maxDepth bounds nested var() resolution so that cyclic definitions
// terminate.
const maxDepth = 16

// Transform rewrites a stylesheet using m. var() references to known custom
// properties are replaced by their values, unknown ones fall back to the
// declared fallback or are left alone. Custom media in @media preludes and
// custom selectors in rule preludes are expanded, and the @custom-media and
// @custom-selector definitions themselves are dropped.
func Transform(src []byte, m Maps) ([]byte, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.Grow(len(src))

	for _, st := range statements(toks) {
		keyword := atKeyword(st.toks)

		switch {
		case st.end == css.SemicolonToken && (keyword == "@custom-media" || keyword == "@custom-selector"):
			continue
		case st.end == css.LeftBraceToken && keyword == "@media":
			b.WriteString(expandMedia(st.toks, m))
		case st.end == css.LeftBraceToken && keyword == "":
			b.WriteString(expandSelectors(st.toks, m))
		case st.end == css.LeftBraceToken:
			b.WriteString(text(st.toks))
		default:
			b.WriteString(substituteVars(st.toks, m, 0))
		}
		b.WriteString(st.endText())
	}

	return []byte(b.String()), nil
}

func substituteVars(toks []token, m Maps, depth int) string {
	var b strings.Builder

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.tt != css.FunctionToken || !strings.EqualFold(t.text, "var(") {
			b.WriteString(t.text)
			continue
		}

		end := closing(toks, i)
		if end < 0 {
			b.WriteString(text(toks[i:]))
			break
		}

		b.WriteString(resolveVar(toks[i:end+1], m, depth))
		i = end
	}

	return b.String()
}

// resolveVar resolves a single "var(" ... ")" group.
func resolveVar(group []token, m Maps, depth int) string {
	raw := text(group)
	if depth >= maxDepth {
		return raw
	}

	args := splitTop(group[1 : len(group)-1])
	name := strings.TrimSpace(text(args[0]))

	if value, ok := m.Vars[name]; ok {
		return substituteString(value, m, depth+1)
	}

	if len(args) > 1 {
		fallback := group[1+len(args[0])+1 : len(group)-1]
		return strings.TrimSpace(substituteVars(fallback, m, depth+1))
	}

	return raw
}

func substituteString(value string, m Maps, depth int) string {
	toks, err := tokenize([]byte(value))
	if err != nil {
		return value
	}
	return substituteVars(toks, m, depth)
}

// expandMedia replaces "(--name)" groups in an @media prelude.
func expandMedia(toks []token, m Maps) string {
	var b strings.Builder

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.tt != css.LeftParenthesisToken {
			b.WriteString(t.text)
			continue
		}

		end := closing(toks, i)
		if end < 0 {
			b.WriteString(text(toks[i:]))
			break
		}

		inner := trim(toks[i+1 : end])
		if len(inner) == 1 && inner[0].tt == css.CustomPropertyNameToken {
			if query, ok := m.Media[inner[0].text]; ok {
				b.WriteString(query)
				i = end
				continue
			}
		}

		b.WriteString(text(toks[i : end+1]))
		i = end
	}

	return b.String()
}

// expandSelectors expands ":--name" references in a rule prelude into every
// alternative of the custom selector, producing the cross product when a
// selector references more than one.
func expandSelectors(toks []token, m Maps) string {
	if len(m.Selectors) == 0 || !hasCustomSelector(toks) {
		return text(toks)
	}

	var out []string
	for _, sel := range splitTop(toks) {
		variants := []string{""}
		sel = trim(sel)

		for i := 0; i < len(sel); i++ {
			if sel[i].tt == css.ColonToken && i+1 < len(sel) && sel[i+1].tt == css.CustomPropertyNameToken {
				if alternatives, ok := m.Selectors[":"+sel[i+1].text]; ok {
					variants = cross(variants, strings.Split(alternatives, ","))
					i++
					continue
				}
			}
			for j := range variants {
				variants[j] += sel[i].text
			}
		}
		out = append(out, variants...)
	}

	return strings.Join(out, ", ") + " "
}

func hasCustomSelector(toks []token) bool {
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].tt == css.ColonToken && toks[i+1].tt == css.CustomPropertyNameToken {
			return true
		}
	}
	return false
}

func cross(prefixes, alternatives []string) []string {
	out := make([]string, 0, len(prefixes)*len(alternatives))
	for _, p := range prefixes {
		for _, a := range alternatives {
			out = append(out, p+strings.TrimSpace(a))
		}
	}
	return out
}
