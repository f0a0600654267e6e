package cssvars

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type token struct {
	tt   css.TokenType
	text string
}

// tokenize lexes src into tokens, dropping comments.
func tokenize(src []byte) ([]token, error) {
	l := css.NewLexer(parse.NewInputBytes(src))

	var toks []token
	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("failed to tokenize css: %w", err)
			}
			return toks, nil
		case css.CommentToken:
			continue
		}
		toks = append(toks, token{tt: tt, text: string(data)})
	}
}

// statement is a run of tokens terminated by "{", ";" or "}" outside of any
// parentheses or brackets. end is css.ErrorToken for trailing input.
type statement struct {
	toks []token
	end  css.TokenType
}

func (s statement) endText() string {
	switch s.end {
	case css.LeftBraceToken:
		return "{"
	case css.SemicolonToken:
		return ";"
	case css.RightBraceToken:
		return "}"
	}
	return ""
}

func statements(toks []token) []statement {
	var (
		out   []statement
		start int
		nest  int
	)

	for i, t := range toks {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			nest++
		case css.RightParenthesisToken, css.RightBracketToken:
			if nest > 0 {
				nest--
			}
		case css.LeftBraceToken, css.SemicolonToken, css.RightBraceToken:
			if nest == 0 {
				out = append(out, statement{toks: toks[start:i], end: t.tt})
				start = i + 1
			}
		}
	}

	if start < len(toks) {
		out = append(out, statement{toks: toks[start:], end: css.ErrorToken})
	}
	return out
}

// trim drops leading and trailing whitespace tokens.
func trim(toks []token) []token {
	for len(toks) > 0 && toks[0].tt == css.WhitespaceToken {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].tt == css.WhitespaceToken {
		toks = toks[:len(toks)-1]
	}
	return toks
}

func text(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.text)
	}
	return b.String()
}

// splitTop splits toks at commas outside of any parentheses or brackets.
func splitTop(toks []token) [][]token {
	var (
		out   [][]token
		start int
		nest  int
	)
	for i, t := range toks {
		switch t.tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			nest++
		case css.RightParenthesisToken, css.RightBracketToken:
			if nest > 0 {
				nest--
			}
		case css.CommaToken:
			if nest == 0 {
				out = append(out, toks[start:i])
				start = i + 1
			}
		}
	}
	return append(out, toks[start:])
}

// closing returns the index of the token closing the group opened at open.
func closing(toks []token, open int) int {
	nest := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			nest++
		case css.RightParenthesisToken, css.RightBracketToken:
			nest--
			if nest == 0 {
				return i
			}
		}
	}
	return -1
}

func atKeyword(toks []token) string {
	toks = trim(toks)
	if len(toks) == 0 || toks[0].tt != css.AtKeywordToken {
		return ""
	}
	return strings.ToLower(toks[0].text)
}
