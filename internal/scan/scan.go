// Package scan collects source files under a base directory using glob
// include and exclude patterns.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

// ErrBadPattern is returned when an include or exclude pattern fails to compile.
var ErrBadPattern = errors.New("malformed glob pattern")

// Patterns selects files relative to the scanner root. Patterns use forward
// slashes, "*" stays within a path segment and "**" crosses segments.
type Patterns struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Scanner walks a directory tree and returns matching files as absolute paths.
type Scanner struct {
	fsys fs.FS
	root string
}

// New creates a scanner rooted at dir on the local filesystem.
func New(dir string) (*Scanner, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan root %s: %w", dir, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	return NewFS(os.DirFS(root), root), nil
}

// NewFS creates a scanner over fsys, reporting paths joined onto root.
func NewFS(fsys fs.FS, root string) *Scanner {
	return &Scanner{fsys: fsys, root: root}
}

// Root returns the absolute directory paths are reported relative to.
func (s *Scanner) Root() string {
	return s.root
}

// Scan returns every file matching an include pattern and no exclude pattern.
// Results for each include pattern follow walk order and are concatenated in
// pattern order; a file matched by several patterns is reported once.
func (s *Scanner) Scan(p Patterns) ([]string, error) {
	excludes, err := compileAll(p.Exclude)
	if err != nil {
		return nil, err
	}

	var (
		files []string
		seen  = make(map[string]bool)
	)

	for _, pattern := range p.Include {
		include, err := compile(pattern)
		if err != nil {
			return nil, err
		}

		start := staticPrefix(pattern)
		if _, err := fs.Stat(s.fsys, start); errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("pattern", pattern).Str("dir", start).Msg("scan prefix missing, no matches")
			continue
		}

		err = fs.WalkDir(s.fsys, start, func(name string, d fs.DirEntry, err error) error {
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", name, err)
			}

			if d.IsDir() {
				if name != "." && excludes.match(name+"/") {
					return fs.SkipDir
				}
				return nil
			}

			if !include.match(name) || excludes.match(name) || seen[name] {
				return nil
			}

			seen[name] = true
			files = append(files, filepath.Join(s.root, filepath.FromSlash(name)))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	log.Debug().Int("count", len(files)).Strs("include", p.Include).Msg("scanned source files")

	return files, nil
}

// matcher matches a pattern where every "**/" segment may also match zero
// directories, so "**/*.js" matches files at the root and "a/**/b" matches "a/b".
type matcher []glob.Glob

func compile(pattern string) (matcher, error) {
	variants := expand(pattern)

	m := make(matcher, 0, len(variants))
	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrBadPattern, pattern, err)
		}
		m = append(m, g)
	}
	return m, nil
}

func expand(pattern string) []string {
	segments := strings.Split(pattern, "/")
	variants := [][]string{nil}

	for i, seg := range segments {
		next := make([][]string, 0, len(variants)*2)
		for _, v := range variants {
			next = append(next, append(slices.Clone(v), seg))
			if seg == "**" && i < len(segments)-1 {
				next = append(next, slices.Clone(v))
			}
		}
		variants = next
	}

	out := make([]string, 0, len(variants))
	for _, v := range variants {
		joined := strings.Join(v, "/")
		if !slices.Contains(out, joined) {
			out = append(out, joined)
		}
	}
	return out
}

func (m matcher) match(name string) bool {
	for _, g := range m {
		if g.Match(name) {
			return true
		}
	}
	return false
}

type matchers []matcher

func compileAll(patterns []string) (matchers, error) {
	ms := make(matchers, 0, len(patterns))
	for _, p := range patterns {
		m, err := compile(p)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func (ms matchers) match(name string) bool {
	for _, m := range ms {
		if m.match(name) {
			return true
		}
	}
	return false
}

// staticPrefix returns the leading directory of pattern that holds no glob
// syntax, or "." when the first segment is already a pattern.
func staticPrefix(pattern string) string {
	segments := strings.Split(pattern, "/")
	var static []string
	for _, seg := range segments[:len(segments)-1] {
		if strings.ContainsAny(seg, "*?[{\\") {
			break
		}
		static = append(static, seg)
	}
	if len(static) == 0 {
		return "."
	}
	return path.Join(static...)
}
