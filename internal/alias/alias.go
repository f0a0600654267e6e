// Package alias maps logical module names to concrete files and swaps
// minified targets for their unminified siblings in development builds.
package alias

import (
	"os"
	"regexp"
	"sort"

	"github.com/rs/zerolog/log"
)

// Table maps a logical module name, such as "angular", to a file or
// directory on disk.
type Table map[string]string

// Mode is the part of the build mode alias resolution depends on.
type Mode interface {
	IsDevelopment() bool
}

// ExistsFunc reports whether a path exists.
type ExistsFunc func(path string) bool

var minSuffix = regexp.MustCompile(`[.-]min`)

// Unminified returns path with its first ".min" or "-min" removed.
func Unminified(path string) string {
	loc := minSuffix.FindStringIndex(path)
	if loc == nil {
		return path
	}
	return path[:loc[0]] + path[loc[1]:]
}

// Resolve returns the table to build with. Outside development the input is
// returned as a copy. In development every target with an unminified sibling
// that exists is replaced by that sibling; other targets are kept as is.
func Resolve(mode Mode, table Table, exists ExistsFunc) Table {
	out := make(Table, len(table))
	for name, target := range table {
		out[name] = target
	}

	if !mode.IsDevelopment() {
		return out
	}

	for _, name := range table.Names() {
		minified := table[name]
		unminified := Unminified(minified)
		if unminified == minified {
			continue
		}
		if !exists(unminified) {
			log.Debug().Str("alias", name).Str("path", unminified).Msg("unminified alias target missing, keeping minified")
			continue
		}
		out[name] = unminified
	}

	return out
}

// Names returns the alias names sorted longest first, so that a more
// specific name such as "ace/mode-sql" is tried before "ace".
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}

// FileExists is an ExistsFunc backed by the local filesystem.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
