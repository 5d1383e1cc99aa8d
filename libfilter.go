package main

import (
	"path/filepath"
	"strings"
)

// LibraryFilter decides which catalog libraries the operator excluded
// from heuristic matching. Exact names are fastest, "prefix/" entries
// match by prefix, anything with metacharacters is a glob.
type LibraryFilter struct {
	exact    map[string]struct{}
	prefixes []string
	globs    []string
}

func NewLibraryFilter(patterns []string) *LibraryFilter {
	f := &LibraryFilter{
		exact: make(map[string]struct{}),
	}

	for _, pattern := range patterns {
		switch {
		case strings.ContainsAny(pattern, "*?[]"):
			f.globs = append(f.globs, pattern)
		case strings.HasSuffix(pattern, "/"):
			f.prefixes = append(f.prefixes, strings.TrimSuffix(pattern, "/"))
		default:
			f.exact[pattern] = struct{}{}
		}
	}

	return f
}

// Excludes reports whether the library name matches any exclusion
// pattern.
func (f *LibraryFilter) Excludes(library string) bool {
	if _, ok := f.exact[library]; ok {
		return true
	}

	for _, prefix := range f.prefixes {
		if strings.HasPrefix(library, prefix) {
			return true
		}
	}

	for _, pattern := range f.globs {
		matched, err := filepath.Match(pattern, library)
		if err == nil && matched {
			return true
		}
	}

	return false
}

// Empty reports whether no patterns were configured.
func (f *LibraryFilter) Empty() bool {
	return len(f.exact) == 0 && len(f.prefixes) == 0 && len(f.globs) == 0
}
