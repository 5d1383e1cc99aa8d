package flirt

import (
	"iter"
	"sort"
	"strings"

	"sigview/types"
)

// Selector guesses which signature sets are plausibly present in a binary
// by scanning its loaded segments for library-identifying string tokens.
type Selector struct {
	catalog *Catalog
	log     Logger
}

func NewSelector(catalog *Catalog, logger Logger) *Selector {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Selector{catalog: catalog, log: logger}
}

// SignaturesByStrings ranks candidate libraries by token hit count and
// yields their signatures for arch, best-scoring library first. Each
// (token, region) containment counts once, no matter how often the token
// repeats inside the region. Signatures appearing under several matched
// libraries are yielded once per library; deduplication is deliberately
// not performed. The returned sequence is restartable.
func (s *Selector) SignaturesByStrings(regions [][]byte, arch string) iter.Seq[types.Signature] {
	libraryHits := make(map[string]int)

	trie, tokens := s.catalog.tokenAutomaton()
	for _, region := range regions {
		if len(region) == 0 {
			continue
		}
		seen := make(map[int64]struct{})
		for _, m := range trie.Match(region) {
			if _, dup := seen[m.Pattern()]; dup {
				continue
			}
			seen[m.Pattern()] = struct{}{}
			for _, lib := range s.catalog.LibrariesForToken(tokens[m.Pattern()]) {
				libraryHits[lib]++
			}
		}
	}

	// Rank by hit count; equal counts fall back to name order so the
	// result is reproducible for identical input.
	ranked := make([]string, 0, len(libraryHits))
	for lib := range libraryHits {
		ranked = append(ranked, lib)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if libraryHits[ranked[i]] != libraryHits[ranked[j]] {
			return libraryHits[ranked[i]] > libraryHits[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	for _, lib := range ranked {
		s.log.Debug("selector", "Library %s: %d string hits", lib, libraryHits[lib])
	}

	return func(yield func(types.Signature) bool) {
		for _, lib := range ranked {
			for _, sig := range s.catalog.SignaturesForLibrary(lib) {
				if !strings.EqualFold(sig.Arch, arch) {
					continue
				}
				if !yield(sig) {
					return
				}
			}
		}
	}
}
