package flirt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ahocorasick "github.com/BobuSumisu/aho-corasick"

	"sigview/types"
)

// MaxTokenLen caps the length of library-identifying string tokens.
// Longer strings are unlikely to survive compiler string pooling intact
// and only bloat the automaton.
const MaxTokenLen = 70

// Catalog is the process-wide signature registry: which signatures exist
// per architecture, which signatures belong to which library, and which
// string tokens point at which libraries. It is populated once by
// LoadDirectory (or Add) before a pipeline run and read-only afterwards;
// the watcher serializes reloads through the same lock.
type Catalog struct {
	mu sync.RWMutex

	tokenToLibraries map[string]map[string]struct{}
	librarySigs      map[string][]types.Signature
	archSigs         map[string][]types.Signature

	trie       *ahocorasick.Trie
	trieTokens []string
	trieStale  bool

	log Logger
}

// signatureMeta is the sidecar JSON describing one pattern database.
type signatureMeta struct {
	Arch          string   `json:"arch"`
	OS            string   `json:"os"`
	Library       string   `json:"library"`
	Description   string   `json:"description"`
	UniqueStrings []string `json:"unique_strings"`
}

func NewCatalog(logger Logger) *Catalog {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Catalog{
		tokenToLibraries: make(map[string]map[string]struct{}),
		librarySigs:      make(map[string][]types.Signature),
		archSigs:         make(map[string][]types.Signature),
		log:              logger,
	}
}

// Add registers one signature and its library-identifying tokens. Tokens
// longer than MaxTokenLen are dropped here; the selector never sees them.
func (c *Catalog) Add(sig types.Signature, tokens []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sig.Arch = strings.ToLower(sig.Arch)
	sig.OS = strings.ToLower(sig.OS)

	c.librarySigs[sig.LibraryName] = append(c.librarySigs[sig.LibraryName], sig)
	c.archSigs[sig.Arch] = append(c.archSigs[sig.Arch], sig)

	for _, tok := range tokens {
		if len(tok) > MaxTokenLen {
			c.log.Debug("catalog", "Ignoring over-long token (%d bytes) for %s", len(tok), sig.LibraryName)
			continue
		}
		if tok == "" {
			continue
		}
		libs, ok := c.tokenToLibraries[tok]
		if !ok {
			libs = make(map[string]struct{})
			c.tokenToLibraries[tok] = libs
		}
		libs[sig.LibraryName] = struct{}{}
	}
	c.trieStale = true
}

// Empty reports whether the catalog has no signatures at all.
func (c *Catalog) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.archSigs) == 0
}

// SignaturesForArch returns all known signatures for arch
// (case-insensitive), in catalog order.
func (c *Catalog) SignaturesForArch(arch string) []types.Signature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sigs := c.archSigs[strings.ToLower(arch)]
	out := make([]types.Signature, len(sigs))
	copy(out, sigs)
	return out
}

// SignaturesForLibrary returns the signatures of one library, in catalog
// order, across all architectures.
func (c *Catalog) SignaturesForLibrary(lib string) []types.Signature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sigs := c.librarySigs[lib]
	out := make([]types.Signature, len(sigs))
	copy(out, sigs)
	return out
}

// LibrariesForToken returns the names of the libraries associated with a
// string token.
func (c *Catalog) LibrariesForToken(token string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	libs := make([]string, 0, len(c.tokenToLibraries[token]))
	for lib := range c.tokenToLibraries[token] {
		libs = append(libs, lib)
	}
	sort.Strings(libs)
	return libs
}

// Tokens returns all known string tokens, sorted.
func (c *Catalog) Tokens() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	toks := make([]string, 0, len(c.tokenToLibraries))
	for tok := range c.tokenToLibraries {
		toks = append(toks, tok)
	}
	sort.Strings(toks)
	return toks
}

// tokenAutomaton returns the Aho-Corasick automaton over all tokens and
// the token list in automaton pattern order. Rebuilt only after the
// catalog changed.
func (c *Catalog) tokenAutomaton() (*ahocorasick.Trie, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.trieStale || c.trie == nil {
		toks := make([]string, 0, len(c.tokenToLibraries))
		for tok := range c.tokenToLibraries {
			toks = append(toks, tok)
		}
		sort.Strings(toks)
		c.trieTokens = toks
		c.trie = ahocorasick.NewTrieBuilder().AddStrings(toks).Build()
		c.trieStale = false
	}
	return c.trie, c.trieTokens
}

// LoadDirectory walks dir and registers every pattern database that has a
// sidecar metadata file: for foo.pat the loader reads foo.json with the
// signature's arch, os, library name and unique strings. Databases
// without metadata are ignored with a diagnostic.
func (c *Catalog) LoadDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf(`signature directory %q does not exist.
Either:
1. Create a 'signatures' subdirectory and add .pat databases with .json metadata
2. Use --sig-dir to specify your signature directory location`, dir)
	}

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".pat" {
			return nil
		}
		if err := c.loadSignatureFile(path); err != nil {
			c.log.Warning("catalog", "Skipping signature %s: %v", path, err)
		}
		return nil
	})
}

// loadSignatureFile registers one pattern database from its sidecar
// metadata.
func (c *Catalog) loadSignatureFile(path string) error {
	metaPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	content, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("no metadata for %s: %v", path, err)
	}

	var meta signatureMeta
	if err := json.Unmarshal(content, &meta); err != nil {
		return fmt.Errorf("failed to parse metadata %s: %v", metaPath, err)
	}
	if meta.Arch == "" || meta.Library == "" {
		return fmt.Errorf("metadata %s is missing arch or library", metaPath)
	}

	sig := types.Signature{
		Arch:        meta.Arch,
		OS:          meta.OS,
		LibraryName: meta.Library,
		Path:        path,
		Description: meta.Description,
	}
	c.Add(sig, meta.UniqueStrings)
	c.log.Info("catalog", "Loaded signature %s (%s, %s)", meta.Library, sig.Arch, path)
	return nil
}

// removeByPath drops every signature loaded from path. Used by the
// watcher when a database disappears.
func (c *Catalog) removeByPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	filter := func(sigs []types.Signature) []types.Signature {
		out := sigs[:0]
		for _, s := range sigs {
			if s.Path != path {
				out = append(out, s)
			}
		}
		return out
	}
	var gone []string
	for lib, sigs := range c.librarySigs {
		if kept := filter(sigs); len(kept) > 0 {
			c.librarySigs[lib] = kept
		} else {
			delete(c.librarySigs, lib)
			gone = append(gone, lib)
		}
	}
	for arch, sigs := range c.archSigs {
		if kept := filter(sigs); len(kept) > 0 {
			c.archSigs[arch] = kept
		} else {
			delete(c.archSigs, arch)
		}
	}

	// a library with no signatures left must stop collecting token hits
	for _, lib := range gone {
		for tok, libs := range c.tokenToLibraries {
			delete(libs, lib)
			if len(libs) == 0 {
				delete(c.tokenToLibraries, tok)
			}
		}
	}
	if len(gone) > 0 {
		c.trieStale = true
	}
}
