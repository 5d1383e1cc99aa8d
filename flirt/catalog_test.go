package flirt

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"sigview/types"
)

func TestCatalogAddAndLookup(t *testing.T) {
	c := NewCatalog(nil)
	if !c.Empty() {
		t.Error("new catalog should be empty")
	}

	c.Add(types.Signature{Arch: "AMD64", OS: "Linux", LibraryName: "zlib", Path: "zlib.pat"},
		[]string{"deflate 1.2.11", "inflate"})
	c.Add(types.Signature{Arch: "amd64", LibraryName: "openssl", Path: "openssl.pat"},
		[]string{"OpenSSL 1.1.1", "inflate"})
	c.Add(types.Signature{Arch: "armel", LibraryName: "zlib", Path: "zlib-arm.pat"},
		[]string{"deflate 1.2.11"})

	if c.Empty() {
		t.Error("catalog with signatures reports empty")
	}

	// arch lookup is case-insensitive and arch values are normalized
	sigs := c.SignaturesForArch("Amd64")
	if len(sigs) != 2 {
		t.Fatalf("SignaturesForArch(Amd64) = %d signatures, want 2", len(sigs))
	}
	for _, sig := range sigs {
		if sig.Arch != "amd64" {
			t.Errorf("stored arch %q, want normalized amd64", sig.Arch)
		}
	}

	if got := c.SignaturesForLibrary("zlib"); len(got) != 2 {
		t.Errorf("SignaturesForLibrary(zlib) = %d, want 2", len(got))
	}

	if got := c.LibrariesForToken("inflate"); !reflect.DeepEqual(got, []string{"openssl", "zlib"}) {
		t.Errorf("LibrariesForToken(inflate) = %v, want [openssl zlib]", got)
	}
	if got := c.LibrariesForToken("deflate 1.2.11"); !reflect.DeepEqual(got, []string{"zlib"}) {
		t.Errorf("LibrariesForToken(deflate 1.2.11) = %v, want [zlib]", got)
	}
}

func TestCatalogDropsOverlongTokens(t *testing.T) {
	c := NewCatalog(nil)

	atLimit := strings.Repeat("a", MaxTokenLen)
	overLimit := strings.Repeat("b", MaxTokenLen+1)
	c.Add(types.Signature{Arch: "x86", LibraryName: "libfoo", Path: "foo.pat"},
		[]string{atLimit, overLimit, ""})

	toks := c.Tokens()
	if len(toks) != 1 || toks[0] != atLimit {
		t.Errorf("Tokens() = %v, want only the %d-byte token", toks, MaxTokenLen)
	}
}

func TestCatalogLoadDirectory(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	write("zlib.pat", "789c....0100 0 deflate\n")
	write("zlib.json", `{"arch":"x86","os":"linux","library":"zlib","unique_strings":["deflate 1.2.11","inflate"]}`)

	// database without metadata gets skipped, not fatal
	write("orphan.pat", "90909090 0 nop_sled\n")

	// metadata missing required fields gets skipped too
	write("broken.pat", "cc 0 trap\n")
	write("broken.json", `{"os":"linux"}`)

	c := NewCatalog(nil)
	if err := c.LoadDirectory(dir); err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}

	sigs := c.SignaturesForArch("x86")
	if len(sigs) != 1 {
		t.Fatalf("loaded %d signatures, want 1", len(sigs))
	}
	if sigs[0].LibraryName != "zlib" || sigs[0].OS != "linux" {
		t.Errorf("loaded %+v, want zlib/linux", sigs[0])
	}
	if sigs[0].Path != filepath.Join(dir, "zlib.pat") {
		t.Errorf("signature path = %q", sigs[0].Path)
	}
	if got := c.Tokens(); len(got) != 2 {
		t.Errorf("Tokens() = %v, want 2 tokens", got)
	}
}

func TestCatalogLoadDirectoryMissing(t *testing.T) {
	c := NewCatalog(nil)
	if err := c.LoadDirectory("/nonexistent/signatures"); err == nil {
		t.Fatal("LoadDirectory succeeded on a missing directory")
	}
}

func TestCatalogRemoveByPath(t *testing.T) {
	c := NewCatalog(nil)
	c.Add(types.Signature{Arch: "x86", LibraryName: "zlib", Path: "a.pat"}, []string{"inflate"})
	c.Add(types.Signature{Arch: "x86", LibraryName: "zlib", Path: "b.pat"}, []string{"inflate"})

	c.removeByPath("a.pat")
	if got := c.SignaturesForLibrary("zlib"); len(got) != 1 || got[0].Path != "b.pat" {
		t.Errorf("after remove: %v, want only b.pat", got)
	}

	// zlib still has b.pat, so its tokens stay live
	if got := c.LibrariesForToken("inflate"); len(got) != 1 {
		t.Errorf("LibrariesForToken after partial removal = %v, want [zlib]", got)
	}

	c.removeByPath("b.pat")
	if !c.Empty() {
		t.Error("catalog not empty after removing every signature")
	}
	if got := c.SignaturesForLibrary("zlib"); len(got) != 0 {
		t.Errorf("SignaturesForLibrary after full removal = %v", got)
	}
	if got := c.LibrariesForToken("inflate"); len(got) != 0 {
		t.Errorf("token still credits a library with no signatures: %v", got)
	}
	if got := c.Tokens(); len(got) != 0 {
		t.Errorf("Tokens after full removal = %v, want none", got)
	}
}

func TestCatalogRemoveSharedToken(t *testing.T) {
	c := NewCatalog(nil)
	c.Add(types.Signature{Arch: "x86", LibraryName: "zlib", Path: "zlib.pat"}, []string{"inflate"})
	c.Add(types.Signature{Arch: "x86", LibraryName: "zlib-ng", Path: "zlib-ng.pat"}, []string{"inflate"})

	c.removeByPath("zlib.pat")
	if got := c.LibrariesForToken("inflate"); len(got) != 1 || got[0] != "zlib-ng" {
		t.Errorf("LibrariesForToken = %v, want [zlib-ng]", got)
	}
}
