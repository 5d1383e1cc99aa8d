package flirt

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCatalogWatcherReload(t *testing.T) {
	dir := t.TempDir()
	catalog := NewCatalog(nil)

	cw, err := NewCatalogWatcher(catalog, dir, nil)
	if err != nil {
		t.Fatalf("NewCatalogWatcher: %v", err)
	}
	defer cw.Close()

	// metadata first so the database load can resolve it
	if err := os.WriteFile(filepath.Join(dir, "zlib.json"),
		[]byte(`{"arch":"x86","library":"zlib","unique_strings":["inflate"]}`), 0644); err != nil {
		t.Fatal(err)
	}
	patPath := filepath.Join(dir, "zlib.pat")
	if err := os.WriteFile(patPath, []byte("5589e5 0 inflate\n"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		return len(catalog.SignaturesForArch("x86")) == 1
	}, "catalog never picked up the new signature")

	select {
	case <-cw.Changed():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after loading a signature")
	}

	if err := os.Remove(patPath); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		return catalog.Empty()
	}, "catalog kept the signature after its database was removed")

	select {
	case <-cw.Changed():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after removing a signature")
	}

	if got := catalog.LibrariesForToken("inflate"); len(got) != 0 {
		t.Errorf("stale token mapping after removal: %v", got)
	}
}
