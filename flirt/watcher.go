package flirt

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// CatalogWatcher keeps a Catalog in sync with its signature directory:
// new or rewritten databases are picked up, removed ones are dropped.
type CatalogWatcher struct {
	catalog *Catalog
	dir     string
	watcher *fsnotify.Watcher
	log     Logger
	done    chan struct{}
	changed chan struct{}
}

// NewCatalogWatcher starts watching dir recursively. The catalog should
// already be loaded from the same directory.
func NewCatalogWatcher(catalog *Catalog, dir string, logger Logger) (*CatalogWatcher, error) {
	if logger == nil {
		logger = nopLogger{}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %v", err)
	}

	cw := &CatalogWatcher{
		catalog: catalog,
		dir:     dir,
		watcher: watcher,
		log:     logger,
		done:    make(chan struct{}),
		changed: make(chan struct{}, 1),
	}

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to setup recursive watching: %v", err)
	}

	go cw.watch()
	return cw, nil
}

func (cw *CatalogWatcher) watch() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			ext := filepath.Ext(event.Name)
			if ext != ".pat" && ext != ".json" {
				continue
			}
			cw.log.Info("catalog", "Signature change detected: %s", event.Name)

			// Metadata and database travel as a pair; resolve the event
			// back to the database path.
			patPath := event.Name
			if ext == ".json" {
				patPath = event.Name[:len(event.Name)-len(ext)] + ".pat"
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				cw.catalog.removeByPath(patPath)
				if err := cw.catalog.loadSignatureFile(patPath); err != nil {
					cw.log.Warning("catalog", "Error loading changed signature %s: %v", patPath, err)
					continue
				}
				cw.notify()
			} else if event.Op&fsnotify.Remove != 0 {
				cw.catalog.removeByPath(patPath)
				cw.notify()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warning("catalog", "Error watching signature directory: %v", err)

		case <-cw.done:
			return
		}
	}
}

// notify signals a catalog change without blocking; consecutive changes
// between reads coalesce into one signal.
func (cw *CatalogWatcher) notify() {
	select {
	case cw.changed <- struct{}{}:
	default:
	}
}

// Changed signals once after one or more catalog updates. Consumers
// re-read the catalog on receive.
func (cw *CatalogWatcher) Changed() <-chan struct{} {
	return cw.changed
}

func (cw *CatalogWatcher) Close() error {
	close(cw.done)
	return cw.watcher.Close()
}
