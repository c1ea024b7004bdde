package registry

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the capability catalog when its source file changes,
// swapping the new snapshot into the registry atomically. In-flight turns
// keep the snapshot they started with.
type Watcher struct {
	registry *Registry
	path     string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher starts watching the catalog file. The initial catalog must
// already be loaded; the watcher only handles subsequent changes.
func NewWatcher(r *Registry, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create catalog watcher: %w", err)
	}

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a direct file watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch catalog directory: %w", err)
	}

	w := &Watcher{
		registry: r,
		path:     path,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// loop applies catalog reloads until Close is called.
func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[registry] catalog watcher error: %v", err)
		}
	}
}

// reload parses the catalog and swaps it in. A broken file keeps the
// previous catalog active.
func (w *Watcher) reload() {
	descriptors, err := LoadCatalog(w.path)
	if err != nil {
		log.Printf("[registry] catalog reload skipped: %v", err)
		return
	}
	if err := w.registry.Replace(descriptors); err != nil {
		log.Printf("[registry] catalog reload skipped: %v", err)
		return
	}
	log.Printf("[registry] catalog reloaded: %d capabilities", len(descriptors))
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
