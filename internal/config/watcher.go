package config

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a YAML config file and dispatches reload callbacks.
// Editors and config-management tools often replace the file rather than
// write in place, so the watcher observes the parent directory and matches
// on the file name.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, callback func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Call Stop() to clean up.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop()
	log.Printf("config: watching %s for changes", w.path)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 && filepath.Base(evt.Name) == filepath.Base(w.path) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)
		}
	}
}

// reload re-reads the config file. A file that is mid-write or invalid is
// skipped; the previous configuration stays in effect.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("WARNING: config reload skipped: %v", err)
		return
	}
	if w.callback != nil {
		w.callback(cfg)
	}
}
