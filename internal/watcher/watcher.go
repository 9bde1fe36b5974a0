package watcher

// Package watcher provides a recursive, debounced file system watcher over
// the footage drop directory. Create and Write events for a file are
// coalesced until the file has been quiet for the debounce window, so
// half-copied videos never enter the upload queue.

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher handles the file system events using fsnotify.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	debounce   time.Duration
	callback   func(string)
	extensions map[string]bool // lower-cased; empty allows everything
	log        *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// NewWatcher creates a recursive watcher on root. eventCallback fires once a
// detected file has been quiet for the debounce window. extensions filters
// which files are considered footage (nil or empty accepts everything).
func NewWatcher(root string, debounce time.Duration, extensions []string, eventCallback func(string), logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		fsWatcher:  fs,
		debounce:   debounce,
		callback:   eventCallback,
		extensions: make(map[string]bool, len(extensions)),
		log:        logger,
		pending:    make(map[string]*time.Timer),
	}
	for _, ext := range extensions {
		w.extensions[strings.ToLower(ext)] = true
	}

	go w.loop()

	if err := w.AddRecursive(root); err != nil {
		fs.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					// New directory: watch it too.
					if err := w.AddRecursive(event.Name); err != nil {
						w.log.Error("Watcher: failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.touch(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Error("Watcher: fs event error", "error", err)
		}
	}
}

// touch (re)arms the debounce timer for a file. The callback only runs once
// the file has stopped changing for the full window.
func (w *Watcher) touch(path string) {
	if !w.accepts(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		w.callback(path)
	})
}

func (w *Watcher) accepts(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

// AddRecursive adds the given path and all its sub-directories to the watcher.
func (w *Watcher) AddRecursive(path string) error {
	return filepath.Walk(path, func(newPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			w.log.Debug("Watching", "path", newPath)
			return w.fsWatcher.Add(newPath)
		}
		return nil
	})
}

// Close shuts down the watcher and drops all pending debounce timers.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.fsWatcher.Close()
}
