package server

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileEvent is one debounced filesystem event: an absolute path and the
// union of the operations observed for it during the debounce window.
type FileEvent struct {
	Path string
	Op   fsnotify.Op
}

// WatchRoot is a directory the watcher monitors. Non-recursive roots only
// report their direct children; the site root is watched that way so config
// edits are seen without pulling in the output tree.
type WatchRoot struct {
	Path      string
	Recursive bool
}

const (
	defaultDebounce = 100 * time.Millisecond
	watcherRetries  = 3
)

// Watcher monitors the site's source roots and emits debounced event
// batches. fsnotify does not recurse, so directories are registered
// individually, including ones created while watching. A crashed watcher is
// restarted with exponential backoff before the failure is surfaced.
type Watcher struct {
	roots    []WatchRoot
	ignore   []string
	debounce time.Duration
	log      *slog.Logger

	fsw     *fsnotify.Watcher
	batches chan []FileEvent
	done    chan struct{}
	once    sync.Once
}

// NewWatcher creates a watcher over the given roots. Paths under any ignore
// prefix are never reported.
func NewWatcher(roots []WatchRoot, ignore []string, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		roots:    roots,
		ignore:   ignore,
		debounce: defaultDebounce,
		log:      log,
		batches:  make(chan []FileEvent, 64),
		done:     make(chan struct{}),
	}
}

// Batches returns the channel debounced event batches arrive on.
func (w *Watcher) Batches() <-chan []FileEvent { return w.batches }

// Start watches until Stop is called. A watcher that dies is restarted up to
// three times with doubling backoff; after that the last error is returned.
func (w *Watcher) Start() error {
	backoff := 500 * time.Millisecond
	var err error
	for attempt := 0; attempt <= watcherRetries; attempt++ {
		if attempt > 0 {
			w.log.Warn("watcher restarting", "attempt", attempt, "error", err)
			select {
			case <-time.After(backoff):
			case <-w.done:
				return nil
			}
			backoff *= 2
		}
		if err = w.run(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("watcher failed after %d restarts: %w", watcherRetries, err)
}

// Stop signals the watcher to shut down.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.done) })
}

func (w *Watcher) run() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()
	w.fsw = fsw

	for _, root := range w.roots {
		if _, err := os.Stat(root.Path); err != nil {
			// Optional roots (assets/, data/) may not exist yet.
			continue
		}
		if root.Recursive {
			if err := w.addRecursive(root.Path); err != nil {
				w.log.Warn("watching directory", "path", root.Path, "error", err)
			}
		} else if err := fsw.Add(root.Path); err != nil {
			w.log.Warn("watching directory", "path", root.Path, "error", err)
		}
	}

	pending := make(map[string]fsnotify.Op)
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			if w.skip(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 && w.underRecursiveRoot(ev.Name) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(ev.Name)
				}
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[ev.Name] |= ev.Op
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			select {
			case w.batches <- flatten(pending):
				pending = make(map[string]fsnotify.Op)
			default:
				// Consumer is behind; keep accumulating and retry.
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("error stream closed")
			}
			w.log.Warn("watcher error", "error", err)

		case <-w.done:
			return nil
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || w.skip(path) {
			return nil
		}
		return w.fsw.Add(path)
	})
}

// skip filters ignored prefixes (output tree, build cache) and editor
// droppings.
func (w *Watcher) skip(path string) bool {
	for _, prefix := range w.ignore {
		if path == prefix || strings.HasPrefix(path, prefix+string(os.PathSeparator)) {
			return true
		}
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return true
	}
	switch filepath.Ext(base) {
	case ".swp", ".swx", ".swo", ".tmp":
		return true
	}
	return false
}

func (w *Watcher) underRecursiveRoot(path string) bool {
	for _, root := range w.roots {
		if !root.Recursive {
			continue
		}
		if strings.HasPrefix(path, root.Path+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func flatten(pending map[string]fsnotify.Op) []FileEvent {
	batch := make([]FileEvent, 0, len(pending))
	for path, op := range pending {
		batch = append(batch, FileEvent{Path: path, Op: op})
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	return batch
}
