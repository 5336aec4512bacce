package library

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

// DefaultDebounce is how long a container must stay quiet before it is
// re-indexed.
const DefaultDebounce = 500 * time.Millisecond

// Action is what the watcher did in response to a change.
type Action string

const (
	ActionIndexed Action = "indexed"
	ActionRemoved Action = "removed"
	ActionFailed  Action = "failed"
)

// Event reports one index update.
type Event struct {
	Path   string `json:"path"`
	Action Action `json:"action"`
	Err    error  `json:"-"`
}

// Watcher keeps the index in step with a directory tree.
type Watcher struct {
	indexer  *Indexer
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	paths   map[string]bool
	pending map[string]*time.Timer
	closed  bool

	ctx     context.Context
	onEvent func(Event)
}

// NewWatcher creates a Watcher that re-indexes through ix. A debounce of
// zero or less uses DefaultDebounce.
func NewWatcher(ix *Indexer, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		indexer:  ix,
		watcher:  fsw,
		debounce: debounce,
		paths:    make(map[string]bool),
		pending:  make(map[string]*time.Timer),
		ctx:      context.Background(),
	}, nil
}

// Watch adds root and every directory below it. Symlinks are not followed.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	info, err := os.Lstat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.ErrInvalid
	}

	return w.addTree(absRoot)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return w.addWatch(path)
		}
		return nil
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		w.indexer.log.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

// Watched reports whether dir is being watched.
func (w *Watcher) Watched(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[dir]
}

// Run processes filesystem events until ctx is done. onEvent may be nil;
// otherwise it is called from timer goroutines and must be safe for
// concurrent use.
func (w *Watcher) Run(ctx context.Context, onEvent func(Event)) {
	w.mu.Lock()
	w.ctx = ctx
	w.onEvent = onEvent
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.indexer.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create != 0:
		w.handleCreate(event.Name)
	case event.Op&fsnotify.Write != 0:
		w.handleWrite(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename's new name arrives as its own create.
		w.handleRemove(event.Name)
	}
}

func (w *Watcher) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return
	}
	if info.IsDir() {
		_ = w.addTree(path)
		// Containers copied in with the directory produce no events of
		// their own.
		_ = filepath.WalkDir(path, func(sub string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // unreadable entries are skipped
			}
			info, err := d.Info()
			if err == nil && IsContainer(sub, info) {
				w.schedule(sub)
				if d.IsDir() {
					return filepath.SkipDir
				}
			}
			return nil
		})
		return
	}
	w.handleWrite(path)
}

func (w *Watcher) handleWrite(path string) {
	if target := w.containerFor(path); target != "" {
		w.schedule(target)
	}
}

func (w *Watcher) handleRemove(path string) {
	w.mu.Lock()
	for watched := range w.paths {
		if watched == path || isSubPath(watched, path) {
			_ = w.watcher.Remove(watched)
			delete(w.paths, watched)
		}
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if filepath.Base(path) == manifest.Filename {
		w.remove(filepath.Dir(path))
		return
	}

	w.remove(path)

	// A page leaving a folder container changes its listing.
	if target := w.containerFor(filepath.Dir(path)); target != "" {
		w.schedule(target)
	}
}

// containerFor maps a changed path to the container that owns it: the path
// itself for container files, else the nearest enclosing folder with a
// manifest.
func (w *Watcher) containerFor(path string) string {
	if info, err := os.Lstat(path); err == nil && !info.IsDir() && IsContainer(path, info) {
		return path
	}

	dir := path
	if !w.Watched(path) {
		dir = filepath.Dir(path)
	}
	for {
		if !w.Watched(dir) {
			return ""
		}
		if _, err := os.Stat(filepath.Join(dir, manifest.Filename)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() { w.fire(path) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	closed := w.closed
	ctx := w.ctx
	w.mu.Unlock()

	if closed || ctx.Err() != nil {
		return
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		w.remove(path)
		return
	}
	if err != nil || !IsContainer(path, info) {
		return
	}

	if _, err := w.indexer.IndexPath(ctx, path); err != nil {
		w.indexer.log.Warn("re-index failed", "path", path, "error", err)
		w.emit(Event{Path: path, Action: ActionFailed, Err: err})
		return
	}
	w.emit(Event{Path: path, Action: ActionIndexed})
}

func (w *Watcher) remove(path string) {
	if _, err := w.indexer.Store().Get(path); err != nil {
		// Nothing indexed at path itself; children may still be.
		_ = w.indexer.Remove(path)
		return
	}
	if err := w.indexer.Remove(path); err != nil {
		w.emit(Event{Path: path, Action: ActionFailed, Err: err})
		return
	}
	w.emit(Event{Path: path, Action: ActionRemoved})
}

func (w *Watcher) emit(e Event) {
	w.mu.Lock()
	fn := w.onEvent
	w.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// Close stops watching and cancels pending re-indexes.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	w.mu.Unlock()

	w.stopTimers()
	return w.watcher.Close()
}

func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
