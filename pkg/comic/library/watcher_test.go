package library

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/comicarc/pkg/comic/index"
)

const testDebounce = 50 * time.Millisecond

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) count(path string, action Action) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Path == path && e.Action == action {
			n++
		}
	}
	return n
}

func (l *eventLog) waitFor(t *testing.T, path string, action Action) {
	t.Helper()
	require.Eventually(t, func() bool { return l.count(path, action) > 0 },
		5*time.Second, 10*time.Millisecond, "no %s event for %s", action, path)
}

func startWatcher(t *testing.T, root string) (*Watcher, *eventLog) {
	t.Helper()

	w, err := NewWatcher(newTestIndexer(t), testDebounce)
	require.NoError(t, err)
	require.NoError(t, w.Watch(root))

	ctx, cancel := context.WithCancel(context.Background())
	log := &eventLog{}
	done := make(chan struct{})
	go func() {
		w.Run(ctx, log.add)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return w, log
}

func TestWatcherWatchAddsSubdirectories(t *testing.T) {
	root := resolved(t, t.TempDir())
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	w, err := NewWatcher(newTestIndexer(t), 0)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, DefaultDebounce, w.debounce)
	require.NoError(t, w.Watch(root))
	assert.True(t, w.Watched(root))
	assert.True(t, w.Watched(sub))

	file := filepath.Join(root, "x.cbz")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.ErrorIs(t, w.Watch(file), os.ErrInvalid)
}

func TestWatcherIndexesNewContainer(t *testing.T) {
	root := resolved(t, t.TempDir())
	w, log := startWatcher(t, root)

	path := filepath.Join(root, "new.cbz")
	writeCBZ(t, path, "1.png", "2.png")
	log.waitFor(t, path, ActionIndexed)

	entry, err := w.indexer.Store().Get(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.png", "2.png"}, entry.Pages)
}

func TestWatcherIndexesNewDirectory(t *testing.T) {
	root := resolved(t, t.TempDir())
	_, log := startWatcher(t, root)

	staging := filepath.Join(t.TempDir(), "series")
	writeFolder(t, filepath.Join(staging, "vol1"), "1.png")
	dest := filepath.Join(root, "series")
	require.NoError(t, os.Rename(staging, dest))

	log.waitFor(t, filepath.Join(dest, "vol1"), ActionIndexed)
}

func TestWatcherRemovesDeletedContainer(t *testing.T) {
	root := resolved(t, t.TempDir())
	path := filepath.Join(root, "old.cbz")
	writeCBZ(t, path, "1.png")

	w, log := startWatcher(t, root)
	_, err := w.indexer.IndexPath(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	log.waitFor(t, path, ActionRemoved)

	_, err = w.indexer.Store().Get(path)
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestWatcherReindexesFolderOnPageChange(t *testing.T) {
	root := resolved(t, t.TempDir())
	folder := filepath.Join(root, "book")
	writeFolder(t, folder, "1.png")

	w, log := startWatcher(t, root)
	require.True(t, w.Watched(folder))

	require.NoError(t, os.WriteFile(filepath.Join(folder, "2.png"), pngPage(t), 0o644))
	log.waitFor(t, folder, ActionIndexed)

	entry, err := w.indexer.Store().Get(folder)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.png", "2.png"}, entry.Pages)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := resolved(t, t.TempDir())
	path := filepath.Join(root, "burst.cbz")
	writeCBZ(t, path, "1.png")

	w, err := NewWatcher(newTestIndexer(t), testDebounce)
	require.NoError(t, err)
	defer w.Close()

	log := &eventLog{}
	w.onEvent = log.add

	for range 5 {
		w.schedule(path)
		time.Sleep(testDebounce / 5)
	}
	log.waitFor(t, path, ActionIndexed)
	time.Sleep(2 * testDebounce)
	assert.Equal(t, 1, log.count(path, ActionIndexed))
}

func TestWatcherContainerFor(t *testing.T) {
	root := resolved(t, t.TempDir())
	folder := filepath.Join(root, "book")
	writeFolder(t, folder, "1.png")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "plain"), 0o755))
	cbz := filepath.Join(root, "plain", "a.cbz")
	writeCBZ(t, cbz, "1.png")

	w, err := NewWatcher(newTestIndexer(t), testDebounce)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch(root))

	assert.Equal(t, cbz, w.containerFor(cbz))
	assert.Equal(t, folder, w.containerFor(filepath.Join(folder, "1.png")))
	assert.Equal(t, folder, w.containerFor(filepath.Join(folder, "manifest.toml")))
	assert.Equal(t, folder, w.containerFor(folder))
	assert.Empty(t, w.containerFor(filepath.Join(root, "plain", "notes.txt")))
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(newTestIndexer(t), testDebounce)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	w.schedule("/nowhere.cbz")
	assert.Empty(t, w.pending)
}

func TestIsSubPath(t *testing.T) {
	tests := []struct {
		path, parent string
		want         bool
	}{
		{"/a/b", "/a", true},
		{"/a/b/c", "/a", true},
		{"/a", "/a", false},
		{"/ab", "/a", false},
		{"/b", "/a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isSubPath(tt.path, tt.parent), "%s under %s", tt.path, tt.parent)
	}
}
