package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

func TestOpenDispatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	zipPath := filepath.Join(dir, "a.CBZ")
	writeZip(t, zipPath, []zipEntry{{name: "1.jpg", data: "x"}})

	folder := filepath.Join(dir, "folder")
	writeTree(t, folder, map[string]string{"1.jpg": "x"})

	tarPath := filepath.Join(dir, "a.tar")
	require.NoError(t, os.WriteFile(tarPath, nil, 0o644))

	rarPath := filepath.Join(dir, "a.cbr")
	require.NoError(t, os.WriteFile(rarPath, nil, 0o644))

	sevenPath := filepath.Join(dir, "a.7z")
	require.NoError(t, os.WriteFile(sevenPath, nil, 0o644))

	ctx := context.Background()

	h, err := Open(ctx, zipPath)
	require.NoError(t, err)
	assert.Equal(t, KindZip, h.Kind())
	require.NoError(t, h.Close())

	h, err = Open(ctx, folder)
	require.NoError(t, err)
	assert.Equal(t, KindFolder, h.Kind())
	require.NoError(t, h.Close())

	h, err = Open(ctx, rarPath, WithRunner(rarFake(map[string]string{})), WithScratchDir(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, KindRar, h.Kind())
	require.NoError(t, h.Close())

	h, err = Open(ctx, sevenPath, WithRunner(sevenZipFake(map[string]string{"1.jpg": "x"})), WithScratchDir(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, KindSevenZip, h.Kind())
	require.NoError(t, h.Close())

	_, err = Open(ctx, tarPath)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)

	_, err = Open(ctx, rarPath, WithRar(false))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)

	_, err = Open(ctx, filepath.Join(dir, "missing.cbz"))
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestOpenDefaultsManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"1.jpg": "x", manifest.Filename: "not = [valid"})

	h, err := Open(context.Background(), dir)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, manifest.Default(), h.Manifest())

	// The strict read surfaces the problem.
	_, err = h.ReadManifest(context.Background())
	assert.True(t, errors.Is(err, ErrManifest), "got %v", err)
}

func TestOpenWrapsWebArchive(t *testing.T) {
	t.Parallel()

	srv := pageServer(t)
	path := filepath.Join(t.TempDir(), "remote.cbz")
	require.NoError(t, CreateWebArchive(path, []string{srv.URL + "/1.png"}))

	h, err := Open(context.Background(), path, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, KindWeb, h.Kind())
	assert.True(t, h.Manifest().Meta.WebArchive)

	names, err := h.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/1.png"}, names)

	data, err := h.ReadImageByIndex(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "page-one", string(data))
}

func TestCreateWebArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "web.cbz")
	require.NoError(t, CreateWebArchive(path, []string{"https://example.com/a.png"}))

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	require.Len(t, r.File, 1)
	assert.Equal(t, manifest.Filename, r.File[0].Name)
	require.NoError(t, r.Close())

	err = CreateWebArchive(path, []string{"https://example.com/b.png"})
	assert.True(t, errors.Is(err, ErrIO), "existing file is not overwritten: %v", err)

	err = CreateWebArchive(filepath.Join(dir, "empty.cbz"), nil)
	assert.True(t, errors.Is(err, ErrManifest), "got %v", err)
}

func TestReadImageByIndex(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "comic.zip")
	writeZip(t, path, []zipEntry{
		{name: "b.png", data: "B"},
		{name: "a.jpg", data: "A"},
	})

	h, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer h.Close()

	data, err := h.ReadImageByIndex(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))

	data, err = h.ReadImageByIndex(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "B", string(data))

	for _, i := range []int{-1, 2, 100} {
		_, err = h.ReadImageByIndex(context.Background(), i)
		assert.True(t, errors.Is(err, ErrIndexOutOfBounds), "index %d: %v", i, err)
	}
}

func TestEditManifest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "comic.cbz")
	writeZip(t, path, []zipEntry{
		{name: "a.jpg", data: "A"},
		{name: manifest.Filename, data: "version = 1\n[meta]\ntitle = \"Before\"\n"},
	})

	h, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, "Before", h.Manifest().Meta.Title)

	err = h.EditManifest(context.Background(), func(m *manifest.Manifest) error {
		m.Meta.Title = "After"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "After", h.Manifest().Meta.Title)

	stored, err := h.ReadManifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "After", stored.Meta.Title)

	boom := errors.New("boom")
	err = h.EditManifest(context.Background(), func(*manifest.Manifest) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "After", h.Manifest().Meta.Title)
}

func TestEditManifestStartsFromDefault(t *testing.T) {
	t.Parallel()

	zipPath := filepath.Join(t.TempDir(), "comic.cbz")
	writeZip(t, zipPath, []zipEntry{{name: "a.jpg", data: "A"}})
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.jpg": "A"})

	for _, path := range []string{zipPath, dir} {
		h, err := Open(context.Background(), path)
		require.NoError(t, err)

		var seen *manifest.Manifest
		err = h.EditManifest(context.Background(), func(m *manifest.Manifest) error {
			seen = m.Clone()
			m.Meta.Title = "New"
			return nil
		})
		require.NoError(t, err, path)
		assert.Equal(t, manifest.Default(), seen, path)
		assert.Equal(t, "New", h.Manifest().Meta.Title)

		stored, err := h.ReadManifest(context.Background())
		require.NoError(t, err, path)
		assert.Equal(t, "New", stored.Meta.Title)

		names, err := h.ListImages(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"a.jpg"}, names)
		require.NoError(t, h.Close())
	}
}

func TestEditManifestRejectsInvalidManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.jpg": "A", manifest.Filename: "version = [broken"})

	h, err := Open(context.Background(), dir)
	require.NoError(t, err)
	defer h.Close()

	called := false
	err = h.EditManifest(context.Background(), func(*manifest.Manifest) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrManifest), "got %v", err)
	assert.False(t, called)

	data, err := os.ReadFile(filepath.Join(dir, manifest.Filename))
	require.NoError(t, err)
	assert.Equal(t, "version = [broken", string(data))
}

func TestHandleConcurrentReads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "comic.zip")
	writeZip(t, path, []zipEntry{{name: "a.jpg", data: "A"}, {name: "b.jpg", data: "B"}})

	h, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer h.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.ReadImageByIndex(context.Background(), i%2); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent read failed: %v", err)
	}
}

func TestHandleClosed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.jpg": "A"})

	h, err := Open(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err = h.ListImages(context.Background())
	assert.True(t, errors.Is(err, ErrIO), "got %v", err)
}

func TestOpenWithRetry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "arriving.cbz")

	go func() {
		time.Sleep(30 * time.Millisecond)
		tmp := filepath.Join(dir, "staging.zip")
		f, err := os.Create(tmp)
		if err != nil {
			return
		}
		w := zip.NewWriter(f)
		ew, _ := w.Create("a.jpg")
		_, _ = ew.Write([]byte("A"))
		_ = w.Close()
		_ = f.Close()
		_ = os.Rename(tmp, path)
	}()

	policy := RetryPolicy{Attempts: 50, Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond}
	h, err := OpenWithRetry(context.Background(), path, policy)
	require.NoError(t, err)
	defer h.Close()

	names, err := h.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg"}, names)
}

func TestOpenWithRetryStopsOnUnsupported(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "book.pdf")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	start := time.Now()
	policy := RetryPolicy{Attempts: 5, Initial: time.Second, Max: time.Second}
	_, err := OpenWithRetry(context.Background(), path, policy)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "unsupported formats are not retried")
}

func TestOpenWithRetryContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	policy := RetryPolicy{Attempts: 100, Initial: 5 * time.Millisecond, Max: 5 * time.Millisecond}
	_, err := OpenWithRetry(ctx, filepath.Join(t.TempDir(), "never.cbz"), policy)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, Retryable(ErrIO))
	assert.True(t, Retryable(ErrNotFound))
	assert.False(t, Retryable(ErrUnsupportedFormat))
	assert.False(t, Retryable(ErrManifest))
	assert.False(t, Retryable(errors.Join(ErrUnsupportedFormat, ErrIO)))
}
