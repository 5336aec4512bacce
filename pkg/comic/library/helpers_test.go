package library

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/index"
)

func pngPage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 12))
	for y := range 12 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// writeCBZ writes a zip container holding the named PNG pages. The file is
// built beside path and renamed into place so watchers see it complete.
func writeCBZ(t *testing.T, path string, pages ...string) {
	t.Helper()

	tmp := filepath.Join(filepath.Dir(path), ".staging")
	f, err := os.Create(tmp)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	data := pngPage(t)
	for _, name := range pages {
		hw, err := w.Create(name)
		require.NoError(t, err)
		_, err = hw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	require.NoError(t, os.Rename(tmp, path))
}

// writeFolder creates a folder container with a manifest and the named pages.
func writeFolder(t *testing.T, dir string, pages ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.toml"), []byte("version = 1\n\n[meta]\ntitle = \"Folder\"\n"), 0o644))
	data := pngPage(t)
	for _, name := range pages {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
}

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	store, err := index.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewIndexer(store, WithRetry(archive.RetryPolicy{Attempts: 1}))
}

// resolved returns dir with symlinks evaluated, matching what the scanner
// records on systems with a symlinked temp dir.
func resolved(t *testing.T, dir string) string {
	t.Helper()
	r, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return r
}
