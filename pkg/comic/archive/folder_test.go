package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

func TestFolderListAndRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"02.PNG":          "two",
		"01.jpg":          "one",
		"notes.md":        "skip",
		"nested/03.jpg":   "not a direct child",
		manifest.Filename: "version = 1\n",
	})

	f, err := NewFolder(dir)
	require.NoError(t, err)
	assert.Equal(t, KindFolder, f.Kind())

	names, err := f.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"01.jpg", "02.PNG"}, names)

	data, err := f.ReadImageByName(context.Background(), "01.jpg")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	for _, bad := range []string{"missing.jpg", "nested/03.jpg", "../01.jpg", ""} {
		_, err = f.ReadImageByName(context.Background(), bad)
		assert.True(t, errors.Is(err, ErrNotFound), "%q: %v", bad, err)
	}
}

func TestNewFolderErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewFolder(filepath.Join(dir, "absent"))
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	file := filepath.Join(dir, "file.jpg")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewFolder(file)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
}

func TestFolderManifestRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f, err := NewFolder(dir)
	require.NoError(t, err)

	_, err = f.ReadManifest(context.Background())
	assert.True(t, errors.Is(err, ErrManifest), "got %v", err)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	m := manifest.Default()
	m.Meta.Author = "Someone"
	require.NoError(t, f.WriteManifest(context.Background(), m))

	got, err := f.ReadManifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, m, got)

	assert.Zero(t, countTempFiles(t, dir))

	info, err := os.Stat(filepath.Join(dir, manifest.Filename))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFolderWriteManifestIgnoresStaleTempName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.jpg": "A"})
	// An unrelated entry named manifest.toml.tmp must not block writes.
	stale := filepath.Join(dir, manifest.Filename+".tmp")
	require.NoError(t, os.Mkdir(stale, 0o755))

	f, err := NewFolder(dir)
	require.NoError(t, err)

	for _, title := range []string{"One", "Two"} {
		m := manifest.Default()
		m.Meta.Title = title
		require.NoError(t, f.WriteManifest(context.Background(), m))
	}

	got, err := f.ReadManifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Two", got.Meta.Title)

	info, err := os.Stat(stale)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, 1, countTempFiles(t, dir), "only the stale entry remains")
}

func TestFolderInvalidManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{manifest.Filename: "version = [broken"})

	f, err := NewFolder(dir)
	require.NoError(t, err)

	_, err = f.ReadManifest(context.Background())
	assert.True(t, errors.Is(err, ErrManifest), "got %v", err)
	assert.True(t, errors.Is(err, manifest.ErrInvalid), "got %v", err)
}
