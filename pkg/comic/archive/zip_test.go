package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

func TestZipListImages(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "comic.cbz")
	writeZip(t, path, []zipEntry{
		{name: "b.png", data: "png", method: zip.Store},
		{name: "notes.txt", data: "hello", method: zip.Deflate},
		{name: "a.jpg", data: "jpg", method: zip.Deflate},
	})

	z, err := NewZip(path)
	require.NoError(t, err)

	names, err := z.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.png"}, names)

	again, err := z.ListImages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, names, again)
}

func TestZipReadImageByName(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "comic.zip")
	writeZip(t, path, []zipEntry{{name: "a.jpg", data: "jpeg-bytes", method: zip.Deflate}})

	z, err := NewZip(path)
	require.NoError(t, err)

	data, err := z.ReadImageByName(context.Background(), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	_, err = z.ReadImageByName(context.Background(), "missing.jpg")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestNewZipErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := NewZip(filepath.Join(dir, "absent.zip"))
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	garbage := filepath.Join(dir, "garbage.zip")
	require.NoError(t, os.WriteFile(garbage, []byte("not a zip"), 0o644))
	_, err = NewZip(garbage)
	assert.True(t, errors.Is(err, ErrIO), "got %v", err)
}

func TestZipManifestMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plain.zip")
	writeZip(t, path, []zipEntry{{name: "a.jpg", data: "x"}})

	z, err := NewZip(path)
	require.NoError(t, err)

	_, err = z.ReadManifest(context.Background())
	assert.True(t, errors.Is(err, ErrManifest), "got %v", err)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestZipWriteManifestPreservesEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "comic.cbz")
	writeZip(t, path, []zipEntry{
		{name: "manifest.toml", data: "version = 1\n[meta]\ntitle = \"Old\"\n", method: zip.Deflate},
		{name: "01.jpg", data: "first page", method: zip.Store},
		{name: "02.png", data: "second page with some repeated repeated repeated text", method: zip.Deflate},
		{name: "extras/readme.txt", data: "readme", method: zip.Deflate},
	})

	before := rawEntries(t, path)

	z, err := NewZip(path)
	require.NoError(t, err)

	m := manifest.Default()
	m.Meta.Title = "New Title"
	m.Meta.Comments = []string{"rewritten"}
	require.NoError(t, z.WriteManifest(context.Background(), m))

	after := rawEntries(t, path)
	require.Len(t, after, len(before))

	// Non-manifest entries keep their order, method and compressed bytes.
	var kept []rawEntry
	for _, e := range before {
		if e.name != manifest.Filename {
			kept = append(kept, e)
		}
	}
	assert.Equal(t, kept, after[:len(kept)])
	assert.Equal(t, manifest.Filename, after[len(after)-1].name)

	got, err := z.ReadManifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "New Title", got.Meta.Title)
	assert.Equal(t, []string{"rewritten"}, got.Meta.Comments)

	assert.Zero(t, countTempFiles(t, dir))
}

func TestZipWriteManifestFailureLeavesOriginal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "comic.cbz")
	writeZip(t, path, []zipEntry{
		{name: "a.jpg", data: "aaa", method: zip.Deflate},
		{name: "b.png", data: "bbb", method: zip.Store},
	})

	original, err := os.ReadFile(path)
	require.NoError(t, err)

	z, err := NewZip(path)
	require.NoError(t, err)

	var sawTemp bool
	z.beforeReplace = func(tmp string) error {
		_, statErr := os.Stat(tmp)
		sawTemp = statErr == nil
		return errors.New("disk full")
	}

	err = z.WriteManifest(context.Background(), manifest.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO), "got %v", err)
	assert.True(t, sawTemp, "temp container should exist before replace")

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, current, "original must be byte-identical")
	assert.Zero(t, countTempFiles(t, dir), "temp container must be removed")
}

func TestZipWriteManifestCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "comic.zip")
	writeZip(t, path, []zipEntry{{name: "a.jpg", data: "aaa"}})
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	z, err := NewZip(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = z.WriteManifest(ctx, manifest.Default())
	assert.ErrorIs(t, err, context.Canceled)

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, current)
	assert.Zero(t, countTempFiles(t, dir))
}

type rawEntry struct {
	name   string
	method uint16
	crc    uint32
	raw    string
}

func rawEntries(t *testing.T, path string) []rawEntry {
	t.Helper()

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	out := make([]rawEntry, 0, len(r.File))
	for _, f := range r.File {
		rc, err := f.OpenRaw()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		out = append(out, rawEntry{name: f.Name, method: f.Method, crc: f.CRC32, raw: string(data)})
	}
	return out
}
