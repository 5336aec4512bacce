package index

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pierrec/lz4/v4"
)

// FormatVersion is incremented when the encoded entry layout changes.
const FormatVersion = 1

// keyPrefix namespaces container records inside the database.
const keyPrefix = "container\x00"

// Entry is the indexed record of one container.
type Entry struct {
	Path       string
	Size       int64 // bytes; 0 for folders
	Mtime      int64 // UnixNano
	Kind       string
	Title      string
	Author     string
	WebArchive bool
	Pages      []string
	Thumbnail  []byte // JPEG, may be empty
	IndexedAt  int64  // UnixNano
}

// PageCount returns the number of pages.
func (e *Entry) PageCount() int { return len(e.Pages) }

// ModTime returns Mtime as a time.
func (e *Entry) ModTime() time.Time { return time.Unix(0, e.Mtime) }

// StatEntry fills Path, Size and Mtime from the filesystem.
func StatEntry(path string) (*Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	e := &Entry{Path: abs, Mtime: info.ModTime().UnixNano()}
	if !info.IsDir() {
		e.Size = info.Size()
	}
	return e, nil
}

// Encoded values start with a version byte and a codec byte, followed by the
// uvarint length of the gob payload and the (possibly compressed) payload.
const (
	codecRaw byte = 0
	codecLZ4 byte = 1
)

var errCorrupt = errors.New("corrupt index entry")

// Encode serializes the entry with gob and compresses it with LZ4 when that
// makes it smaller.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	raw := buf.Bytes()

	out := []byte{FormatVersion, codecRaw}
	out = binary.AppendUvarint(out, uint64(len(raw)))

	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(raw) {
		return append(out, raw...), nil
	}

	out[1] = codecLZ4
	return append(out, compressed[:n]...), nil
}

// Decode deserializes bytes produced by Encode into the entry.
func (e *Entry) Decode(data []byte) error {
	if len(data) < 2 || data[0] != FormatVersion {
		return errCorrupt
	}
	codec := data[1]
	size, n := binary.Uvarint(data[2:])
	if n <= 0 {
		return errCorrupt
	}
	payload := data[2+n:]

	switch codec {
	case codecRaw:
	case codecLZ4:
		raw := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return fmt.Errorf("%w: got %d bytes, expected %d", errCorrupt, read, size)
		}
		payload = raw
	default:
		return fmt.Errorf("%w: codec %d", errCorrupt, codec)
	}

	return gob.NewDecoder(bytes.NewReader(payload)).Decode(e)
}

// MakeKey returns the database key of a container path.
func MakeKey(path string) []byte {
	return []byte(keyPrefix + path)
}

// MakeKeyPrefix returns the prefix shared by all containers under dir.
func MakeKeyPrefix(dir string) []byte {
	if dir == "" {
		return []byte(keyPrefix)
	}
	return []byte(keyPrefix + filepath.Clean(dir) + string(filepath.Separator))
}

// ParseKey returns the container path of a key.
func ParseKey(key []byte) string {
	return string(bytes.TrimPrefix(key, []byte(keyPrefix)))
}
