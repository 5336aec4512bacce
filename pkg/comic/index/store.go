// Package index persists per-container library records in Badger so repeat
// scans can skip containers that have not changed.
package index

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a container has no record.
var ErrNotFound = errors.New("index entry not found")

// Store wraps Badger for index operations.
type Store struct {
	db    *badger.DB
	owner string // PID file path; empty for in-memory stores
}

// OpenStore opens or creates an index at path. Only one process may hold an
// index; a second gets ErrLocked. Files left by a process that died while
// holding it are cleaned up first.
func OpenStore(path string) (*Store, error) {
	if err := recoverStale(path); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if isLockError(err) {
		return nil, fmt.Errorf("%w: %s: %w", ErrLocked, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	owner := ownerPath(path)
	if err := writeOwner(owner); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("writing %s: %w", owner, err)
	}
	return &Store{db: db, owner: owner}, nil
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.owner != "" {
		releaseOwner(s.owner)
	}
	return err
}

// Get returns the record for path.
func (s *Store) Get(path string) (*Entry, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(MakeKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.Decode)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores a record under entry.Path.
func (s *Store) Put(entry *Entry) error {
	value, err := entry.Encode()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MakeKey(entry.Path), value)
	})
}

// PutBatch stores several records in one write batch.
func (s *Store) PutBatch(entries []*Entry) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, entry := range entries {
		value, err := entry.Encode()
		if err != nil {
			return err
		}
		if err := wb.Set(MakeKey(entry.Path), value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Delete removes the record for path. Missing records are not an error.
func (s *Store) Delete(path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(MakeKey(path))
	})
}

// DeletePrefix removes every record under dir.
func (s *Store) DeletePrefix(dir string) error {
	prefix := MakeKeyPrefix(dir)

	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns every record under dir in key order. An empty dir lists all.
func (s *Store) List(dir string) ([]*Entry, error) {
	prefix := MakeKeyPrefix(dir)
	var entries []*Entry

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			if err := it.Item().Value(entry.Decode); err != nil {
				return fmt.Errorf("decoding %s: %w", ParseKey(it.Item().Key()), err)
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
