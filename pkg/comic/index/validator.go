package index

import (
	"errors"
	"io/fs"
)

// Validator compares stored records with the filesystem.
type Validator struct {
	store *Store
}

// NewValidator creates a validator over store.
func NewValidator(store *Store) *Validator {
	return &Validator{store: store}
}

// Fresh reports whether path has a record whose size and mtime still match
// the file. Unindexed paths are not fresh.
func (v *Validator) Fresh(path string) (bool, error) {
	current, err := StatEntry(path)
	if err != nil {
		return false, err
	}

	cached, err := v.store.Get(current.Path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return cached.Size == current.Size && cached.Mtime == current.Mtime, nil
}

// Prune deletes records under dir whose containers no longer exist and
// returns their paths.
func (v *Validator) Prune(dir string) ([]string, error) {
	entries, err := v.store.List(dir)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		_, err := StatEntry(e.Path)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		if err := v.store.Delete(e.Path); err != nil {
			return removed, err
		}
		removed = append(removed, e.Path)
	}
	return removed, nil
}
