// Package pagecache holds decoded pages for a reader session: a bounded LRU
// keyed by page index and a set of pages currently being decoded.
package pagecache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jamesainslie/comicarc/pkg/comic/decode"
	"github.com/jamesainslie/comicarc/pkg/comic/logging"
)

// DefaultSize is the number of decoded pages kept by default.
const DefaultSize = 20

// LoadedPage is an immutable decoded page.
type LoadedPage struct {
	Image    decode.PageImage
	Index    int
	Filename string
}

// Cache is a capacity-bounded LRU of decoded pages. It is safe for
// concurrent use and meant to be shared by pointer.
type Cache struct {
	lru *lru.Cache[int, *LoadedPage]
}

// New returns a cache holding at most size pages.
func New(size int) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}

	log := logging.Get("pagecache")
	l, err := lru.NewWithEvict(size, func(index int, _ *LoadedPage) {
		log.Debug("evicted page", "page", index)
	})
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	return &Cache{lru: l}, nil
}

// Get returns the page at index and marks it most recently used.
func (c *Cache) Get(index int) (*LoadedPage, bool) {
	return c.lru.Get(index)
}

// Put stores a page under its index, evicting the least recently used page
// when the cache is full. It reports whether an eviction happened.
func (c *Cache) Put(page *LoadedPage) bool {
	return c.lru.Add(page.Index, page)
}

// Contains reports whether index is cached without touching recency.
func (c *Cache) Contains(index int) bool {
	return c.lru.Contains(index)
}

// Len returns the number of cached pages.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Keys returns cached indices from least to most recently used.
func (c *Cache) Keys() []int {
	return c.lru.Keys()
}

// Purge drops every page.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// InFlight tracks page indices with a decode in progress.
type InFlight struct {
	mu    sync.Mutex
	pages map[int]struct{}
}

// NewInFlight returns an empty set.
func NewInFlight() *InFlight {
	return &InFlight{pages: make(map[int]struct{})}
}

// TryAcquire marks index as in flight. It returns false if it already was.
func (f *InFlight) TryAcquire(index int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.pages[index]; ok {
		return false
	}
	f.pages[index] = struct{}{}
	return true
}

// Release clears index.
func (f *InFlight) Release(index int) {
	f.mu.Lock()
	delete(f.pages, index)
	f.mu.Unlock()
}

// Contains reports whether index is in flight.
func (f *InFlight) Contains(index int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pages[index]
	return ok
}

// Len returns the number of pages in flight.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}
