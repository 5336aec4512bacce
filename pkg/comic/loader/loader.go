// Package loader decodes pages of an open container into a shared page cache.
//
// Each page has at most one decode in flight, and a cached page is never
// decoded again while it stays cached. Byte reads and decoding happen outside
// the cache and in-flight locks. Callers poll the cache with Page.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/decode"
	"github.com/jamesainslie/comicarc/pkg/comic/logging"
	"github.com/jamesainslie/comicarc/pkg/comic/pagecache"
)

// Defaults for Options.
const (
	DefaultReadAhead = 16
	DefaultWorkers   = 4
)

// Source is the part of an archive handle the loader reads from.
type Source interface {
	ListImages(ctx context.Context) ([]string, error)
	ReadImageByName(ctx context.Context, name string) ([]byte, error)
}

// Decoder turns page bytes into an image.
type Decoder func(data []byte) (decode.PageImage, error)

// Outcome describes what Load did.
type Outcome int

// Load outcomes.
const (
	// Loaded means the page was read, decoded and cached.
	Loaded Outcome = iota
	// CacheHit means the page was already cached.
	CacheHit
	// AlreadyLoading means another call is decoding the page.
	AlreadyLoading
)

func (o Outcome) String() string {
	switch o {
	case Loaded:
		return "loaded"
	case CacheHit:
		return "cache-hit"
	case AlreadyLoading:
		return "already-loading"
	default:
		return "unknown"
	}
}

// Options configures a Loader.
type Options struct {
	// ReadAhead is how many pages after the current one Prefetch requests.
	ReadAhead int

	// Workers bounds concurrent loads started by Request and Warm.
	Workers int

	// Decoder decodes page bytes. Nil uses decode.Decode.
	Decoder Decoder

	// InFlight is shared with other loaders on the same cache. Nil creates one.
	InFlight *pagecache.InFlight
}

// DefaultOptions returns the standard read-ahead and worker count.
func DefaultOptions() Options {
	return Options{
		ReadAhead: DefaultReadAhead,
		Workers:   DefaultWorkers,
	}
}

// Stats counts load outcomes.
type Stats struct {
	Loaded         int64
	CacheHits      int64
	AlreadyLoading int64
	Failed         int64
}

type counters struct {
	loaded         atomic.Int64
	cacheHits      atomic.Int64
	alreadyLoading atomic.Int64
	failed         atomic.Int64
}

func (c *counters) record(o Outcome, err error) {
	if err != nil {
		c.failed.Add(1)
		return
	}
	switch o {
	case Loaded:
		c.loaded.Add(1)
	case CacheHit:
		c.cacheHits.Add(1)
	case AlreadyLoading:
		c.alreadyLoading.Add(1)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Loaded:         c.loaded.Load(),
		CacheHits:      c.cacheHits.Load(),
		AlreadyLoading: c.alreadyLoading.Load(),
		Failed:         c.failed.Load(),
	}
}

// Loader loads pages of one container into a cache.
type Loader struct {
	source    Source
	cache     *pagecache.Cache
	inflight  *pagecache.InFlight
	filenames []string
	opts      Options
	log       *logging.Logger

	sem   chan struct{}
	wg    sync.WaitGroup
	stats counters
}

// New snapshots the page listing of source. Later changes to the container
// are not seen by the loader.
func New(ctx context.Context, source Source, cache *pagecache.Cache, opts Options) (*Loader, error) {
	if cache == nil {
		return nil, errors.New("loader requires a cache")
	}
	if opts.ReadAhead < 0 {
		opts.ReadAhead = 0
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Decoder == nil {
		opts.Decoder = decode.Decode
	}
	if opts.InFlight == nil {
		opts.InFlight = pagecache.NewInFlight()
	}

	names, err := source.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}

	return &Loader{
		source:    source,
		cache:     cache,
		inflight:  opts.InFlight,
		filenames: names,
		opts:      opts,
		log:       logging.Get("loader"),
		sem:       make(chan struct{}, opts.Workers),
	}, nil
}

// PageCount returns the number of pages in the snapshot.
func (l *Loader) PageCount() int { return len(l.filenames) }

// Filenames returns a copy of the page listing.
func (l *Loader) Filenames() []string {
	out := make([]string, len(l.filenames))
	copy(out, l.filenames)
	return out
}

// Load brings page p into the cache. A failed read or decode leaves the cache
// untouched and is returned; it does not affect other pages.
func (l *Loader) Load(ctx context.Context, p int) (Outcome, error) {
	o, err := l.load(ctx, p)
	l.stats.record(o, err)
	return o, err
}

func (l *Loader) load(ctx context.Context, p int) (Outcome, error) {
	if p < 0 || p >= len(l.filenames) {
		return Loaded, fmt.Errorf("%w: %d of %d", archive.ErrIndexOutOfBounds, p, len(l.filenames))
	}

	if !l.inflight.TryAcquire(p) {
		l.log.Debug("page already loading", "page", p)
		return AlreadyLoading, nil
	}
	defer l.inflight.Release(p)

	if l.cache.Contains(p) {
		return CacheHit, nil
	}

	if err := ctx.Err(); err != nil {
		return Loaded, err
	}

	name := l.filenames[p]
	log := l.log.With("request", uuid.NewString(), "page", p, "file", name)

	data, err := l.source.ReadImageByName(ctx, name)
	if err != nil {
		log.Warn("reading page failed", "error", err)
		return Loaded, fmt.Errorf("reading page %d: %w", p, err)
	}

	img, err := l.opts.Decoder(data)
	if err != nil {
		log.Warn("decoding page failed", "error", err)
		if !errors.Is(err, decode.ErrDecode) {
			err = fmt.Errorf("%w: %w", decode.ErrDecode, err)
		}
		return Loaded, fmt.Errorf("page %d: %w", p, err)
	}

	l.cache.Put(&pagecache.LoadedPage{Image: img, Index: p, Filename: name})
	log.Debug("page cached", "bytes", len(data))
	return Loaded, nil
}

// Request loads p in the background. Use Wait to block until all requested
// loads are done.
func (l *Loader) Request(ctx context.Context, p int) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-l.sem }()

		_, _ = l.Load(ctx, p)
	}()
}

// Prefetch requests current and the ReadAhead pages after it.
func (l *Loader) Prefetch(ctx context.Context, current int) {
	if current < 0 {
		current = 0
	}
	last := min(current+l.opts.ReadAhead, len(l.filenames)-1)
	for p := current; p <= last; p++ {
		if l.cache.Contains(p) {
			continue
		}
		l.Request(ctx, p)
	}
}

// Wait blocks until every Request has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Warm loads pages synchronously with at most Workers loads at once. Failed
// pages are counted, not returned; only cancellation aborts the run.
func (l *Loader) Warm(ctx context.Context, pages []int) (Stats, error) {
	var run counters

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for _, p := range pages {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o, err := l.Load(gctx, p)
			run.record(o, err)
			if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return run.snapshot(), err
}

// Page returns the cached page p, if present.
func (l *Loader) Page(p int) (*pagecache.LoadedPage, bool) {
	return l.cache.Get(p)
}

// Stats returns cumulative counters for this loader.
func (l *Loader) Stats() Stats {
	return l.stats.snapshot()
}
