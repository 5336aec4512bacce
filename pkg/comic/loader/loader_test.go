package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/decode"
	"github.com/jamesainslie/comicarc/pkg/comic/pagecache"
)

type fakeSource struct {
	names []string
	fail  map[string]error
	reads atomic.Int32
}

func newSource(n int) *fakeSource {
	s := &fakeSource{fail: map[string]error{}}
	for i := 0; i < n; i++ {
		s.names = append(s.names, fmt.Sprintf("%03d.png", i))
	}
	return s
}

func (s *fakeSource) ListImages(context.Context) ([]string, error) {
	return s.names, nil
}

func (s *fakeSource) ReadImageByName(_ context.Context, name string) ([]byte, error) {
	s.reads.Add(1)
	if err := s.fail[name]; err != nil {
		return nil, err
	}
	return []byte(name), nil
}

// countingDecoder records how often it runs and can hold decodes on a gate.
type countingDecoder struct {
	calls   atomic.Int32
	started chan struct{}
	gate    chan struct{}
	fail    bool
}

func (d *countingDecoder) decode(data []byte) (decode.PageImage, error) {
	d.calls.Add(1)
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.gate != nil {
		<-d.gate
	}
	if d.fail {
		return nil, errors.New("corrupt " + string(data))
	}
	return &decode.Static{Image: image.NewRGBA(image.Rect(0, 0, 1, 1))}, nil
}

func newLoader(t *testing.T, src Source, dec *countingDecoder, cacheSize int) (*Loader, *pagecache.Cache) {
	t.Helper()

	cache, err := pagecache.New(cacheSize)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Decoder = dec.decode
	l, err := New(context.Background(), src, cache, opts)
	require.NoError(t, err)
	return l, cache
}

func TestLoadDecodesOnce(t *testing.T) {
	t.Parallel()

	dec := &countingDecoder{started: make(chan struct{}, 1), gate: make(chan struct{})}
	l, cache := newLoader(t, newSource(3), dec, 10)
	ctx := context.Background()

	first := make(chan Outcome, 1)
	go func() {
		o, err := l.Load(ctx, 1)
		assert.NoError(t, err)
		first <- o
	}()
	<-dec.started

	const n = 16
	var wg sync.WaitGroup
	var busy atomic.Int32
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			o, err := l.Load(ctx, 1)
			assert.NoError(t, err)
			if o == AlreadyLoading {
				busy.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(n), busy.Load())

	close(dec.gate)
	assert.Equal(t, Loaded, <-first)

	o, err := l.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, o)

	assert.Equal(t, int32(1), dec.calls.Load())
	assert.True(t, cache.Contains(1))

	page, ok := l.Page(1)
	require.True(t, ok)
	assert.Equal(t, 1, page.Index)
	assert.Equal(t, "001.png", page.Filename)

	stats := l.Stats()
	assert.Equal(t, int64(1), stats.Loaded)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(n), stats.AlreadyLoading)
}

func TestConcurrentRequestsDecodeOnce(t *testing.T) {
	t.Parallel()

	dec := &countingDecoder{}
	src := newSource(4)
	l, _ := newLoader(t, src, dec, 10)

	for i := 0; i < 50; i++ {
		l.Request(context.Background(), 2)
	}
	l.Wait()

	assert.Equal(t, int32(1), dec.calls.Load())
	assert.Equal(t, int32(1), src.reads.Load())
}

func TestLoadReadFailure(t *testing.T) {
	t.Parallel()

	src := newSource(2)
	src.fail["000.png"] = fmt.Errorf("%w: boom", archive.ErrIO)
	dec := &countingDecoder{}
	l, cache := newLoader(t, src, dec, 10)

	_, err := l.Load(context.Background(), 0)
	assert.True(t, errors.Is(err, archive.ErrIO), "got %v", err)
	assert.False(t, cache.Contains(0))
	assert.Zero(t, dec.calls.Load())

	// The in-flight mark is released, so a retry reaches the source again.
	_, err = l.Load(context.Background(), 0)
	assert.Error(t, err)
	assert.Equal(t, int32(2), src.reads.Load())
	assert.Equal(t, int64(2), l.Stats().Failed)
}

func TestLoadDecodeFailure(t *testing.T) {
	t.Parallel()

	dec := &countingDecoder{fail: true}
	l, cache := newLoader(t, newSource(1), dec, 10)

	_, err := l.Load(context.Background(), 0)
	assert.True(t, errors.Is(err, decode.ErrDecode), "got %v", err)
	assert.False(t, cache.Contains(0))
	assert.Zero(t, cache.Len())
}

func TestLoadOutOfRange(t *testing.T) {
	t.Parallel()

	l, _ := newLoader(t, newSource(2), &countingDecoder{}, 10)

	for _, p := range []int{-1, 2} {
		_, err := l.Load(context.Background(), p)
		assert.True(t, errors.Is(err, archive.ErrIndexOutOfBounds), "page %d: %v", p, err)
	}
}

func TestLoadCanceledBeforeFetch(t *testing.T) {
	t.Parallel()

	src := newSource(1)
	l, _ := newLoader(t, src, &countingDecoder{}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.reads.Load())
}

func TestPrefetchWindow(t *testing.T) {
	t.Parallel()

	src := newSource(30)
	dec := &countingDecoder{}
	cache, err := pagecache.New(40)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Decoder = dec.decode
	opts.ReadAhead = 5
	l, err := New(context.Background(), src, cache, opts)
	require.NoError(t, err)

	l.Prefetch(context.Background(), 10)
	l.Wait()
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15}, sortedKeys(cache))

	// Near the end the window is clipped to the last page.
	l.Prefetch(context.Background(), 27)
	l.Wait()
	assert.True(t, cache.Contains(29))
	assert.False(t, cache.Contains(26))
	assert.Equal(t, int32(9), dec.calls.Load())

	// Cached pages are not requested again.
	l.Prefetch(context.Background(), 10)
	l.Wait()
	assert.Equal(t, int32(9), dec.calls.Load())
}

func TestWarm(t *testing.T) {
	t.Parallel()

	src := newSource(6)
	src.fail["003.png"] = archive.ErrNotFound
	dec := &countingDecoder{}
	l, cache := newLoader(t, src, dec, 10)

	stats, err := l.Warm(context.Background(), []int{0, 1, 2, 3, 4, 5, 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(7), stats.Loaded+stats.CacheHits+stats.AlreadyLoading+stats.Failed)
	assert.Equal(t, int64(5), stats.Loaded)
	assert.Equal(t, 5, cache.Len())
	assert.Equal(t, int32(5), dec.calls.Load())
}

func TestWarmCanceled(t *testing.T) {
	t.Parallel()

	l, _ := newLoader(t, newSource(3), &countingDecoder{}, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := l.Warm(ctx, []int{0, 1, 2})
	assert.Error(t, err)
}

func TestNewSnapshotsListing(t *testing.T) {
	t.Parallel()

	src := newSource(3)
	l, _ := newLoader(t, src, &countingDecoder{}, 10)

	src.names = append(src.names, "999.png")
	assert.Equal(t, 3, l.PageCount())
	assert.Equal(t, []string{"000.png", "001.png", "002.png"}, l.Filenames())

	_, err := New(context.Background(), src, nil, DefaultOptions())
	assert.Error(t, err)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "loaded", Loaded.String())
	assert.Equal(t, "cache-hit", CacheHit.String())
	assert.Equal(t, "already-loading", AlreadyLoading.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func sortedKeys(c *pagecache.Cache) []int {
	keys := c.Keys()
	slices.Sort(keys)
	return keys
}

func BenchmarkWarm(b *testing.B) {
	src := newSource(64)
	pages := make([]int, len(src.names))
	for i := range pages {
		pages[i] = i
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache, err := pagecache.New(len(pages))
		require.NoError(b, err)
		opts := DefaultOptions()
		opts.Decoder = (&countingDecoder{}).decode
		l, err := New(context.Background(), src, cache, opts)
		require.NoError(b, err)
		if _, err := l.Warm(context.Background(), pages); err != nil {
			b.Fatal(err)
		}
	}
}
