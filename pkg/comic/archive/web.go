package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/jamesainslie/comicarc/pkg/comic/logging"
	"github.com/jamesainslie/comicarc/pkg/comic/manifest"
)

// Web decorates a backend whose manifest lists remote pages. Page listing and
// reads go over HTTP; manifest I/O goes to the wrapped backend.
type Web struct {
	inner   Backend
	held    *manifest.Manifest
	client  *http.Client
	maxBody int64
	log     *logging.Logger
}

// NewWeb wraps inner using the page URLs in m. The held manifest is a copy and
// is not refreshed by later writes.
func NewWeb(inner Backend, m *manifest.Manifest, client *http.Client, maxBody int64) *Web {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Web{
		inner:   inner,
		held:    m.Clone(),
		client:  client,
		maxBody: maxBody,
		log:     logging.Get("archive"),
	}
}

// Kind implements Backend.
func (w *Web) Kind() Kind { return KindWeb }

// Inner returns the wrapped backend.
func (w *Web) Inner() Backend { return w.inner }

// ListImages returns the external page URLs in manifest order.
func (w *Web) ListImages(_ context.Context) ([]string, error) {
	urls := w.held.URLs()
	if urls == nil {
		return []string{}, nil
	}
	return urls, nil
}

// ReadImageByName fetches name, which is a URL, with a GET request.
func (w *Web) ReadImageByName(ctx context.Context, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, name, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %w", ErrNetwork, name, err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrNetwork, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: GET %s: status %s", ErrNetwork, name, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrNetwork, name, err)
	}
	if int64(len(data)) > w.maxBody {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrNetwork, name, w.maxBody)
	}
	return data, nil
}

// ReadManifest reads through to the wrapped backend and falls back to the
// held manifest when that fails.
func (w *Web) ReadManifest(ctx context.Context) (*manifest.Manifest, error) {
	m, err := w.inner.ReadManifest(ctx)
	if err != nil {
		w.log.Warn("inner manifest unreadable, using held copy", "error", err)
		return w.held.Clone(), nil
	}
	return m, nil
}

// WriteManifest implements Backend.
func (w *Web) WriteManifest(ctx context.Context, m *manifest.Manifest) error {
	return w.inner.WriteManifest(ctx, m)
}

// Close implements Backend.
func (w *Web) Close() error {
	return w.inner.Close()
}
