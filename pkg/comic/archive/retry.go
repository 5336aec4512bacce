package archive

import (
	"context"
	"errors"
	"time"

	"github.com/jamesainslie/comicarc/pkg/comic/logging"
)

// RetryPolicy bounds OpenWithRetry.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Initial is the wait after the first failure; it doubles each time.
	Initial time.Duration

	// Max caps a single wait.
	Max time.Duration
}

// DefaultRetryPolicy returns the policy used for freshly copied containers.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 5,
		Initial:  250 * time.Millisecond,
		Max:      5 * time.Second,
	}
}

// Retryable reports whether an Open failure may clear up on its own, as when
// a container is still being copied into place.
func Retryable(err error) bool {
	if errors.Is(err, ErrUnsupportedFormat) {
		return false
	}
	return errors.Is(err, ErrIO) || errors.Is(err, ErrNotFound)
}

// OpenWithRetry calls Open until it succeeds, fails with a non-retryable
// error, runs out of attempts or ctx is done.
func OpenWithRetry(ctx context.Context, path string, policy RetryPolicy, opts ...Option) (*Handle, error) {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	log := logging.Get("archive")

	wait := policy.Initial
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		h, err := Open(ctx, path, opts...)
		if err == nil {
			return h, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == policy.Attempts {
			break
		}

		log.Debug("open failed, retrying", "path", path, "attempt", attempt, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		wait *= 2
		if policy.Max > 0 && wait > policy.Max {
			wait = policy.Max
		}
	}
	return nil, lastErr
}
