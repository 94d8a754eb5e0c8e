package remotefs

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/googleapis/gax-go/v2"
)

// RetryFetcher retries failed Length and Fetch calls of an inner fetcher
// with exponential backoff. Missing files, invalid ranges and cancelled
// contexts are never retried.
type RetryFetcher struct {
	inner Fetcher

	// MaxAttempts is the total number of attempts per call, default 3.
	MaxAttempts int

	// Backoff controls the pause between attempts.
	Backoff gax.Backoff
}

func NewRetryFetcher(inner Fetcher) *RetryFetcher {
	return &RetryFetcher{
		inner:       inner,
		MaxAttempts: 3,
		Backoff: gax.Backoff{
			Initial:    100 * time.Millisecond,
			Max:        5 * time.Second,
			Multiplier: 2,
		},
	}
}

func (r *RetryFetcher) invoke(ctx context.Context, call func(context.Context) error) error {
	attempts := 0
	return gax.Invoke(ctx, func(ctx context.Context, _ gax.CallSettings) error {
		attempts++
		return call(ctx)
	}, gax.WithRetry(func() gax.Retryer {
		return gax.OnErrorFunc(r.Backoff, func(err error) bool {
			return attempts < r.MaxAttempts && retryable(err)
		})
	}))
}

func (r *RetryFetcher) Length(ctx context.Context, path string) (int64, error) {
	var n int64
	err := r.invoke(ctx, func(ctx context.Context) error {
		var err error
		n, err = r.inner.Length(ctx, path)
		return err
	})
	return n, err
}

func (r *RetryFetcher) Fetch(ctx context.Context, path string, from, to int64) ([]byte, error) {
	var buf []byte
	err := r.invoke(ctx, func(ctx context.Context) error {
		var err error
		buf, err = r.inner.Fetch(ctx, path, from, to)
		return err
	})
	return buf, err
}

// HintPrefetch forwards the hint, without retries, when the inner fetcher
// takes hints.
func (r *RetryFetcher) HintPrefetch(ctx context.Context, path string, chunkSize int64, chunks []uint32) error {
	if p, ok := r.inner.(Prefetcher); ok {
		return p.HintPrefetch(ctx, path, chunkSize, chunks)
	}
	return nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

var (
	_ Fetcher    = (*RetryFetcher)(nil)
	_ Prefetcher = (*RetryFetcher)(nil)
)
