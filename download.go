package remotefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/RoaringBitmap/roaring"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// fetchChunks makes sure every chunk in want is cached and returns them. The
// fetcher gets one prefetch hint for the whole set (when it supports hints),
// then the chunks are fetched concurrently, at most MaxConcurrentFetches at
// a time. Chunks a staging fetcher still holds for this read are released
// once the read is over.
func (f *File) fetchChunks(ctx context.Context, want *roaring.Bitmap) (map[uint32][]byte, error) {
	idx := want.ToArray()

	if p, ok := f.reg.Fetcher.(Prefetcher); ok {
		missing := f.cache.missing(want).ToArray()
		if len(missing) > 0 {
			if err := p.HintPrefetch(ctx, f.path, f.chunkSize, missing); err != nil {
				f.reg.logf("%s: prefetch hint for %d chunks failed: %s", f.path, len(missing), err)
			}
			if s, ok := p.(Stager); ok {
				defer s.Unstage(f.path, f.chunkSize, missing)
			}
		}
	}

	chunks := make([][]byte, len(idx))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.reg.maxConcurrent())
	for n, i := range idx {
		g.Go(func() error {
			b, err := f.loadChunk(gctx, i)
			if err != nil {
				return err
			}
			chunks[n] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := make(map[uint32][]byte, len(idx))
	for n, i := range idx {
		res[i] = chunks[n]
	}
	return res, nil
}

// loadChunk returns chunk i from the cache, fetching and inserting it if
// needed. Concurrent loads of the same chunk share a single fetch. The shared
// fetch does not belong to any caller: it is detached from ctx and only
// bounded by FetchTimeout, while each caller stops waiting when its own ctx
// is done.
func (f *File) loadChunk(ctx context.Context, i uint32) ([]byte, error) {
	if b, ok := f.cache.get(i); ok {
		return b, nil
	}

	ch := f.inflight.DoChan(strconv.FormatUint(uint64(i), 10), func() (any, error) {
		// retry (just in case)
		if b, ok := f.cache.get(i); ok {
			return b, nil
		}

		b, err := f.fetchChunk(context.WithoutCancel(ctx), i)
		if err != nil {
			return nil, err
		}
		return f.cache.insert(i, b), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s chunk %d: %w", f.path, i, ctx.Err())
	}
}

// fetchChunk performs the actual fetch of chunk i. A panicking fetcher
// poisons the file.
func (f *File) fetchChunk(ctx context.Context, i uint32) (buf []byte, err error) {
	if err := f.usable(); err != nil {
		return nil, err
	}

	from, to := f.chunkBounds(i)

	fctx := ctx
	if f.reg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, f.reg.FetchTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("%w: fetch of chunk %d panicked: %v", ErrPoisoned, i, r)
			f.poison(cause)
			buf, err = nil, cause
		}
	}()

	f.reg.logf("fetch %s chunk %d of size %s @ %s", f.path, i, humanize.IBytes(uint64(to-from)), humanize.IBytes(uint64(from)))
	f.stats.fetchCalls.Add(1)

	buf, err = f.reg.Fetcher.Fetch(fctx, f.path, from, to)
	if err != nil {
		// only the per-fetch deadline is a timeout, a caller's own deadline
		// is reported as is
		if fctx != ctx && ctx.Err() == nil && fctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s chunk %d: %w", ErrTimeout, f.path, i, err)
		}
		if errors.Is(err, ErrTransfer) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s chunk %d: %w", ErrTransfer, f.path, i, err)
	}

	if err := f.checkChunk(i, buf); err != nil {
		return nil, err
	}
	f.stats.fetchedBytes.Add(uint64(len(buf)))

	return buf, nil
}
