package remotefs

import "context"

// Fetcher is the byte-range primitive a Registry reads remote files through.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	// Length returns the total size of path. A missing path must produce an
	// error matching fs.ErrNotExist (ErrNotFound does).
	Length(ctx context.Context, path string) (int64, error)

	// Fetch returns exactly the bytes [from, to) of path. The registry only
	// ever asks for chunk-aligned spans.
	Fetch(ctx context.Context, path string, from, to int64) ([]byte, error)
}

// Prefetcher is implemented by fetchers that can stage a set of chunks
// before the blocking Fetch calls for them are made. A hint is advisory: an
// error is logged and the reads proceed chunk by chunk.
type Prefetcher interface {
	HintPrefetch(ctx context.Context, path string, chunkSize int64, chunks []uint32) error
}

// Stager is implemented by prefetchers that hold hinted chunks until they
// are fetched. A File unstages the chunks it hinted once the read that
// hinted them is over, whether or not they were fetched through it, and
// discards everything staged for its path when it is closed, forgotten or
// poisoned.
type Stager interface {
	Prefetcher

	// Unstage drops the given chunks of path if they are still staged.
	Unstage(path string, chunkSize int64, chunks []uint32)

	// Discard drops everything held for path.
	Discard(path string)
}
