package remotefs

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// StagingFetcher turns prefetch hints into few large fetches. Hinted chunks
// are grouped into runs of consecutive indices, each run is fetched with a
// single call to the inner fetcher, and the result is cut into chunks kept
// until the matching Fetch call picks them up. A staged chunk is handed out
// once, and dropped by Unstage or Discard if it is never picked up.
type StagingFetcher struct {
	inner Fetcher

	// MaxRunChunks caps the number of chunks fetched by one call. Default
	// is 64.
	MaxRunChunks int

	// MaxStagedBytes caps the memory held by staged chunks. Hints that
	// would go beyond it are only partially staged. Default is 64MB.
	MaxStagedBytes int64

	// MaxConcurrent is the maximum number of runs fetched at the same
	// time. Default is 4.
	MaxConcurrent int

	lk      sync.Mutex
	staged  map[stageKey][]byte
	size    int64            // bytes held in staged
	lengths map[string]int64 // as returned by Length, until Discard
}

// stageKey identifies a staged chunk by the offset it starts at.
type stageKey struct {
	path string
	from int64
}

// chunkRun is a run of consecutive chunk indices [first, last].
type chunkRun struct {
	first, last uint32
}

func NewStagingFetcher(inner Fetcher) *StagingFetcher {
	return &StagingFetcher{
		inner:          inner,
		MaxRunChunks:   64,
		MaxStagedBytes: 64 * 1024 * 1024, // 64MB
		MaxConcurrent:  4,
		staged:         make(map[stageKey][]byte),
		lengths:        make(map[string]int64),
	}
}

// Length queries the inner fetcher and remembers the result, which is
// needed to cut the last chunk of a run.
func (s *StagingFetcher) Length(ctx context.Context, path string) (int64, error) {
	n, err := s.inner.Length(ctx, path)
	if err != nil {
		return 0, err
	}

	s.lk.Lock()
	s.lengths[path] = n
	s.lk.Unlock()

	return n, nil
}

// Fetch returns a staged chunk if one matches [from, to) exactly, and asks
// the inner fetcher otherwise. A chunk staged at from with another length is
// dropped.
func (s *StagingFetcher) Fetch(ctx context.Context, path string, from, to int64) ([]byte, error) {
	k := stageKey{path, from}

	s.lk.Lock()
	b, ok := s.staged[k]
	if ok {
		delete(s.staged, k)
		s.size -= int64(len(b))
	}
	s.lk.Unlock()

	if ok && int64(len(b)) == to-from {
		return b, nil
	}
	return s.inner.Fetch(ctx, path, from, to)
}

// HintPrefetch fetches the given chunks in runs and stages them.
func (s *StagingFetcher) HintPrefetch(ctx context.Context, path string, chunkSize int64, chunks []uint32) error {
	s.lk.Lock()
	length, ok := s.lengths[path]
	s.lk.Unlock()

	if !ok {
		var err error
		length, err = s.Length(ctx, path)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.MaxConcurrent, 1))

	for _, run := range coalesce(chunks, s.MaxRunChunks) {
		from := int64(run.first) * chunkSize
		to := min((int64(run.last)+1)*chunkSize, length)
		if from >= to {
			continue
		}
		if !s.reserve(to - from) {
			break
		}

		g.Go(func() error {
			buf, err := s.inner.Fetch(gctx, path, from, to)
			if err != nil {
				s.release(to - from)
				return err
			}
			if int64(len(buf)) > to-from {
				buf = buf[:to-from]
			} else if short := to - from - int64(len(buf)); short > 0 {
				s.release(short)
			}
			s.stage(path, chunkSize, from, buf)
			return nil
		})
	}
	return g.Wait()
}

// reserve accounts for n bytes about to be staged.
func (s *StagingFetcher) reserve(n int64) bool {
	s.lk.Lock()
	defer s.lk.Unlock()

	if s.MaxStagedBytes > 0 && s.size+n > s.MaxStagedBytes {
		return false
	}
	s.size += n
	return true
}

func (s *StagingFetcher) release(n int64) {
	s.lk.Lock()
	defer s.lk.Unlock()

	s.size -= n
}

// stage cuts buf, which starts at byte from, into chunks. Chunks already
// staged are kept, and their duplicate's bytes are released.
func (s *StagingFetcher) stage(path string, chunkSize, from int64, buf []byte) {
	s.lk.Lock()
	defer s.lk.Unlock()

	for off := int64(0); off < int64(len(buf)); off += chunkSize {
		end := min(off+chunkSize, int64(len(buf)))
		k := stageKey{path, from + off}
		if _, ok := s.staged[k]; ok {
			s.size -= end - off
			continue
		}
		s.staged[k] = buf[off:end:end]
	}
}

// Staged returns the number of chunks currently staged.
func (s *StagingFetcher) Staged() int {
	s.lk.Lock()
	defer s.lk.Unlock()

	return len(s.staged)
}

// Unstage drops the given chunks of path that are still staged.
func (s *StagingFetcher) Unstage(path string, chunkSize int64, chunks []uint32) {
	s.lk.Lock()
	defer s.lk.Unlock()

	for _, i := range chunks {
		k := stageKey{path, int64(i) * chunkSize}
		if b, ok := s.staged[k]; ok {
			delete(s.staged, k)
			s.size -= int64(len(b))
		}
	}
}

// Discard drops every chunk staged for path along with its known length.
func (s *StagingFetcher) Discard(path string) {
	s.lk.Lock()
	defer s.lk.Unlock()

	for k, b := range s.staged {
		if k.path == path {
			delete(s.staged, k)
			s.size -= int64(len(b))
		}
	}
	delete(s.lengths, path)
}

// StagedBytes returns the number of bytes currently staged or reserved.
func (s *StagingFetcher) StagedBytes() int64 {
	s.lk.Lock()
	defer s.lk.Unlock()

	return s.size
}

// coalesce sorts and dedupes chunks and groups them into runs of at most
// maxRun consecutive indices.
func coalesce(chunks []uint32, maxRun int) []chunkRun {
	if len(chunks) == 0 {
		return nil
	}
	if maxRun <= 0 {
		maxRun = 1
	}

	idx := append([]uint32(nil), chunks...)
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })

	var runs []chunkRun
	cur := chunkRun{first: idx[0], last: idx[0]}
	for _, i := range idx[1:] {
		switch {
		case i == cur.last:
			// duplicate
		case i == cur.last+1 && int(i-cur.first) < maxRun:
			cur.last = i
		default:
			runs = append(runs, cur)
			cur = chunkRun{first: i, last: i}
		}
	}
	return append(runs, cur)
}

var (
	_ Fetcher    = (*StagingFetcher)(nil)
	_ Stager     = (*StagingFetcher)(nil)
)
