package remotefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Logger is what the registry logs through. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Registry maps canonical paths to their File. Opening the same path twice
// returns the same *File, so all users of a path share one length lookup and
// one chunk cache. A Registry is meant to live as long as the session that
// reads through it.
//
// The exported fields may be adjusted after NewRegistry and before the
// registry is used.
type Registry struct {
	// Fetcher is used to query lengths and fetch chunks.
	Fetcher Fetcher

	// ChunkSize is used when Open is called with a chunk size <= 0.
	// Default is 1MB.
	ChunkSize int64

	// SmallFileSuffixes selects the files that are always read with
	// SmallFileChunkSize, whatever chunk size the caller asks for. Such
	// files are read in small scattered accesses. Default is ".store".
	SmallFileSuffixes []string

	// SmallFile, when set, replaces SmallFileSuffixes.
	SmallFile func(path string) bool

	// SmallFileChunkSize is the chunk size pinned for small files.
	// Default is 16kB.
	SmallFileChunkSize int64

	// MaxConcurrentFetches is the maximum number of chunks of one read that
	// are fetched at the same time. Default is 10.
	MaxConcurrentFetches int

	// ReadAhead caps, in bytes, the window a sequential reader widens its
	// fetches to. Every read that continues right after the window of one
	// of the file's read heads doubles that window. Zero disables it.
	// Default is 5MB.
	ReadAhead int64

	// ReadHeads is the number of sequential readers followed per file.
	// Default is 3.
	ReadHeads int

	// FetchTimeout bounds each fetch call. Zero means no timeout.
	FetchTimeout time.Duration

	// Logger receives debug output, nil disables logging.
	Logger Logger

	files   map[string]*File
	filesLk sync.RWMutex
	opening singleflight.Group
}

// NewRegistry returns a registry reading through fetcher.
func NewRegistry(fetcher Fetcher) *Registry {
	return &Registry{
		Fetcher:              fetcher,
		ChunkSize:            1024 * 1024, // 1MB
		SmallFileSuffixes:    []string{".store"},
		SmallFileChunkSize:   16 * 1024, // 16kB
		MaxConcurrentFetches: 10,
		ReadAhead:            5 * 1024 * 1024, // 5MB
		ReadHeads:            3,
		Logger:               log.Default(),
		files:                make(map[string]*File),
	}
}

func (r *Registry) logf(format string, args ...any) {
	if r.Logger == nil {
		return
	}
	r.Logger.Printf(format, args...)
}

func (r *Registry) maxConcurrent() int {
	if r.MaxConcurrentFetches <= 0 {
		return 1
	}
	return r.MaxConcurrentFetches
}

// isSmallFile reports whether path belongs to the small-file class.
func (r *Registry) isSmallFile(path string) bool {
	if r.SmallFile != nil {
		return r.SmallFile(path)
	}
	for _, s := range r.SmallFileSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// chunkSizeFor returns the chunk size a new file at path is created with.
func (r *Registry) chunkSizeFor(path string, requested int64) int64 {
	if r.isSmallFile(path) && r.SmallFileChunkSize > 0 {
		return r.SmallFileChunkSize
	}
	if requested <= 0 {
		return r.ChunkSize
	}
	return requested
}

// Open returns the File for path, creating it on first use. The first
// successful Open queries the length and pins the chunk size; later calls
// return the same File and ignore chunkSize.
func (r *Registry) Open(ctx context.Context, path string, chunkSize int64) (*File, error) {
	if f := r.Lookup(path); f != nil {
		return f, nil
	}

	v, err, _ := r.opening.Do(path, func() (any, error) {
		// retry (just in case)
		if f := r.Lookup(path); f != nil {
			return f, nil
		}

		size, err := r.length(ctx, path)
		if err != nil {
			return nil, err
		}

		f, err := newFile(r, path, r.chunkSizeFor(path, chunkSize), size)
		if err != nil {
			return nil, err
		}

		r.filesLk.Lock()
		r.files[path] = f
		r.filesLk.Unlock()

		r.logf("opened %s: %d bytes in %d chunks of %d bytes", path, f.size, f.chunkCount(), f.chunkSize)
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*File), nil
}

// length queries the fetcher for the size of path. A panicking fetcher
// leaves no entry behind.
func (r *Registry) length(ctx context.Context, path string) (size int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			size, err = 0, fmt.Errorf("%w: length of %s panicked: %v", ErrPoisoned, path, p)
		}
	}()

	size, err = r.Fetcher.Length(ctx, path)
	switch {
	case err == nil:
		return size, nil
	case errors.Is(err, ErrNotFound):
		return 0, err
	case errors.Is(err, fs.ErrNotExist):
		return 0, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	default:
		return 0, fmt.Errorf("%w: length of %s: %w", ErrTransfer, path, err)
	}
}

// Lookup returns the File already open for path, or nil.
func (r *Registry) Lookup(path string) *File {
	r.filesLk.RLock()
	defer r.filesLk.RUnlock()

	return r.files[path]
}

// Forget drops path from the registry. Holders of its File can still read
// through it, but the next Open creates a new File with an empty cache.
func (r *Registry) Forget(path string) {
	r.filesLk.Lock()
	delete(r.files, path)
	r.filesLk.Unlock()

	r.unstage(path)
}

// unstage drops whatever the fetcher still holds for path.
func (r *Registry) unstage(path string) {
	if s, ok := r.Fetcher.(Stager); ok {
		s.Discard(path)
	}
}

// forget drops f if it is still the registered file for its path.
func (r *Registry) forget(f *File) {
	r.filesLk.Lock()
	defer r.filesLk.Unlock()

	if r.files[f.path] == f {
		delete(r.files, f.path)
	}
}

// Paths returns the open paths in sorted order.
func (r *Registry) Paths() []string {
	r.filesLk.RLock()
	defer r.filesLk.RUnlock()

	res := make([]string, 0, len(r.files))
	for p := range r.files {
		res = append(res, p)
	}
	sort.Strings(res)
	return res
}

// Stats returns the read counters of every open file, by path.
func (r *Registry) Stats() map[string]Stats {
	r.filesLk.RLock()
	defer r.filesLk.RUnlock()

	res := make(map[string]Stats, len(r.files))
	for p, f := range r.files {
		res[p] = f.Stats()
	}
	return res
}

// TotalStats returns the sum of Stats over every open file.
func (r *Registry) TotalStats() Stats {
	var total Stats
	for _, s := range r.Stats() {
		total = total.Add(s)
	}
	return total
}
