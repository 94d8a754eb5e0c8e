package remotefs

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// File is a read-only view of a remote file, served through a chunk cache.
// It implements io.ReaderAt; NewReader returns an io.ReadSeeker over it.
// Every caller that opens the same path through a Registry gets the same
// *File and therefore the same cache. Data returned by ReadRange and
// ReadRanges may reference cached storage and must not be modified.
type File struct {
	path      string // canonical path, as passed to the fetcher
	chunkSize int64  // fixed when the file is first opened
	size      int64  // total length, queried once

	reg   *Registry
	cache *chunkCache
	stats fileStats

	inflight singleflight.Group // one fetch per chunk at a time
	heads    readHeads

	lk  sync.RWMutex
	err error // set once the file is poisoned or closed
}

func newFile(reg *Registry, path string, chunkSize, size int64) (*File, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("remotefs: invalid chunk size %d for %s", chunkSize, path)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: %s reported negative length %d", ErrTransfer, path, size)
	}
	f := &File{
		path:      path,
		chunkSize: chunkSize,
		size:      size,
		reg:       reg,
		cache:     newChunkCache(),
	}
	if f.chunkCount() > maxChunks {
		return nil, fmt.Errorf("remotefs: %s needs %d chunks of %d bytes, more than %d", path, f.chunkCount(), chunkSize, int64(maxChunks))
	}
	return f, nil
}

// Path returns the canonical path this file was opened with.
func (f *File) Path() string { return f.path }

// ChunkSize returns the chunk size pinned when the file was first opened.
func (f *File) ChunkSize() int64 { return f.chunkSize }

// Len returns the total length of the remote file.
func (f *File) Len() int64 { return f.size }

// Resident returns how many chunks are currently cached.
func (f *File) Resident() uint64 { return f.cache.resident() }

// Stats returns a snapshot of the read counters of this file.
func (f *File) Stats() Stats { return f.stats.snapshot() }

// usable returns the error that made this file unusable, if any.
func (f *File) usable() error {
	f.lk.RLock()
	defer f.lk.RUnlock()

	return f.err
}

// poison marks the file as unusable after a fetcher failure that left its
// state unknown, and drops it from the registry so the next open rebuilds it.
func (f *File) poison(cause error) {
	f.lk.Lock()
	if f.err == nil {
		f.err = cause
	}
	f.lk.Unlock()

	f.cache.reset()
	f.reg.forget(f)
	f.reg.unstage(f.path)
	f.reg.logf("%s: %s", f.path, cause)
}
