package remotefs

import (
	"context"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring"
)

// ReadRange returns the bytes [from, to) of the file. Chunks that are not
// yet cached are fetched first. If the range lies within a single chunk the
// returned slice references the cache directly.
func (f *File) ReadRange(ctx context.Context, from, to int64) ([]byte, error) {
	res, err := f.ReadRanges(ctx, []Range{{From: from, To: to}})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// ReadRanges reads several ranges at once. The missing chunks of all ranges
// are collected and fetched together, each distinct chunk once, before the
// results are assembled.
func (f *File) ReadRanges(ctx context.Context, ranges []Range) ([][]byte, error) {
	if err := f.usable(); err != nil {
		return nil, err
	}

	lists := make([][]span, len(ranges))
	want := roaring.New()
	var firsts []uint32 // first missing chunk of each range

	for n, r := range ranges {
		if r.From < 0 || r.From > r.To || r.To > f.size {
			return nil, fmt.Errorf("%w: [%d, %d) of %s (length %d)", ErrInvalidRange, r.From, r.To, f.path, f.size)
		}
		lists[n] = f.cache.resolve(r.From, r.To, f.chunkSize)

		missed := false
		for _, s := range lists[n] {
			switch s.kind {
			case spanCached:
				f.stats.cacheHits.Add(1)
				f.stats.cachedBytes.Add(uint64(s.hi - s.lo))
			case spanMissing:
				f.stats.cacheMisses.Add(1)
				want.Add(s.chunk)
				if !missed {
					firsts = append(firsts, s.chunk)
					missed = true
				}
			}
		}
	}
	f.stats.requests.Add(uint64(len(ranges)))

	if !want.IsEmpty() {
		f.readAhead(want, firsts)
		chunks, err := f.fetchChunks(ctx, want)
		if err != nil {
			return nil, err
		}
		for _, list := range lists {
			fill(list, chunks)
		}
	}

	res := make([][]byte, len(ranges))
	for n, list := range lists {
		res[n] = assemble(list, ranges[n].Len())
	}
	return res, nil
}

// ReadAll returns the whole file.
func (f *File) ReadAll(ctx context.Context) ([]byte, error) {
	return f.ReadRange(ctx, 0, f.size)
}

// ReadAt implements io.ReaderAt. The bytes are copied into p.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidRange, off)
	}

	// let's check if off+p > f.size
	if off >= f.size {
		return 0, io.EOF
	}
	end := off + int64(len(p))
	if end > f.size {
		end = f.size
	}

	b, err := f.ReadRange(context.Background(), off, end)
	if err != nil {
		return 0, err
	}

	n := copy(p, b)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// NewReader returns a reader positioned at the start of the file. Readers
// are independent of each other and share the file's cache.
func (f *File) NewReader() *io.SectionReader {
	return io.NewSectionReader(f, 0, f.size)
}

// Complete fetches every chunk that is not cached yet.
func (f *File) Complete(ctx context.Context) error {
	if err := f.usable(); err != nil {
		return err
	}
	if f.size == 0 {
		return nil
	}

	all := roaring.New()
	all.AddRange(0, uint64(f.chunkCount()))

	missing := f.cache.missing(all)
	if missing.IsEmpty() {
		return nil
	}

	_, err := f.fetchChunks(ctx, missing)
	if err != nil {
		return err
	}
	f.reg.logf("%s is now complete (%d chunks)", f.path, f.chunkCount())
	return nil
}
