package remotefs

// Range is a half-open byte range [From, To).
type Range struct {
	From, To int64
}

// Len returns the number of bytes in r.
func (r Range) Len() int64 { return r.To - r.From }

type spanKind int

const (
	spanCached  spanKind = iota // data holds the requested bytes
	spanMissing                 // chunk must be fetched, then sliced [lo, hi)
)

// span is the part of a request that falls inside one chunk.
type span struct {
	kind   spanKind
	chunk  uint32
	lo, hi int64  // sub-range within the chunk
	data   []byte // set when kind is spanCached
}

// resolveRange splits [from, to) into one span per covered chunk, in order.
// A non-empty range covers chunks from/chunkSize through (to-1)/chunkSize,
// so a range ending exactly on a chunk boundary does not touch the next
// chunk. An empty range covers no chunk at all.
func resolveRange(from, to, chunkSize int64, lookup func(uint32) ([]byte, bool)) []span {
	if from >= to {
		return nil
	}

	first := from / chunkSize
	last := (to - 1) / chunkSize

	spans := make([]span, 0, last-first+1)
	for i := first; i <= last; i++ {
		s := span{chunk: uint32(i), lo: 0, hi: chunkSize}
		if i == first {
			s.lo = from - i*chunkSize
		}
		if i == last {
			s.hi = to - i*chunkSize
		}

		if b, ok := lookup(s.chunk); ok {
			s.kind = spanCached
			s.data = b[s.lo:s.hi:s.hi]
		} else {
			s.kind = spanMissing
		}
		spans = append(spans, s)
	}
	return spans
}

// fill resolves every missing span using chunks, which must hold each chunk
// a missing span refers to.
func fill(spans []span, chunks map[uint32][]byte) {
	for n := range spans {
		s := &spans[n]
		switch s.kind {
		case spanCached:
		case spanMissing:
			b := chunks[s.chunk]
			s.data = b[s.lo:s.hi:s.hi]
			s.kind = spanCached
		}
	}
}

// assemble concatenates resolved spans. A single span is returned as is,
// referencing the cached chunk.
func assemble(spans []span, size int64) []byte {
	switch len(spans) {
	case 0:
		return []byte{}
	case 1:
		return spans[0].data
	}

	out := make([]byte, 0, size)
	for _, s := range spans {
		out = append(out, s.data...)
	}
	return out
}
