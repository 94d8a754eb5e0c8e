package remotefs

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// readHead follows one sequential reader of a file. Each time the reader
// asks for a chunk inside the next window of the head, the head moves to
// that window and its width doubles.
type readHead struct {
	start uint32 // first chunk of the last window
	speed uint32 // width of the last window, in chunks
}

// readHeads is a most recently used first list of read heads.
type readHeads struct {
	lk    sync.Mutex
	heads []readHead
}

// move returns the window [start, start+speed) to fetch for a miss on chunk
// i. maxSpeed caps the width and maxHeads the number of heads kept.
func (h *readHeads) move(i, maxSpeed uint32, maxHeads int) (uint32, uint32) {
	h.lk.Lock()
	defer h.lk.Unlock()

	for n, head := range h.heads {
		next := head.start + head.speed
		speed := min(maxSpeed, head.speed*2)
		if i < next || i >= next+speed {
			continue
		}

		head = readHead{start: next, speed: speed}
		copy(h.heads[1:n+1], h.heads[:n])
		h.heads[0] = head
		return head.start, head.speed
	}

	h.heads = append([]readHead{{start: i, speed: 1}}, h.heads...)
	if len(h.heads) > max(maxHeads, 1) {
		h.heads = h.heads[:max(maxHeads, 1)]
	}
	return i, 1
}

// readAhead widens want with the window of the read head that serves each
// chunk in firsts, the first missing chunk of every range of a read.
func (f *File) readAhead(want *roaring.Bitmap, firsts []uint32) {
	maxSpeed := f.reg.ReadAhead / f.chunkSize
	if maxSpeed < 2 {
		return
	}
	maxSpeed = min(maxSpeed, 1<<31)

	count := uint64(f.chunkCount())
	for _, i := range firsts {
		start, speed := f.heads.move(i, uint32(maxSpeed), f.reg.ReadHeads)
		end := min(uint64(start)+uint64(speed), count)
		if end > uint64(start)+1 {
			want.AddRange(uint64(start), end)
		}
	}
}
