package remotefs

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// chunkCache maps chunk indices to their bytes. A chunk is never modified
// once inserted, so the slices it hands out are shared without copying.
type chunkCache struct {
	lk     sync.RWMutex
	chunks map[uint32][]byte
	status *roaring.Bitmap // resident chunks (each bit is 1 chunk)
}

func newChunkCache() *chunkCache {
	return &chunkCache{
		chunks: make(map[uint32][]byte),
		status: roaring.New(),
	}
}

func (c *chunkCache) get(i uint32) ([]byte, bool) {
	c.lk.RLock()
	defer c.lk.RUnlock()

	b, ok := c.chunks[i]
	return b, ok
}

// insert stores b as chunk i and returns the resident bytes. If the chunk is
// already resident the existing slice wins and b is dropped.
func (c *chunkCache) insert(i uint32, b []byte) []byte {
	c.lk.Lock()
	defer c.lk.Unlock()

	if cur, ok := c.chunks[i]; ok {
		return cur
	}
	b = b[:len(b):len(b)]
	c.chunks[i] = b
	c.status.Add(i)
	return b
}

// resolve translates [from, to) into spans under a single read lock, so all
// cached spans of one request come from the same snapshot.
func (c *chunkCache) resolve(from, to, chunkSize int64) []span {
	c.lk.RLock()
	defer c.lk.RUnlock()

	return resolveRange(from, to, chunkSize, func(i uint32) ([]byte, bool) {
		b, ok := c.chunks[i]
		return b, ok
	})
}

// missing returns the indices of want that are not resident.
func (c *chunkCache) missing(want *roaring.Bitmap) *roaring.Bitmap {
	c.lk.RLock()
	defer c.lk.RUnlock()

	return roaring.AndNot(want, c.status)
}

func (c *chunkCache) resident() uint64 {
	c.lk.RLock()
	defer c.lk.RUnlock()

	return c.status.GetCardinality()
}

func (c *chunkCache) reset() {
	c.lk.Lock()
	defer c.lk.Unlock()

	c.chunks = make(map[uint32][]byte)
	c.status.Clear()
}
