package remotefs

import "fmt"

// chunk indices are uint32 (roaring bitmap keys)
const maxChunks = 1 << 32

func (f *File) chunkCount() int64 {
	// compute number of chunks
	cnt := f.size / f.chunkSize
	if f.size%f.chunkSize != 0 {
		cnt += 1
	}

	return cnt
}

// chunkBounds returns the byte span [from, to) of chunk i. Only the last
// chunk can be shorter than the chunk size.
func (f *File) chunkBounds(i uint32) (int64, int64) {
	from := int64(i) * f.chunkSize
	to := from + f.chunkSize
	if to > f.size {
		to = f.size
	}
	return from, to
}

// checkChunk verifies that a fetched buffer has exactly the size of chunk i.
func (f *File) checkChunk(i uint32, b []byte) error {
	if int64(i) >= f.chunkCount() {
		return fmt.Errorf("%w: %s chunk %d is past EOF", ErrTransfer, f.path, i)
	}

	from, to := f.chunkBounds(i)
	if int64(len(b)) != to-from {
		if int64(i) == f.chunkCount()-1 {
			return fmt.Errorf("%w: %s final chunk %d has %d bytes, want %d", ErrTransfer, f.path, i, len(b), to-from)
		}
		return fmt.Errorf("%w: %s chunk %d has %d bytes, want %d", ErrTransfer, f.path, i, len(b), to-from)
	}
	return nil
}
