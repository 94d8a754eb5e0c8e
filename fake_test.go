package remotefs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memFetcher serves files from memory and records every call.
type memFetcher struct {
	mu    sync.Mutex
	files map[string][]byte

	lengthCalls int
	fetches     []Range

	// Optional hooks to inject failures.
	fetchErr   error
	short      bool          // return one byte less than asked
	panicFetch bool          // panic inside Fetch
	panicLen   bool          // panic inside Length
	delay      time.Duration // wait (honouring ctx) before answering Fetch
}

func newMemFetcher() *memFetcher {
	return &memFetcher{files: make(map[string][]byte)}
}

func (m *memFetcher) add(path string, data []byte) *memFetcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
	return m
}

func (m *memFetcher) Length(_ context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lengthCalls++
	if m.panicLen {
		panic("length exploded")
	}
	data, ok := m.files[path]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return int64(len(data)), nil
}

func (m *memFetcher) Fetch(ctx context.Context, path string, from, to int64) ([]byte, error) {
	m.mu.Lock()
	m.fetches = append(m.fetches, Range{From: from, To: to})
	data, ok := m.files[path]
	fetchErr, short, panicFetch, delay := m.fetchErr, m.short, m.panicFetch, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if panicFetch {
		panic("fetch exploded")
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if from < 0 || to > int64(len(data)) || from >= to {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, from, to)
	}

	buf := append([]byte(nil), data[from:to]...)
	if short {
		buf = buf[:len(buf)-1]
	}
	return buf, nil
}

func (m *memFetcher) set(fn func(m *memFetcher)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *memFetcher) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetches)
}

func (m *memFetcher) fetchLog() []Range {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Range(nil), m.fetches...)
}

func (m *memFetcher) lengthCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lengthCalls
}

// hintingFetcher is a memFetcher that also records prefetch hints.
type hintingFetcher struct {
	*memFetcher

	hintMu sync.Mutex
	hints  [][]uint32
}

func (h *hintingFetcher) HintPrefetch(_ context.Context, _ string, _ int64, chunks []uint32) error {
	h.hintMu.Lock()
	defer h.hintMu.Unlock()
	h.hints = append(h.hints, append([]uint32(nil), chunks...))
	return nil
}

// testFile returns n bytes of deterministic, non-repeating-looking content.
func testFile(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

func newTestRegistry(f Fetcher) *Registry {
	reg := NewRegistry(f)
	reg.Logger = nil // Suppress logging
	reg.ReadAhead = 0
	return reg
}

// rangeErrFetcher fails every fetch of one range after a delay.
type rangeErrFetcher struct {
	*memFetcher
	bad   Range
	after time.Duration
}

func (r *rangeErrFetcher) Fetch(ctx context.Context, path string, from, to int64) ([]byte, error) {
	if from == r.bad.From && to == r.bad.To {
		time.Sleep(r.after)
		return nil, fmt.Errorf("connection reset reading [%d, %d)", from, to)
	}
	return r.memFetcher.Fetch(ctx, path, from, to)
}
