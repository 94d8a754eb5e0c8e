package remotefs

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"testing"
)

func TestOpenSharesFile(t *testing.T) {
	m := newMemFetcher().add("idx/a", testFile(10000))
	reg := newTestRegistry(m)
	ctx := context.Background()

	a, err := reg.Open(ctx, "idx/a", 4096)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	b, err := reg.Open(ctx, "idx/a", 1024)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	if a != b {
		t.Fatal("two opens of the same path returned different files")
	}
	if b.ChunkSize() != 4096 {
		t.Errorf("ChunkSize() = %d, want 4096 pinned by the first open", b.ChunkSize())
	}
	if n := m.lengthCount(); n != 1 {
		t.Errorf("made %d length queries, want 1", n)
	}

	if _, err := a.ReadRange(ctx, 0, 100); err != nil {
		t.Fatalf("ReadRange through a failed: %v", err)
	}
	before := m.fetchCount()
	if _, err := b.ReadRange(ctx, 50, 150); err != nil {
		t.Fatalf("ReadRange through b failed: %v", err)
	}
	if n := m.fetchCount(); n != before {
		t.Errorf("ReadRange through b made %d fetches, want 0", n-before)
	}
}

func TestOpenConcurrent(t *testing.T) {
	m := newMemFetcher().add("c", testFile(100))
	reg := newTestRegistry(m)

	files := make([]*File, 50)
	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := reg.Open(context.Background(), "c", 10)
			if err != nil {
				t.Errorf("concurrent Open failed: %v", err)
				return
			}
			files[i] = f
		}(i)
	}
	wg.Wait()

	for _, f := range files[1:] {
		if f != files[0] {
			t.Fatal("concurrent opens returned different files")
		}
	}
	if n := m.lengthCount(); n != 1 {
		t.Errorf("concurrent opens made %d length queries, want 1", n)
	}
}

func TestOpenDefaultChunkSize(t *testing.T) {
	reg := newTestRegistry(newMemFetcher().add("d", testFile(10)))
	reg.ChunkSize = 4

	f, err := reg.Open(context.Background(), "d", 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if f.ChunkSize() != 4 {
		t.Errorf("ChunkSize() = %d, want default 4", f.ChunkSize())
	}
}

func TestSmallFileChunkSize(t *testing.T) {
	m := newMemFetcher().add("idx/seg.store", testFile(10000)).add("idx/seg.idx", testFile(10000))
	reg := newTestRegistry(m)
	reg.SmallFileChunkSize = 1024
	ctx := context.Background()

	f, err := reg.Open(ctx, "idx/seg.store", 4096)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if f.ChunkSize() != 1024 {
		t.Errorf("ChunkSize() = %d for small file, want 1024", f.ChunkSize())
	}
	if _, err := f.ReadRange(ctx, 0, 3000); err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if n := m.fetchCount(); n != 3 {
		t.Errorf("ReadRange(0, 3000) made %d fetches, want 3", n)
	}
	for _, r := range m.fetchLog() {
		if r.Len() != 1024 {
			t.Errorf("fetched %v, want 1024-byte chunks", r)
		}
	}

	g, err := reg.Open(ctx, "idx/seg.idx", 4096)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if g.ChunkSize() != 4096 {
		t.Errorf("ChunkSize() = %d for regular file, want 4096", g.ChunkSize())
	}
}

func TestSmallFilePredicate(t *testing.T) {
	reg := newTestRegistry(newMemFetcher().add("a.pos", testFile(10)).add("a.store", testFile(10)))
	reg.SmallFileChunkSize = 2
	reg.SmallFile = func(path string) bool { return strings.HasSuffix(path, ".pos") }
	ctx := context.Background()

	f, err := reg.Open(ctx, "a.pos", 8)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if f.ChunkSize() != 2 {
		t.Errorf("ChunkSize() = %d, want 2", f.ChunkSize())
	}

	g, err := reg.Open(ctx, "a.store", 8)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if g.ChunkSize() != 8 {
		t.Errorf("ChunkSize() = %d, predicate should replace the suffixes", g.ChunkSize())
	}
}

func TestOpenNotFound(t *testing.T) {
	m := newMemFetcher()
	reg := newTestRegistry(m)

	_, err := reg.Open(context.Background(), "missing", 10)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Open error = %v, want ErrNotFound", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open error = %v, want fs.ErrNotExist", err)
	}
	if reg.Lookup("missing") != nil {
		t.Error("failed open left an entry")
	}

	m.add("missing", testFile(10))
	if _, err := reg.Open(context.Background(), "missing", 10); err != nil {
		t.Errorf("Open after the file appeared failed: %v", err)
	}
}

type plainErrFetcher struct{ memFetcher }

func (p *plainErrFetcher) Length(context.Context, string) (int64, error) {
	return 0, fs.ErrNotExist
}

func TestOpenMapsNotExist(t *testing.T) {
	reg := newTestRegistry(&plainErrFetcher{})

	_, err := reg.Open(context.Background(), "x", 10)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Open error = %v, want ErrNotFound", err)
	}
}

func TestOpenLengthPanic(t *testing.T) {
	m := newMemFetcher().add("p", testFile(10))
	m.set(func(m *memFetcher) { m.panicLen = true })
	reg := newTestRegistry(m)

	if _, err := reg.Open(context.Background(), "p", 4); !errors.Is(err, ErrPoisoned) {
		t.Fatalf("Open error = %v, want ErrPoisoned", err)
	}
	if reg.Lookup("p") != nil {
		t.Error("panicking open left an entry")
	}

	m.set(func(m *memFetcher) { m.panicLen = false })
	if _, err := reg.Open(context.Background(), "p", 4); err != nil {
		t.Errorf("Open after panic failed: %v", err)
	}
}

func TestForgetAndPaths(t *testing.T) {
	m := newMemFetcher().add("b", testFile(10)).add("a", testFile(10))
	reg := newTestRegistry(m)
	ctx := context.Background()

	for _, p := range []string{"b", "a"} {
		if _, err := reg.Open(ctx, p, 4); err != nil {
			t.Fatalf("Open(%s) failed: %v", p, err)
		}
	}
	if got := strings.Join(reg.Paths(), ","); got != "a,b" {
		t.Errorf("Paths() = %s, want a,b", got)
	}

	reg.Forget("a")
	if got := strings.Join(reg.Paths(), ","); got != "b" {
		t.Errorf("Paths() after Forget = %s, want b", got)
	}
	if _, err := reg.Open(ctx, "a", 4); err != nil {
		t.Fatalf("Open after Forget failed: %v", err)
	}
	if n := m.lengthCount(); n != 3 {
		t.Errorf("made %d length queries, want 3", n)
	}
}

func TestRegistryStats(t *testing.T) {
	m := newMemFetcher().add("a", testFile(100)).add("b", testFile(100))
	reg := newTestRegistry(m)
	ctx := context.Background()

	for _, p := range []string{"a", "b"} {
		f, err := reg.Open(ctx, p, 10)
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", p, err)
		}
		if _, err := f.ReadRange(ctx, 0, 20); err != nil {
			t.Fatalf("ReadRange failed: %v", err)
		}
	}

	stats := reg.Stats()
	if len(stats) != 2 || stats["a"].FetchCalls != 2 || stats["b"].FetchCalls != 2 {
		t.Errorf("Stats() = %+v, want 2 fetches for a and b", stats)
	}
	total := reg.TotalStats()
	if total.FetchCalls != 4 || total.FetchedBytes != 40 || total.Requests != 2 {
		t.Errorf("TotalStats() = %+v", total)
	}
}
