package remotefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ---------------------------------------------------------------------------
// mock S3 client
// ---------------------------------------------------------------------------

// apiError implements smithy.APIError for test assertions.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
var errNotFound = &apiError{code: "NotFound", msg: "not found"}

// mockS3 is a thread-safe in-memory S3 backend serving ranged reads.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	ranges  []string

	// Optional hooks to inject errors.
	getErr  error
	headErr error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}

	rng := aws.ToString(in.Range)
	m.ranges = append(m.ranges, rng)
	if rng != "" {
		var start, end int64
		if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
			return nil, &apiError{code: "InvalidRange", msg: err.Error()}
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

// ---------------------------------------------------------------------------
// S3Fetcher tests
// ---------------------------------------------------------------------------

func newTestS3(t *testing.T, prefix string) (*S3Fetcher, *mockS3) {
	t.Helper()
	mock := newMockS3()
	return NewS3Fetcher(mock, "test-bucket", prefix), mock
}

func TestS3Length(t *testing.T) {
	fetcher, mock := newTestS3(t, "")
	mock.objects["idx/a.idx"] = testFile(5000)
	ctx := context.Background()

	n, err := fetcher.Length(ctx, "idx/a.idx")
	if err != nil {
		t.Fatal(err)
	}
	if n != 5000 {
		t.Fatalf("Length = %d, want 5000", n)
	}

	_, err = fetcher.Length(ctx, "idx/missing")
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Length(missing) error = %v, want ErrNotFound", err)
	}

	mock.headErr = &apiError{code: "AccessDenied", msg: "denied"}
	_, err = fetcher.Length(ctx, "idx/a.idx")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Length error = %v, want a non not-found error", err)
	}
}

func TestS3Fetch(t *testing.T) {
	fetcher, mock := newTestS3(t, "")
	data := testFile(5000)
	mock.objects["a"] = data
	ctx := context.Background()

	got, err := fetcher.Fetch(ctx, "a", 100, 1100)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data[100:1100]) {
		t.Fatal("Fetch data doesn't match")
	}
	if mock.ranges[0] != "bytes=100-1099" {
		t.Fatalf("Range = %q, want bytes=100-1099", mock.ranges[0])
	}

	if _, err := fetcher.Fetch(ctx, "missing", 0, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := fetcher.Fetch(ctx, "a", 10, 5); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Fetch(10, 5) error = %v, want ErrInvalidRange", err)
	}

	// a short object body is an error
	if _, err := fetcher.Fetch(ctx, "a", 4990, 5010); err == nil {
		t.Fatal("Fetch past the end of the object should fail")
	}
}

func TestS3Prefix(t *testing.T) {
	fetcher, mock := newTestS3(t, "tenant-1")
	mock.objects["tenant-1/idx/a"] = testFile(100)

	n, err := fetcher.Length(context.Background(), "idx/a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 100 {
		t.Fatalf("Length = %d, want 100", n)
	}
	if _, err := fetcher.Fetch(context.Background(), "idx/a", 0, 100); err != nil {
		t.Fatal(err)
	}
}

func TestS3ThroughDirectory(t *testing.T) {
	fetcher, mock := newTestS3(t, "indexes")
	data := testFile(70000)
	mock.objects["indexes/books/0a.idx"] = data

	d := NewDirectory(newTestRegistry(fetcher), "books", 16384)
	ctx := context.Background()

	got, err := d.Read(ctx, "0a.idx", 16000, 33000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data[16000:33000]) {
		t.Fatal("Read data doesn't match")
	}
	want := []string{"bytes=0-16383", "bytes=16384-32767", "bytes=32768-49151"}
	if len(mock.ranges) != len(want) {
		t.Fatalf("made %d GetObject calls, want %d", len(mock.ranges), len(want))
	}
	seen := make(map[string]bool)
	for _, r := range mock.ranges {
		seen[r] = true
	}
	for _, r := range want {
		if !seen[r] {
			t.Errorf("missing GetObject for %s", r)
		}
	}

	all, err := d.ReadAll(ctx, "0a.idx")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(all, data) {
		t.Fatal("ReadAll data doesn't match")
	}

	mock.getErr = &apiError{code: "SlowDown", msg: "slow down"}
	if _, err := d.GetHandle(ctx, "0a.idx"); err != nil {
		t.Fatalf("cached handle failed: %v", err)
	}
	if _, err := d.Read(ctx, "0a.idx", 0, 10); err != nil {
		t.Fatalf("cached Read failed: %v", err)
	}
}
