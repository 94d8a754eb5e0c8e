package remotefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalFetcher reads files from the local filesystem. Paths are resolved
// relative to root; with an empty root they are used as is.
type LocalFetcher struct {
	root string
}

func NewLocalFetcher(root string) *LocalFetcher {
	return &LocalFetcher{root: root}
}

func (l *LocalFetcher) resolve(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

func (l *LocalFetcher) Length(_ context.Context, path string) (int64, error) {
	st, err := os.Stat(l.resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return 0, err
	}
	if st.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return st.Size(), nil
}

func (l *LocalFetcher) Fetch(_ context.Context, path string, from, to int64) ([]byte, error) {
	if from < 0 || to <= from {
		return nil, fmt.Errorf("%w: [%d, %d) of %s", ErrInvalidRange, from, to, path)
	}

	f, err := os.Open(l.resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, to-from)
	n, err := f.ReadAt(buf, from)
	if err == io.EOF && n == len(buf) {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}
