package remotefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrNotFound is returned when the fetcher cannot find the requested
	// path. It matches fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("remotefs: file not found: %w", fs.ErrNotExist)

	// ErrTransfer is returned when a fetch fails or returns a buffer of the
	// wrong size. Nothing is cached when this happens.
	ErrTransfer = errors.New("remotefs: transfer failed")

	// ErrUnsupported is returned by every write-side operation of a
	// Directory. It matches errors.ErrUnsupported.
	ErrUnsupported = fmt.Errorf("remotefs: read-only directory: %w", errors.ErrUnsupported)

	// ErrTimeout is returned when a fetch exceeds Registry.FetchTimeout. It
	// matches os.ErrDeadlineExceeded.
	ErrTimeout = fmt.Errorf("remotefs: fetch timed out: %w", os.ErrDeadlineExceeded)

	// ErrPoisoned is returned by a File whose fetcher panicked. The file is
	// dropped from its registry; opening the path again builds a new one.
	ErrPoisoned = errors.New("remotefs: file state poisoned")

	// ErrInvalidRange is returned for byte ranges outside [0, length].
	ErrInvalidRange = errors.New("remotefs: invalid byte range")
)

// unsupported builds the error returned by write-side Directory methods.
func unsupported(op, path string) error {
	return &fs.PathError{Op: op, Path: path, Err: ErrUnsupported}
}
