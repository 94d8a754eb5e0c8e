package remotefs

import (
	"context"
	"io"
	"path"
	"strings"
)

// Directory exposes the files below a root through a Registry. It is the
// read-only directory an index engine opens its files from: handles, ranged
// reads and whole-file reads are supported, while every write-side
// operation fails with ErrUnsupported.
type Directory struct {
	reg       *Registry
	root      string
	chunkSize int64
}

// NewDirectory returns a Directory serving the files below root. chunkSize
// is requested for every file; see Registry.Open for how it is applied.
func NewDirectory(reg *Registry, root string, chunkSize int64) *Directory {
	return &Directory{
		reg:       reg,
		root:      strings.TrimSuffix(root, "/"),
		chunkSize: chunkSize,
	}
}

// Root returns the root the directory was created with.
func (d *Directory) Root() string { return d.root }

// canonical returns the registry key of name. Only the relative part is
// cleaned, since the root may be a URL.
func (d *Directory) canonical(name string) string {
	rel := strings.TrimPrefix(path.Clean("/"+name), "/")
	if d.root == "" {
		return rel
	}
	return d.root + "/" + rel
}

// GetHandle returns the File for name.
func (d *Directory) GetHandle(ctx context.Context, name string) (*File, error) {
	return d.reg.Open(ctx, d.canonical(name), d.chunkSize)
}

// Read returns the bytes [from, to) of name.
func (d *Directory) Read(ctx context.Context, name string, from, to int64) ([]byte, error) {
	f, err := d.GetHandle(ctx, name)
	if err != nil {
		return nil, err
	}
	return f.ReadRange(ctx, from, to)
}

// ReadAll returns the whole content of name. The result may reference the
// cache and must not be modified.
func (d *Directory) ReadAll(ctx context.Context, name string) ([]byte, error) {
	f, err := d.GetHandle(ctx, name)
	if err != nil {
		return nil, err
	}
	return f.ReadAll(ctx)
}

// Length returns the size of name.
func (d *Directory) Length(ctx context.Context, name string) (int64, error) {
	f, err := d.GetHandle(ctx, name)
	if err != nil {
		return 0, err
	}
	return f.Len(), nil
}

// Delete always fails, the directory is read-only.
func (d *Directory) Delete(name string) error {
	return unsupported("delete", name)
}

// OpenWrite always fails, the directory is read-only.
func (d *Directory) OpenWrite(name string) (io.WriteCloser, error) {
	return nil, unsupported("open_write", name)
}

// AtomicWrite always fails, the directory is read-only.
func (d *Directory) AtomicWrite(name string, data []byte) error {
	return unsupported("atomic_write", name)
}

// Exists always fails, existence is only known through GetHandle.
func (d *Directory) Exists(name string) (bool, error) {
	return false, unsupported("exists", name)
}

// Watch always fails, remote files never change underneath a reader.
func (d *Directory) Watch(callback func()) (io.Closer, error) {
	return nil, unsupported("watch", d.root)
}
