package remotefs

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"path"
	"time"
)

var (
	_ fs.FS         = (*Directory)(nil)
	_ fs.ReadFileFS = (*Directory)(nil)
	_ io.ReaderAt   = (*File)(nil)
	_ io.ReaderAt   = (*openFile)(nil)
	_ io.Seeker     = (*openFile)(nil)
)

// Open implements fs.FS. Directories cannot be listed, so only regular
// files can be opened. Closing the returned file does not close the shared
// File behind it.
func (d *Directory) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return nil, unsupported("open", name)
	}

	f, err := d.GetHandle(context.Background(), name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &openFile{name: name, f: f, r: f.NewReader()}, nil
}

// ReadFile implements fs.ReadFileFS. The result is a private copy.
func (d *Directory) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}

	b, err := d.ReadAll(context.Background(), name)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return bytes.Clone(b), nil
}

type openFile struct {
	name string
	f    *File
	r    *io.SectionReader
}

func (o *openFile) Stat() (fs.FileInfo, error) {
	return fileInfo{name: path.Base(o.name), size: o.f.Len()}, nil
}

func (o *openFile) Read(p []byte) (int, error) { return o.r.Read(p) }

func (o *openFile) ReadAt(p []byte, off int64) (int, error) { return o.r.ReadAt(p, off) }

func (o *openFile) Seek(offset int64, whence int) (int64, error) { return o.r.Seek(offset, whence) }

func (o *openFile) Close() error { return nil }

type fileInfo struct {
	name string
	size int64
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return nil }
