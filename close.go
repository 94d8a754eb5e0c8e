package remotefs

import "io/fs"

// Close drops the file from its registry and releases its cache. The File
// is shared by everyone who opened the path, so every holder sees
// fs.ErrClosed afterwards; opening the path again creates a new File.
func (f *File) Close() error {
	f.lk.Lock()
	if f.err != nil {
		f.lk.Unlock()
		return nil
	}
	f.err = fs.ErrClosed
	f.lk.Unlock()

	f.reg.forget(f)
	f.reg.unstage(f.path)
	f.cache.reset()

	return nil
}
