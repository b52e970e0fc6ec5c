package chunkstore

import (
	"os"
)

// FileCache holds a chunk's bytes in a file on disk, used for larger
// chunks where holding the whole chunk in memory would be wasteful
// (§4.4 "file-backed cache").
type FileCache struct {
	path string
	file *os.File
	size int64
}

// NewFileCache creates (or truncates) a file at path sized to exactly
// size bytes.
func NewFileCache(path string, size int64) (*FileCache, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &FileCache{path: path, file: f, size: size}, nil
}

// OpenFileCache opens an existing file whose on-disk size is the chunk's
// declared length.
func OpenFileCache(path string) (*FileCache, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileCache{path: path, file: f, size: info.Size()}, nil
}

func (c *FileCache) Read(offset int64, buf []byte) (int, error) {
	return c.file.ReadAt(buf, offset)
}

func (c *FileCache) Write(offset int64, buf []byte) (int, error) {
	return c.file.WriteAt(buf, offset)
}

func (c *FileCache) Seek(offset int64, whence int) (int64, error) {
	return c.file.Seek(offset, whence)
}

func (c *FileCache) Capacity() int64 { return c.size }

func (c *FileCache) Close() error { return c.file.Close() }

// Path returns the backing file path, e.g. for a tracker row.
func (c *FileCache) Path() string { return c.path }
