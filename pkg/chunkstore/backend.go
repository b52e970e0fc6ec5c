// Package chunkstore implements the raw-cache manager of §4.4: quota-
// tracked memory and file-backed chunk storage, reference counted so a
// chunk's bytes are only released once every holder has closed its cache
// handle.
package chunkstore

import (
	"fmt"
	"io"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// CacheBackend is the storage surface a ChunkCache is built over: either
// an in-memory byte slice (MemCache) or an on-disk file (FileCache).
type CacheBackend interface {
	io.Closer
	Read(offset int64, buf []byte) (int, error)
	Write(offset int64, buf []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Capacity() int64
}

// ErrOutOfQuota is returned when a cache allocation would exceed the
// Manager's configured byte budget.
var ErrOutOfQuota = fmt.Errorf("chunkstore: out of quota")

// ChunkCache pairs a chunk's identity with the backend holding its bytes.
// onClose is invoked on every Close and releases one reference; when the
// last reference is released, a ChunkManager drops its own index entry in
// step with the Manager releasing the underlying quota.
type ChunkCache struct {
	Id      objmodel.ChunkId
	backend CacheBackend
	refs    int32
	onClose func(*ChunkCache) error
}

// Read proxies to the underlying backend.
func (c *ChunkCache) Read(offset int64, buf []byte) (int, error) {
	if c.Id.IsEmpty() {
		return 0, nil
	}
	return c.backend.Read(offset, buf)
}

// Write proxies to the underlying backend.
func (c *ChunkCache) Write(offset int64, buf []byte) (int, error) {
	return c.backend.Write(offset, buf)
}

// Capacity returns the chunk's declared length.
func (c *ChunkCache) Capacity() int64 { return c.backend.Capacity() }

// Close releases one reference; the backend is closed and its quota
// returned once the last reference is released.
func (c *ChunkCache) Close() error {
	if c.onClose == nil {
		return c.backend.Close()
	}
	return c.onClose(c)
}

// addRef increments the reference count, used when a second caller
// obtains the same cache from ChunkManager.CreateCache.
func (c *ChunkCache) addRef() { c.refs++ }
