package download

import (
	"context"
	"fmt"
	"io"

	"github.com/buckyos/cyfs-ndn-core/pkg/chunkstore"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// ChunkListCacheReader serves split-range reads across an ordered chunk
// list, writing each fetched chunk's bytes into a chunkstore.ChunkManager
// cache. The reader releases its cache reference right after the write,
// and the ChunkManager drops a cache when its last reference closes, so a
// later reader gets a cache hit only while another holder keeps that
// chunk's cache open.
type ChunkListCacheReader struct {
	ids     []objmodel.ChunkId
	mgr     *chunkstore.ChunkManager
	fetcher Fetcher
	dctx    *Context

	offset int64
}

// NewChunkListCacheReader wraps ids for sequential reading, deduplicating
// completed chunks into mgr.
func NewChunkListCacheReader(ids []objmodel.ChunkId, mgr *chunkstore.ChunkManager, fetcher Fetcher, dctx *Context) *ChunkListCacheReader {
	return &ChunkListCacheReader{ids: ids, mgr: mgr, fetcher: fetcher, dctx: dctx}
}

// Read fills buf starting at the reader's current offset, fetching and
// caching whichever chunks the requested range spans.
func (r *ChunkListCacheReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.offset)
	r.offset += int64(n)
	return n, err
}

// ReadAt fills p starting at byte offset within the concatenated chunk
// list, fetching (and caching) each chunk the range touches.
func (r *ChunkListCacheReader) ReadAt(p []byte, offset int64) (int, error) {
	if len(r.ids) == 0 {
		return 0, io.EOF
	}

	var written int
	remaining := int64(len(p))
	pos := offset

	for remaining > 0 {
		chunkIndex, chunkOffset, ok := r.locate(pos)
		if !ok {
			if written == 0 {
				return 0, io.EOF
			}
			return written, nil
		}

		data, err := r.chunkBytes(chunkIndex)
		if err != nil {
			return written, err
		}

		avail := int64(len(data)) - chunkOffset
		take := remaining
		if take > avail {
			take = avail
		}
		n := copy(p[written:int64(written)+take], data[chunkOffset:chunkOffset+take])
		written += n
		remaining -= int64(n)
		pos += int64(n)
	}
	return written, nil
}

// locate maps an absolute byte position to (chunk index, offset within
// that chunk); ok is false once pos runs past the end of the list.
func (r *ChunkListCacheReader) locate(pos int64) (index int, offset int64, ok bool) {
	var base int64
	for i, id := range r.ids {
		length := int64(id.Length)
		if pos < base+length {
			return i, pos - base, true
		}
		base += length
	}
	return 0, 0, false
}

// chunkBytes fetches id's full bytes (from the cache when it holds bytes
// matching id's hash, otherwise via the Fetcher), writing fetched bytes
// into the cache.
func (r *ChunkListCacheReader) chunkBytes(index int) ([]byte, error) {
	id := r.ids[index]

	if r.mgr != nil {
		if data, ok := r.readFromCache(id); ok {
			return data, nil
		}
	}

	if r.dctx == nil || len(r.dctx.Sources) == 0 {
		return nil, fmt.Errorf("download: chunk %s: no source candidates", id)
	}

	var lastErr error
	for _, candidate := range r.dctx.Sources {
		data, err := r.fetcher.FetchChunk(context.Background(), candidate, id)
		if err == nil {
			if r.mgr != nil {
				r.writeToCache(id, data)
			}
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("download: chunk %s: exhausted all candidates: %w", id, lastErr)
}

func (r *ChunkListCacheReader) readFromCache(id objmodel.ChunkId) ([]byte, bool) {
	cache, err := r.mgr.CreateCache(id)
	if err != nil {
		return nil, false
	}
	defer cache.Close()

	buf := make([]byte, id.Length)
	n, err := cache.Read(0, buf)
	if err != nil || n != int(id.Length) {
		return nil, false
	}
	if objmodel.ComputeChunkId(buf).Hash != id.Hash {
		return nil, false
	}
	return buf, true
}

func (r *ChunkListCacheReader) writeToCache(id objmodel.ChunkId, data []byte) {
	cache, err := r.mgr.CreateCache(id)
	if err != nil {
		return
	}
	defer cache.Close()
	_, _ = cache.Write(0, data)
}
