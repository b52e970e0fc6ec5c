package noc

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/buckyos/cyfs-ndn-core/pkg/access"
	"github.com/buckyos/cyfs-ndn-core/pkg/codec/cborcanon"
	"github.com/buckyos/cyfs-ndn-core/pkg/noc/idlock"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

var errPermissionDenied = fmt.Errorf("noc: permission denied")
var errNotFound = fmt.Errorf("noc: object not found")

// MemStore is the in-process Store implementation backed by a plain map
// of meta rows fronted by an LRU recency ring for Cache-category entries,
// and a content-addressed blob map keyed by body hash — the in-memory
// analogue of §6's "meta rows in a map with disk backing, blobs in a
// content-addressed directory tree keyed by body_hash hex". MemStore has
// no disk persistence: rows and blobs live only in process memory and are
// lost when the process exits.
type MemStore struct {
	mu   sync.RWMutex
	rows map[objmodel.ObjectId]MetaRow
	blobs map[[32]byte][]byte

	locks    *idlock.Registry
	pathMeta *access.PathMetaTree
	cacheLRU *lru.Cache[objmodel.ObjectId, struct{}]

	lastAccess *lastAccessBuffer

	localDeviceId objmodel.ObjectId
	systemDecId   *objmodel.ObjectId
}

// NewMemStore constructs an empty store. localDeviceId and systemDecId
// (optional) feed the access short-circuit of §4.2; cacheCapacity bounds
// the Cache-category LRU ring.
func NewMemStore(localDeviceId objmodel.ObjectId, systemDecId *objmodel.ObjectId, cacheCapacity int) (*MemStore, error) {
	ring, err := lru.New[objmodel.ObjectId, struct{}](cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("noc: create lru ring: %w", err)
	}
	s := &MemStore{
		rows:          make(map[objmodel.ObjectId]MetaRow),
		blobs:         make(map[[32]byte][]byte),
		locks:         idlock.NewRegistry(),
		pathMeta:      access.NewPathMetaTree(),
		cacheLRU:      ring,
		localDeviceId: localDeviceId,
		systemDecId:   systemDecId,
	}
	s.lastAccess = newLastAccessBuffer(10*time.Minute, s.applyLastAccess)
	return s, nil
}

// PathMeta exposes the store's path ACL tree so callers can install rules.
func (s *MemStore) PathMeta() *access.PathMetaTree { return s.pathMeta }

// StartFlusher begins the periodic last-access flush goroutine (§4.3).
func (s *MemStore) StartFlusher() { s.lastAccess.StartFlusher(time.Minute) }

// Close stops the flusher and flushes any pending last-access updates.
func (s *MemStore) Close() {
	s.lastAccess.Stop()
	s.lastAccess.FlushAll()
}

func (s *MemStore) applyLastAccess(id objmodel.ObjectId, t uint64, rpath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return
	}
	if t > row.LastAccessTime {
		row.LastAccessTime = t
		row.LastAccessRPath = rpath
		s.rows[id] = row
	}
}

func bodyHash(body []byte) [32]byte {
	cid := objmodel.ComputeChunkId(body)
	return cid.Hash
}

// Put inserts or updates row, storing body as its content-addressed blob.
// Access is evaluated against the PREVIOUS row when one exists. A put that
// creates a new id runs no access check: neither the path rules nor the
// new row's own access string are consulted.
func (s *MemStore) Put(src access.Source, row MetaRow, body []byte) (PutResult, error) {
	s.locks.Acquire(row.ObjectId)
	defer s.locks.Release(row.ObjectId)

	s.mu.Lock()
	existing, exists := s.rows[row.ObjectId]
	s.mu.Unlock()

	if exists {
		if err := s.checkAccess(src, existing, access.PermWrite); err != nil {
			return PutResult{}, err
		}
	}

	row.BodyHash = bodyHash(body)

	s.mu.Lock()
	s.rows[row.ObjectId] = row
	if len(body) > 0 {
		s.blobs[row.BodyHash] = append([]byte(nil), body...)
	}
	s.mu.Unlock()

	if row.StorageCategory == StorageCache {
		s.cacheLRU.Add(row.ObjectId, struct{}{})
	}

	kind := PutAccepted
	if exists {
		kind = PutUpdated
	}
	return PutResult{Kind: kind, Row: row}, nil
}

// Get retrieves an object's row and blob, access-checked for read.
func (s *MemStore) Get(src access.Source, id objmodel.ObjectId) (GetResult, error) {
	s.locks.Acquire(id)
	defer s.locks.Release(id)

	s.mu.RLock()
	row, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return GetResult{Kind: GetNotFound}, nil
	}

	if err := s.checkAccess(src, row, access.PermRead); err != nil {
		return GetResult{Kind: GetPermissionDenied, Row: row}, nil
	}

	s.mu.RLock()
	body := s.blobs[row.BodyHash]
	s.mu.RUnlock()

	if row.StorageCategory == StorageCache {
		s.cacheLRU.Add(id, struct{}{})
	}
	s.lastAccess.Record(id, uint64(time.Now().UnixMilli()), row.Context, time.Now())

	return GetResult{Kind: GetFound, Row: row, Body: append([]byte(nil), body...)}, nil
}

// Delete removes id's row (and its blob, if unreferenced by any other
// row's BodyHash) after a write-permission check.
func (s *MemStore) Delete(src access.Source, id objmodel.ObjectId) error {
	s.locks.Acquire(id)
	defer s.locks.Release(id)

	s.mu.Lock()
	row, ok := s.rows[id]
	s.mu.Unlock()
	if !ok {
		return errNotFound
	}
	if err := s.checkAccess(src, row, access.PermWrite); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.rows, id)
	s.referenceSweepLocked(row.BodyHash)
	s.mu.Unlock()

	s.cacheLRU.Remove(id)
	return nil
}

// referenceSweepLocked drops hash's blob once no remaining row references
// it. Callers must hold s.mu for writing.
func (s *MemStore) referenceSweepLocked(hash [32]byte) {
	for _, row := range s.rows {
		if row.BodyHash == hash {
			return
		}
	}
	delete(s.blobs, hash)
}

// Exists reports whether id has a row, with no access check — existence
// itself is not considered sensitive (§4.2).
func (s *MemStore) Exists(id objmodel.ObjectId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows[id]
	return ok
}

// UpdateMeta applies fn to id's row in place, under the id's lock, after a
// write-permission check.
func (s *MemStore) UpdateMeta(src access.Source, id objmodel.ObjectId, fn func(*MetaRow)) error {
	s.locks.Acquire(id)
	defer s.locks.Release(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return errNotFound
	}
	if err := s.checkAccess(src, row, access.PermWrite); err != nil {
		return err
	}
	fn(&row)
	s.rows[id] = row
	return nil
}

// CheckAccess exposes the three-step evaluator directly, e.g. for router
// pre-handlers that want to fail fast before doing any work.
func (s *MemStore) CheckAccess(src access.Source, id objmodel.ObjectId, required access.Permission) error {
	s.mu.RLock()
	row, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return errNotFound
	}
	return s.checkAccess(src, row, required)
}

// Stat reports current occupancy.
func (s *MemStore) Stat() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var blobBytes int64
	for _, b := range s.blobs {
		blobBytes += int64(len(b))
	}
	return Stats{RowCount: len(s.rows), BlobBytes: blobBytes}
}

// encodeRow serializes a row in the same canonical CBOR form the rest of
// the system uses, and decodeRow reverses it; nothing in this package
// writes the encoded rows to disk.
func encodeRow(row MetaRow) ([]byte, error) { return cborcanon.Marshal(row) }

func decodeRow(data []byte) (MetaRow, error) {
	var row MetaRow
	err := cborcanon.Unmarshal(data, &row)
	return row, err
}
