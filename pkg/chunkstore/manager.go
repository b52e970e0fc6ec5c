package chunkstore

import (
	"fmt"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Manager owns a fixed byte budget shared by every cache it creates,
// tracking usage with a mutex-guarded counter rather than a separate
// semaphore type (the budget here is a simple monotone counter, not a
// pool of typed resources, so a weighted semaphore would add a
// dependency without adding expressiveness).
type Manager struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	fileDir string
}

// NewManager creates a Manager with the given byte budget. fileDir is
// where on-disk caches are created; an empty fileDir disables FileCache
// allocation (memory-only operation, e.g. in tests).
func NewManager(budget int64, fileDir string) *Manager {
	return &Manager{budget: budget, fileDir: fileDir}
}

// acquire reserves n bytes of quota, failing with ErrOutOfQuota if doing
// so would exceed the budget.
func (m *Manager) acquire(n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used+n > m.budget {
		return ErrOutOfQuota
	}
	m.used += n
	return nil
}

// releaseBytes returns n bytes of quota to the budget.
func (m *Manager) releaseBytes(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= n
	if m.used < 0 {
		m.used = 0
	}
}

// Used reports how much of the budget is currently reserved.
func (m *Manager) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// Budget reports the total byte budget.
func (m *Manager) Budget() int64 { return m.budget }

// newMemCache acquires quota and backs a ChunkCache with a MemCache.
func (m *Manager) newMemCache(id objmodel.ChunkId) (*ChunkCache, error) {
	size := int64(id.Length)
	if err := m.acquire(size); err != nil {
		return nil, err
	}
	return &ChunkCache{Id: id, backend: NewMemCache(size), refs: 1}, nil
}

// newFileCache acquires quota and backs a ChunkCache with a FileCache
// under m.fileDir.
func (m *Manager) newFileCache(id objmodel.ChunkId) (*ChunkCache, error) {
	if m.fileDir == "" {
		return nil, fmt.Errorf("chunkstore: manager has no file directory configured")
	}
	size := int64(id.Length)
	if err := m.acquire(size); err != nil {
		return nil, err
	}
	path := filepath.Join(m.fileDir, id.String()+".chunk")
	fc, err := NewFileCache(path, size)
	if err != nil {
		m.releaseBytes(size)
		return nil, err
	}
	return &ChunkCache{Id: id, backend: fc, refs: 1}, nil
}

// closeAndRelease closes c's backend and returns its bytes to the budget.
// Called once a ChunkCache's reference count reaches zero.
func (m *Manager) closeAndRelease(c *ChunkCache) error {
	size := c.Capacity()
	err := c.backend.Close()
	m.releaseBytes(size)
	return err
}

// ChunkManager is the top-level entry point of §4.4: it creates
// reference-counted caches on first request and tracks which files
// reference which chunks.
type ChunkManager struct {
	*Manager

	mu     sync.Mutex
	caches map[objmodel.ChunkId]*ChunkCache

	// lru records cached entries in last-access order; it stores no value
	// payload, since the actual bytes live in caches. An entry dropped from
	// lru at capacity stays in caches: nothing is evicted from caches here.
	lru *lru.Cache[objmodel.ChunkId, struct{}]

	trackers map[objmodel.ObjectId][]TrackerRow
}

// NewChunkManager wraps mgr with the reference-counted cache index and an
// LRU eviction ring of the given capacity (number of tracked entries, not
// bytes — byte accounting is the Manager's job).
func NewChunkManager(mgr *Manager, lruCapacity int) (*ChunkManager, error) {
	ring, err := lru.New[objmodel.ChunkId, struct{}](lruCapacity)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: create lru ring: %w", err)
	}
	return &ChunkManager{
		Manager:  mgr,
		caches:   make(map[objmodel.ChunkId]*ChunkCache),
		lru:      ring,
		trackers: make(map[objmodel.ObjectId][]TrackerRow),
	}, nil
}

// CreateCache returns the ChunkCache for id, creating it on first call and
// incrementing its reference count on subsequent calls (§4.4 "create-on-
// first-call, reference-counted"). A zero-length id is special-cased to
// never touch the Manager's quota or backend storage.
func (cm *ChunkManager) CreateCache(id objmodel.ChunkId) (*ChunkCache, error) {
	if id.IsEmpty() {
		return &ChunkCache{Id: id, backend: NewMemCache(0), refs: 1}, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if existing, ok := cm.caches[id]; ok {
		existing.addRef()
		cm.lru.Add(id, struct{}{})
		return existing, nil
	}

	cache, err := cm.Manager.newMemCache(id)
	if err != nil {
		return nil, err
	}
	cache.onClose = cm.onCacheClosed
	cm.caches[id] = cache
	cm.lru.Add(id, struct{}{})
	return cache, nil
}

// onCacheClosed is the ChunkCache.onClose callback: it decrements the
// reference count and, once it reaches zero, evicts the index entry and
// asks the Manager to close the backend and return its quota.
func (cm *ChunkManager) onCacheClosed(c *ChunkCache) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c.refs--
	if c.refs > 0 {
		return nil
	}
	delete(cm.caches, c.Id)
	cm.lru.Remove(c.Id)
	return cm.Manager.closeAndRelease(c)
}
