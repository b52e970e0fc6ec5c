package noc

import (
	"sync"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// lastAccessEntry is one pending last-access-time update, not yet flushed
// to the row store.
type lastAccessEntry struct {
	time     uint64
	rpath    string
	resident time.Time
}

// lastAccessBuffer batches last-access-time writes (§4.3): updates land in
// an in-memory map keyed by object id, and a periodic Flusher goroutine
// applies them to the row store once they've been resident at least
// residentFloor, resolving repeated updates to the same id by keeping the
// maximum last-access time seen.
type lastAccessBuffer struct {
	mu           sync.Mutex
	pending      map[objmodel.ObjectId]lastAccessEntry
	residentFloor time.Duration
	apply        func(id objmodel.ObjectId, t uint64, rpath string)

	stop chan struct{}
	done chan struct{}
}

// newLastAccessBuffer constructs a buffer that calls apply once an entry
// is flushed. residentFloor and tick match §4.3's "resident ≥10 minutes"
// / "flusher runs every minute" defaults when callers pass 10*time.Minute
// and time.Minute respectively.
func newLastAccessBuffer(residentFloor time.Duration, apply func(objmodel.ObjectId, uint64, string)) *lastAccessBuffer {
	return &lastAccessBuffer{
		pending:       make(map[objmodel.ObjectId]lastAccessEntry),
		residentFloor: residentFloor,
		apply:         apply,
	}
}

// Record stages a last-access update for id, taking the maximum of any
// pending time already buffered (§4.3 "max(last_access_time) conflict
// resolution on flush").
func (b *lastAccessBuffer) Record(id objmodel.ObjectId, t uint64, rpath string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok := b.pending[id]
	if ok && existing.time >= t {
		return
	}
	resident := now
	if ok {
		resident = existing.resident
	}
	b.pending[id] = lastAccessEntry{time: t, rpath: rpath, resident: resident}
}

// flushDue applies every pending entry that has been resident at least
// residentFloor as of now.
func (b *lastAccessBuffer) flushDue(now time.Time) {
	b.mu.Lock()
	due := make([]objmodel.ObjectId, 0)
	for id, e := range b.pending {
		if now.Sub(e.resident) >= b.residentFloor {
			due = append(due, id)
		}
	}
	entries := make(map[objmodel.ObjectId]lastAccessEntry, len(due))
	for _, id := range due {
		entries[id] = b.pending[id]
		delete(b.pending, id)
	}
	b.mu.Unlock()

	for id, e := range entries {
		b.apply(id, e.time, e.rpath)
	}
}

// FlushAll immediately applies every pending entry regardless of resident
// time, used on shutdown so no update is silently lost.
func (b *lastAccessBuffer) FlushAll() {
	b.mu.Lock()
	entries := b.pending
	b.pending = make(map[objmodel.ObjectId]lastAccessEntry)
	b.mu.Unlock()

	for id, e := range entries {
		b.apply(id, e.time, e.rpath)
	}
}

// StartFlusher launches the periodic flusher goroutine (§4.3 "ticks every
// minute"). Stop must be called to release it.
func (b *lastAccessBuffer) StartFlusher(tick time.Duration) {
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	ticker := time.NewTicker(tick)
	go func() {
		defer close(b.done)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				b.flushDue(now)
			case <-b.stop:
				return
			}
		}
	}()
}

// Stop halts the flusher goroutine started by StartFlusher and waits for
// it to exit.
func (b *lastAccessBuffer) Stop() {
	if b.stop == nil {
		return
	}
	close(b.stop)
	<-b.done
}
