package dhtkbucket

import (
	"sync"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/constants"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Table is a 256-bucket XOR-distance routing table of SN candidates,
// keyed by object id (§4.5 "k-bucket SN selection").
type Table struct {
	mu      sync.RWMutex
	localId objmodel.ObjectId
	buckets [constants.SNKBucketCount]*bucket
}

// NewTable constructs a Table for localId (typically the local device's
// own object id, so distance ranks SNs relative to this node).
func NewTable(localId objmodel.ObjectId) *Table {
	t := &Table{localId: localId}
	for i := range t.buckets {
		t.buckets[i] = newBucket()
	}
	return t
}

// bucketIndex places id in one of 256 tiers by how many leading bits its
// distance to localId shares with zero (closer ids share more leading
// zero bits with the all-zero distance).
func (t *Table) bucketIndex(id objmodel.ObjectId) int {
	d := Distance(t.localId, id)
	idx := leadingZeroBits(d)
	if idx >= len(t.buckets) {
		idx = len(t.buckets) - 1
	}
	return idx
}

// Add inserts or refreshes a peer. Adding the local id itself is a no-op.
func (t *Table) Add(p *Peer) bool {
	if p.Id == t.localId {
		return false
	}
	return t.buckets[t.bucketIndex(p.Id)].add(p)
}

// Remove drops a peer by id.
func (t *Table) Remove(id objmodel.ObjectId) bool {
	if id == t.localId {
		return false
	}
	return t.buckets[t.bucketIndex(id)].remove(id)
}

// Get looks up a peer by id.
func (t *Table) Get(id objmodel.ObjectId) *Peer {
	if id == t.localId {
		return nil
	}
	return t.buckets[t.bucketIndex(id)].get(id)
}

// Closest returns up to k peers ranked by ascending XOR distance to
// target, expanding outward from target's own bucket tier until k are
// found or every bucket has been consulted (§4.5 "SN selection by XOR
// distance").
func (t *Table) Closest(target objmodel.ObjectId, k int) []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	targetBucket := t.bucketIndex(target)
	var candidates []*Peer
	visited := make(map[int]bool)

	candidates = append(candidates, t.buckets[targetBucket].all()...)
	visited[targetBucket] = true

	for distance := 1; len(candidates) < k && distance < len(t.buckets); distance++ {
		if idx := targetBucket + distance; idx < len(t.buckets) && !visited[idx] {
			candidates = append(candidates, t.buckets[idx].all()...)
			visited[idx] = true
		}
		if idx := targetBucket - distance; idx >= 0 && !visited[idx] {
			candidates = append(candidates, t.buckets[idx].all()...)
			visited[idx] = true
		}
	}

	sortByDistance(candidates, target)
	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}

func sortByDistance(peers []*Peer, target objmodel.ObjectId) {
	for i := 1; i < len(peers); i++ {
		for j := i; j > 0 && lessDistance(Distance(peers[j].Id, target), Distance(peers[j-1].Id, target)); j-- {
			peers[j], peers[j-1] = peers[j-1], peers[j]
		}
	}
}

// RemoveStale drops peers across every bucket that haven't been seen
// within timeout, returning the total removed.
func (t *Table) RemoveStale(timeout time.Duration) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, b := range t.buckets {
		total += b.removeStale(timeout)
	}
	return total
}

// Size returns the total number of peers tracked across all buckets.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, b := range t.buckets {
		total += b.size()
	}
	return total
}
