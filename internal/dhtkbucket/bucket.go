package dhtkbucket

import (
	"sort"
	"sync"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/constants"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// bucket holds up to constants.SNKBucketSize peers at one XOR-distance
// tier, with a replacement cache for contenders once the bucket is full —
// the same full/replacement-cache discipline a Kademlia k-bucket uses.
type bucket struct {
	mu    sync.RWMutex
	peers []*Peer

	maxSize int

	replacements    []*Peer
	maxReplacements int
}

func newBucket() *bucket {
	return &bucket{
		peers:           make([]*Peer, 0, constants.SNKBucketSize),
		maxSize:         constants.SNKBucketSize,
		replacements:    make([]*Peer, 0, constants.SNKBucketSize),
		maxReplacements: constants.SNKBucketSize,
	}
}

// add inserts or refreshes p, returning true if it now occupies a live
// slot (as opposed to only the replacement cache).
func (b *bucket) add(p *Peer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.peers {
		if existing.Id == p.Id {
			b.peers[i] = p
			b.moveToEnd(i)
			return true
		}
	}

	if len(b.peers) < b.maxSize {
		b.peers = append(b.peers, p)
		return true
	}

	b.addToReplacements(p)
	return false
}

func (b *bucket) remove(id objmodel.ObjectId) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, p := range b.peers {
		if p.Id == id {
			b.peers = append(b.peers[:i], b.peers[i+1:]...)
			b.promoteFromReplacements()
			return true
		}
	}
	for i, p := range b.replacements {
		if p.Id == id {
			b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
			return true
		}
	}
	return false
}

func (b *bucket) get(id objmodel.ObjectId) *Peer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.peers {
		if p.Id == id {
			return p.Copy()
		}
	}
	return nil
}

func (b *bucket) all() []*Peer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Peer, len(b.peers))
	for i, p := range b.peers {
		out[i] = p.Copy()
	}
	return out
}

func (b *bucket) size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// closest returns up to k peers from this bucket sorted by ascending
// distance to target.
func (b *bucket) closest(target objmodel.ObjectId, k int) []*Peer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.peers) == 0 {
		return nil
	}
	peers := make([]*Peer, len(b.peers))
	for i, p := range b.peers {
		peers[i] = p.Copy()
	}
	sort.Slice(peers, func(i, j int) bool {
		return lessDistance(Distance(peers[i].Id, target), Distance(peers[j].Id, target))
	})
	if k > len(peers) {
		k = len(peers)
	}
	return peers[:k]
}

func (b *bucket) removeStale(timeout time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	i := 0
	for i < len(b.peers) {
		if b.peers[i].IsStale(timeout) {
			b.peers = append(b.peers[:i], b.peers[i+1:]...)
			removed++
		} else {
			i++
		}
	}
	for n := removed; n > 0 && len(b.replacements) > 0; n-- {
		b.promoteFromReplacements()
	}
	return removed
}

func (b *bucket) moveToEnd(i int) {
	if i == len(b.peers)-1 {
		return
	}
	p := b.peers[i]
	copy(b.peers[i:], b.peers[i+1:])
	b.peers[len(b.peers)-1] = p
}

func (b *bucket) addToReplacements(p *Peer) {
	for i, existing := range b.replacements {
		if existing.Id == p.Id {
			b.replacements[i] = p
			return
		}
	}
	if len(b.replacements) >= b.maxReplacements {
		b.replacements = b.replacements[1:]
	}
	b.replacements = append(b.replacements, p)
}

func (b *bucket) promoteFromReplacements() {
	if len(b.replacements) == 0 {
		return
	}
	next := b.replacements[len(b.replacements)-1]
	b.replacements = b.replacements[:len(b.replacements)-1]
	b.peers = append(b.peers, next)
}
