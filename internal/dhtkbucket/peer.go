// Package dhtkbucket implements the XOR-distance k-bucket routing table
// used to pick candidate SNs for a device (§4.5 "SN selection"): given a
// device id, return the k SNs whose ids are closest to it by XOR
// distance, the same structure a Kademlia DHT uses to route lookups, here
// repurposed to rank rendezvous servers rather than to store key/value
// records.
package dhtkbucket

import (
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Peer is one SN candidate tracked by the routing table.
type Peer struct {
	Id       objmodel.ObjectId
	Endpoints []string
	LastSeen time.Time
}

// Copy returns a value copy of p, used so callers can't mutate a bucket's
// internal state through a returned pointer.
func (p *Peer) Copy() *Peer {
	cp := *p
	cp.Endpoints = append([]string(nil), p.Endpoints...)
	return &cp
}

// IsStale reports whether p hasn't been seen within timeout.
func (p *Peer) IsStale(timeout time.Duration) bool {
	return time.Since(p.LastSeen) > timeout
}

// Distance computes the XOR distance between two object ids, bucket index
// selection and closest-node ranking both use this (§4.5).
func Distance(a, b objmodel.ObjectId) objmodel.ObjectId {
	var out objmodel.ObjectId
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// lessDistance reports whether distance a is numerically smaller than b,
// comparing byte by byte from the most significant end.
func lessDistance(a, b objmodel.ObjectId) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// leadingZeroBits counts how many leading bits of id are zero, which
// bucket index selection uses to place ids into one of 256 buckets by how
// close their distance to the local id is.
func leadingZeroBits(id objmodel.ObjectId) int {
	for i, b := range id {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(0x80>>bit) != 0 {
				return i*8 + bit
			}
		}
	}
	return len(id) * 8
}
