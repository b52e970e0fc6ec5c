package chunkstore

import (
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Direction records whether a tracker row describes data flowing from a
// source, to a destination, or simply being stored locally.
type Direction uint8

const (
	DirectionFrom Direction = iota
	DirectionTo
	DirectionStore
)

// TrackerPositionKind tags which kind of entity a TrackerRow points at.
type TrackerPositionKind uint8

const (
	PositionDevice TrackerPositionKind = iota
	PositionFile
	PositionFileRange
	PositionChunkManager
)

// TrackerPosition is a sum type identifying where a tracked chunk's bytes
// physically live: on a remote device, inside a whole file, inside a byte
// range of a file, or in this node's own ChunkManager.
type TrackerPosition struct {
	Kind      TrackerPositionKind
	DeviceId  *objmodel.ObjectId
	FileId    *objmodel.ObjectId
	RangeFrom uint64
	RangeTo   uint64
}

func DevicePosition(device objmodel.ObjectId) TrackerPosition {
	return TrackerPosition{Kind: PositionDevice, DeviceId: &device}
}

func FilePosition(file objmodel.ObjectId) TrackerPosition {
	return TrackerPosition{Kind: PositionFile, FileId: &file}
}

func FileRangePosition(file objmodel.ObjectId, from, to uint64) TrackerPosition {
	return TrackerPosition{Kind: PositionFileRange, FileId: &file, RangeFrom: from, RangeTo: to}
}

func ChunkManagerPosition() TrackerPosition {
	return TrackerPosition{Kind: PositionChunkManager}
}

// TrackerRow records one fact about where a chunk's bytes can be found or
// were last seen (§4.4 "tracker rows"). Rows accumulate; they are not
// deduplicated by the caller, matching the append-only insert pattern the
// teacher's DHT storage map uses for its records.
type TrackerRow struct {
	Position  TrackerPosition
	Direction Direction
	InsertAt  time.Time
}

// TrackFile appends a tracker row recording that fileId's bytes can be
// reached via pos, observed in direction dir at insertion time now.
func (cm *ChunkManager) TrackFile(fileId objmodel.ObjectId, pos TrackerPosition, dir Direction, now time.Time) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.trackers[fileId] = append(cm.trackers[fileId], TrackerRow{Position: pos, Direction: dir, InsertAt: now})
}

// TrackerRows returns a copy of every row recorded for fileId.
func (cm *ChunkManager) TrackerRows(fileId objmodel.ObjectId) []TrackerRow {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	rows := cm.trackers[fileId]
	out := make([]TrackerRow, len(rows))
	copy(out, rows)
	return out
}

// UntrackFile removes every tracker row recorded for fileId.
func (cm *ChunkManager) UntrackFile(fileId objmodel.ObjectId) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.trackers, fileId)
}
