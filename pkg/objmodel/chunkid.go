package objmodel

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// ChunkId identifies a fixed piece of chunked content by its BLAKE3-256
// hash and byte length (§3 "Chunk identifier"). It encodes to an ObjectId
// carrying the TypeChunk code so chunks live in the same id-space as every
// other named object.
type ChunkId struct {
	Hash   [32]byte
	Length uint32
}

// EmptyChunkId is the distinguished id for the zero-length chunk, used as a
// placeholder terminator in chunk lists (§5 "Chunk store").
var EmptyChunkId = ComputeChunkId(nil)

// ComputeChunkId hashes data with BLAKE3-256 and pairs it with its length.
func ComputeChunkId(data []byte) ChunkId {
	return ChunkId{Hash: blake3.Sum256(data), Length: uint32(len(data))}
}

// ObjectId projects the chunk id into the 32-byte object id space: the
// header bytes carry the raw category and TypeChunk code, and the
// remaining 30 bytes are the low 30 bytes of the content hash. The chunk's
// length therefore is NOT recoverable from the ObjectId alone — callers
// that need it keep the ChunkId value, not just its projection.
func (c ChunkId) ObjectId() ObjectId {
	var id ObjectId
	copy(id[:], c.Hash[:])
	b0, b1 := packHeader(CategoryRaw, TypeChunk)
	id[0], id[1] = b0, b1
	return id
}

// String renders "<hex-hash>:<length>".
func (c ChunkId) String() string {
	return fmt.Sprintf("%s:%d", hex.EncodeToString(c.Hash[:]), c.Length)
}

// IsEmpty reports whether this is the zero-length chunk.
func (c ChunkId) IsEmpty() bool { return c.Length == 0 }

// MarshalBinary encodes the chunk id as 32 bytes of hash followed by a
// 4-byte big-endian length, the fixed layout used wherever a ChunkId is
// embedded in a canonical CBOR byte string rather than as a nested map.
func (c ChunkId) MarshalBinary() ([]byte, error) {
	out := make([]byte, 36)
	copy(out, c.Hash[:])
	binary.BigEndian.PutUint32(out[32:], c.Length)
	return out, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (c *ChunkId) UnmarshalBinary(b []byte) error {
	if len(b) != 36 {
		return fmt.Errorf("objmodel: invalid chunk id length %d, want 36", len(b))
	}
	copy(c.Hash[:], b[:32])
	c.Length = binary.BigEndian.Uint32(b[32:])
	return nil
}
