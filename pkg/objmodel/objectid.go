// Package objmodel implements the content-addressed object identifiers,
// typed descriptors/bodies, canonical encoding and signing primitives of
// §3 "Data model" and §4.1 "Object & Access Model".
package objmodel

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// ObjectId is an opaque 32-byte content-addressed identifier. The first
// byte's top two bits encode the category (§3 "first byte encodes category
// bits such that category(id) is deterministic without external lookup");
// the remaining six bits of the first byte plus the second byte encode the
// ObjectTypeCode.
type ObjectId [32]byte

// Category partitions object ids by how they were derived (§3 "Object
// identifier"): a hash of a canonical descriptor, or a raw literal id such
// as a short chunk placeholder.
type Category byte

const (
	CategoryStandard Category = iota
	CategoryCore
	CategoryDecApp
	CategoryRaw
)

// ObjectTypeCode enumerates the object kinds named in §3, reproduced from
// the CYFS object model (original_source/cyfs-base/src/objects/object_type.rs).
type ObjectTypeCode uint16

const (
	TypeDevice ObjectTypeCode = iota + 1
	TypePeople
	TypeGroup
	_ // reserved (AppGroup in the original taxonomy, unused by this core)
	TypeUnionAccount
	TypeChunk
	TypeFile
	TypeDir
	_ // reserved (Diff)
	_ // reserved (ProofOfService)
	TypeTx
	_ // reserved (Action)
	TypeObjectMap
	TypeContract
	TypeCustom
)

const categoryShift = 6 // top 2 bits of byte 0

// category bits occupy the top two bits of the first byte; the low six
// bits of byte 0 plus all of byte 1 carry the ObjectTypeCode.
func packHeader(cat Category, typeCode ObjectTypeCode) (b0, b1 byte) {
	b0 = byte(cat)<<categoryShift | byte((uint16(typeCode)>>8)&0x3F)
	b1 = byte(typeCode & 0xFF)
	return
}

// Category returns the category encoded in the id's first byte.
func (id ObjectId) Category() Category {
	return Category(id[0] >> categoryShift)
}

// TypeCode returns the object type encoded in the id's header bytes.
func (id ObjectId) TypeCode() ObjectTypeCode {
	high := uint16(id[0]&0x3F) << 8
	return ObjectTypeCode(high | uint16(id[1]))
}

// IsZero reports whether id is the all-zero identifier.
func (id ObjectId) IsZero() bool {
	return id == ObjectId{}
}

// String renders the id as a hex string for logs and debugging.
func (id ObjectId) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns a copy of the raw 32 bytes.
func (id ObjectId) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, id[:])
	return out
}

// ObjectIdFromBytes validates and wraps a 32-byte slice.
func ObjectIdFromBytes(b []byte) (ObjectId, error) {
	var id ObjectId
	if len(b) != 32 {
		return id, fmt.Errorf("objmodel: invalid object id length %d, want 32", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ComputeObjectId derives an object id by hashing the canonical descriptor
// encoding with BLAKE3-256 and overwriting the hash's first two bytes with
// the category/type header (§3 "object id is a deterministic
// function of the descriptor only").
func ComputeObjectId(cat Category, typeCode ObjectTypeCode, canonicalDesc []byte) ObjectId {
	h := blake3.Sum256(canonicalDesc)
	var id ObjectId
	copy(id[:], h[:])
	id[0], id[1] = packHeader(cat, typeCode)
	return id
}

// RawDataId derives an id for literal raw data (§3 "raw data id (e.g. short
// literal)") rather than a hashed descriptor — e.g. the distinguished
// empty chunk.
func RawDataId(typeCode ObjectTypeCode, data []byte) ObjectId {
	h := blake3.Sum256(data)
	var id ObjectId
	copy(id[:], h[:])
	b0, b1 := packHeader(CategoryRaw, typeCode)
	id[0], id[1] = b0, b1
	return id
}

// Equal is a byte-wise comparison (§3 "Equality and ordering are byte-wise").
func (id ObjectId) Equal(other ObjectId) bool { return id == other }

// Compare returns -1, 0, or 1 for byte-wise ordering.
func (id ObjectId) Compare(other ObjectId) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
