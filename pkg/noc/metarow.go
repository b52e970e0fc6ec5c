// Package noc implements the Named Object Cache of §4.2-§4.3: a per-id
// serialized store of object metadata and body blobs, access-checked on
// every read and write, with last-access times batched to disk rather
// than written synchronously.
package noc

import (
	"github.com/buckyos/cyfs-ndn-core/pkg/access"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// StorageCategory classifies how a NOC entry should be treated for
// eviction and persistence purposes (§4.2 "Storage category").
type StorageCategory uint8

const (
	StoragePersistent StorageCategory = iota
	StorageCache
)

// MetaRow is the full metadata record NOC keeps for every stored object
// (§3 "NOC meta row").
type MetaRow struct {
	ObjectId        objmodel.ObjectId
	Owner           *objmodel.ObjectId
	Dec             *objmodel.ObjectId
	Author          *objmodel.ObjectId
	Type            objmodel.ObjectTypeCode
	InsertTime      uint64
	CreateTime      uint64
	UpdateTime      uint64
	ExpiredTime     uint64
	PrevVersion     *objmodel.ObjectId
	BodyHash        [32]byte
	RefList         []objmodel.ObjectId
	Nonce           uint64
	StorageCategory StorageCategory
	Context         string
	LastAccessTime  uint64
	LastAccessRPath string
	AccessString    access.AccessString
}

// PutResultKind enumerates the outcomes of a Put (§4.2 "typed sum type,
// not a bare error").
type PutResultKind uint8

const (
	PutAccepted PutResultKind = iota
	PutUpdated
	PutAlreadyExists
)

type PutResult struct {
	Kind PutResultKind
	Row  MetaRow
}

// GetResultKind enumerates the outcomes of a Get.
type GetResultKind uint8

const (
	GetFound GetResultKind = iota
	GetNotFound
	GetPermissionDenied
)

type GetResult struct {
	Kind GetResultKind
	Row  MetaRow
	Body []byte
}
