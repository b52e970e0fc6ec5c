package noc

import (
	"github.com/buckyos/cyfs-ndn-core/pkg/access"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Store is the public NOC contract (§4.2). Every method takes the
// resolved requester Source so access control can be evaluated uniformly
// regardless of which entry point (tunnel RPC, local router, CLI) issued
// the call.
type Store interface {
	Put(src access.Source, row MetaRow, body []byte) (PutResult, error)
	Get(src access.Source, id objmodel.ObjectId) (GetResult, error)
	Delete(src access.Source, id objmodel.ObjectId) error
	Exists(id objmodel.ObjectId) bool
	UpdateMeta(src access.Source, id objmodel.ObjectId, fn func(*MetaRow)) error
	CheckAccess(src access.Source, id objmodel.ObjectId, required access.Permission) error
	Stat() Stats
}

// Stats summarizes store occupancy, used by control-surface diagnostics.
type Stats struct {
	RowCount  int
	BlobBytes int64
}
