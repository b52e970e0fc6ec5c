package objmodel

import "fmt"

// SignatureSourceKind tags which key signed a NamedObject's descriptor or
// body (§4.1 "signature sources"): the object's own key, its owner's key,
// one member of an M-of-N key set by index, or a key reached through a
// separately-stored linked object (e.g. a Device's owning People).
type SignatureSourceKind byte

const (
	SourceSelf SignatureSourceKind = iota
	SourceOwner
	SourceRefIndex
	SourceLinked
)

// SignatureSource identifies which key produced a Signature.
type SignatureSource struct {
	Kind     SignatureSourceKind `cbor:"kind"`
	RefIndex uint8               `cbor:"ref_index,omitempty"`
	LinkedId *ObjectId           `cbor:"linked_id,omitempty"`
}

func SelfSource() SignatureSource { return SignatureSource{Kind: SourceSelf} }
func OwnerSource() SignatureSource { return SignatureSource{Kind: SourceOwner} }
func RefIndexSource(n uint8) SignatureSource {
	return SignatureSource{Kind: SourceRefIndex, RefIndex: n}
}
func LinkedSource(id ObjectId) SignatureSource {
	return SignatureSource{Kind: SourceLinked, LinkedId: &id}
}

// Signature pairs a source with its raw Ed25519 signature bytes.
type Signature struct {
	Source SignatureSource `cbor:"source"`
	Bytes  []byte          `cbor:"bytes"`
}

func (s SignatureSource) String() string {
	switch s.Kind {
	case SourceSelf:
		return "self"
	case SourceOwner:
		return "owner"
	case SourceRefIndex:
		return fmt.Sprintf("ref[%d]", s.RefIndex)
	case SourceLinked:
		return fmt.Sprintf("linked(%s)", s.LinkedId)
	default:
		return "unknown"
	}
}
