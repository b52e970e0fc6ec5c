package objmodel

import "time"

// PublicKeyList holds either a single Ed25519 public key or an M-of-N
// multi-key set (§3 "Owner keys may be single or M-of-N"). Exactly one of
// Single or (Keys, Threshold) is populated.
type PublicKeyList struct {
	Single    []byte   `cbor:"single,omitempty"`
	Keys      [][]byte `cbor:"keys,omitempty"`
	Threshold uint8    `cbor:"threshold,omitempty"`
}

// SingleKey wraps one Ed25519 public key.
func SingleKey(pub []byte) PublicKeyList {
	return PublicKeyList{Single: pub}
}

// MultiKey wraps an M-of-N key set.
func MultiKey(keys [][]byte, threshold uint8) PublicKeyList {
	return PublicKeyList{Keys: keys, Threshold: threshold}
}

// IsMulti reports whether this is an M-of-N key set rather than a single key.
func (k PublicKeyList) IsMulti() bool { return len(k.Keys) > 0 }

// ObjectDesc is the immutable, signed half of a NamedObject: everything
// that participates in the object's id computation (§3 "descriptor").
type ObjectDesc struct {
	TypeCode   ObjectTypeCode `cbor:"type_code"`
	Owner      *ObjectId      `cbor:"owner,omitempty"`
	Area       string         `cbor:"area,omitempty"`
	Author     *ObjectId      `cbor:"author,omitempty"`
	PublicKey  *PublicKeyList `cbor:"public_key,omitempty"`
	CreateTime uint64         `cbor:"create_time"`

	// DecId scopes a custom-type descriptor to the DEC app that defines it
	// (§3 "custom object types are namespaced by their owning DEC").
	DecId *ObjectId `cbor:"dec_id,omitempty"`
}

// NewDeviceDesc builds the descriptor for a Device object (§3, §11).
func NewDeviceDesc(owner ObjectId, pub []byte, createTime time.Time) ObjectDesc {
	key := SingleKey(pub)
	return ObjectDesc{
		TypeCode:   TypeDevice,
		Owner:      &owner,
		PublicKey:  &key,
		CreateTime: uint64(createTime.Unix()),
	}
}

// NewPeopleDesc builds the descriptor for a People (owner identity) object.
func NewPeopleDesc(pub []byte, createTime time.Time) ObjectDesc {
	key := SingleKey(pub)
	return ObjectDesc{
		TypeCode:   TypePeople,
		PublicKey:  &key,
		CreateTime: uint64(createTime.Unix()),
	}
}

// ObjectBody is the mutable half of a NamedObject. It does not participate
// in id computation, so two objects with the same descriptor but different
// bodies share an id (§3 "body updates do not change identity").
type ObjectBody struct {
	Payload    []byte            `cbor:"payload,omitempty"`
	UpdateTime uint64            `cbor:"update_time"`
	UserData   map[string][]byte `cbor:"user_data,omitempty"`
}
