// Package identity manages the long-term Ed25519/X25519 key pairs behind
// a Device or People object (§3, §4.1) and their on-disk persistence.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Identity holds a node's signing and key-agreement key pairs, plus an
// optional owner id.
type Identity struct {
	SigningPublicKey  ed25519.PublicKey  `json:"signing_public_key"`
	SigningPrivateKey ed25519.PrivateKey `json:"signing_private_key"`

	KeyAgreementPublicKey  [32]byte `json:"key_agreement_public_key"`
	KeyAgreementPrivateKey [32]byte `json:"key_agreement_private_key"`

	owner *objmodel.ObjectId
}

// GenerateIdentity creates a fresh Ed25519 + X25519 key pair.
func GenerateIdentity() (*Identity, error) {
	sigPub, sigPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate Ed25519 key pair: %w", err)
	}

	var kaPriv, kaPub [32]byte
	if _, err := rand.Read(kaPriv[:]); err != nil {
		return nil, fmt.Errorf("identity: generate X25519 private key: %w", err)
	}
	curve25519.ScalarBaseMult(&kaPub, &kaPriv)

	return &Identity{
		SigningPublicKey:       sigPub,
		SigningPrivateKey:      sigPriv,
		KeyAgreementPublicKey:  kaPub,
		KeyAgreementPrivateKey: kaPriv,
	}, nil
}

// WithOwner sets the People object id this identity's Device object will
// be owned by (§3 "Device.Owner").
func (id *Identity) WithOwner(owner objmodel.ObjectId) *Identity {
	id.owner = &owner
	return id
}

// DeviceNamedObject builds and self-signs the Device NamedObject backed
// by this identity's signing key (§11 "Device-state sync").
func (id *Identity) DeviceNamedObject(createTime time.Time) (*objmodel.NamedObject, error) {
	var owner objmodel.ObjectId
	if id.owner != nil {
		owner = *id.owner
	}
	desc := objmodel.NewDeviceDesc(owner, id.SigningPublicKey, createTime)
	obj := &objmodel.NamedObject{Desc: desc}
	if err := obj.SignDesc(id.SigningPrivateKey, objmodel.SelfSource()); err != nil {
		return nil, fmt.Errorf("identity: sign device descriptor: %w", err)
	}
	return obj, nil
}

// PeopleNamedObject builds and self-signs the People NamedObject for an
// owning identity (one that isn't itself owned by another object).
func (id *Identity) PeopleNamedObject(createTime time.Time) (*objmodel.NamedObject, error) {
	desc := objmodel.NewPeopleDesc(id.SigningPublicKey, createTime)
	obj := &objmodel.NamedObject{Desc: desc}
	if err := obj.SignDesc(id.SigningPrivateKey, objmodel.SelfSource()); err != nil {
		return nil, fmt.Errorf("identity: sign people descriptor: %w", err)
	}
	return obj, nil
}

// SaveToFile persists the identity as JSON with restricted permissions.
func (id *Identity) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("identity: create directory: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("identity: write file: %w", err)
	}
	return nil
}

// LoadFromFile loads an identity previously written by SaveToFile.
func LoadFromFile(filename string) (*Identity, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("identity: read file: %w", err)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("identity: unmarshal: %w", err)
	}
	return &id, nil
}
