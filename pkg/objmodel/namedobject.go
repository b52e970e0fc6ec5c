package objmodel

import (
	"crypto/ed25519"
	"fmt"

	"github.com/buckyos/cyfs-ndn-core/pkg/codec/cborcanon"
)

// NamedObject is the full on-wire object: an immutable signed descriptor,
// a mutable body, and the signatures over each (§3 "NamedObject",
// §4.1 "descriptor and body are signed independently").
type NamedObject struct {
	Desc       ObjectDesc  `cbor:"desc"`
	Body       *ObjectBody `cbor:"body,omitempty"`
	DescSigns  []Signature `cbor:"desc_signs,omitempty"`
	BodySigns  []Signature `cbor:"body_signs,omitempty"`
}

// Category classifies where this object's type code falls; custom types
// scoped to a DEC app are always CategoryDecApp, everything else standard.
func (o *NamedObject) Category() Category {
	if o.Desc.TypeCode == TypeCustom && o.Desc.DecId != nil {
		return CategoryDecApp
	}
	return CategoryStandard
}

// encodeDesc returns the canonical CBOR encoding of the descriptor alone,
// the bytes that both ComputeId and descriptor signatures operate over.
func encodeDesc(desc ObjectDesc) ([]byte, error) {
	return cborcanon.Marshal(desc)
}

// ComputeId derives this object's id from its canonical descriptor
// encoding (§3 "object id is a deterministic function of the descriptor
// only" — body and signatures never affect it).
func (o *NamedObject) ComputeId() (ObjectId, error) {
	raw, err := encodeDesc(o.Desc)
	if err != nil {
		return ObjectId{}, fmt.Errorf("objmodel: encode descriptor: %w", err)
	}
	return ComputeObjectId(o.Category(), o.Desc.TypeCode, raw), nil
}

// Encode serialises the whole NamedObject (descriptor, body and both
// signature lists) to canonical CBOR for storage or wire transfer.
func (o *NamedObject) Encode() ([]byte, error) {
	return cborcanon.Marshal(o)
}

// Decode parses a canonical-CBOR-encoded NamedObject.
func Decode(data []byte) (*NamedObject, error) {
	var o NamedObject
	if err := cborcanon.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("objmodel: decode named object: %w", err)
	}
	return &o, nil
}

// SignDesc signs the object's canonical descriptor encoding with priv and
// appends the resulting Signature, attributed to source.
func (o *NamedObject) SignDesc(priv ed25519.PrivateKey, source SignatureSource) error {
	raw, err := encodeDesc(o.Desc)
	if err != nil {
		return fmt.Errorf("objmodel: encode descriptor for signing: %w", err)
	}
	sig := ed25519.Sign(priv, raw)
	o.DescSigns = append(o.DescSigns, Signature{Source: source, Bytes: sig})
	return nil
}

// SignBody signs the object's canonical body encoding. A nil body is a
// programmer error: body signatures only make sense once a body exists.
func (o *NamedObject) SignBody(priv ed25519.PrivateKey, source SignatureSource) error {
	if o.Body == nil {
		return fmt.Errorf("objmodel: cannot sign nil body")
	}
	raw, err := cborcanon.Marshal(o.Body)
	if err != nil {
		return fmt.Errorf("objmodel: encode body for signing: %w", err)
	}
	sig := ed25519.Sign(priv, raw)
	o.BodySigns = append(o.BodySigns, Signature{Source: source, Bytes: sig})
	return nil
}

// KeyResolver looks up the public key(s) that back a signature source
// other than SourceSelf. Implementations typically consult a NOC-backed
// object store to fetch the owner or linked object's descriptor.
type KeyResolver interface {
	ResolveKey(source SignatureSource) ([]ed25519.PublicKey, error)
}

// selfKeys extracts the candidate verification keys for SourceSelf out of
// this object's own descriptor, handling both single and M-of-N forms.
func (o *NamedObject) selfKeys() ([]ed25519.PublicKey, error) {
	if o.Desc.PublicKey == nil {
		return nil, fmt.Errorf("objmodel: descriptor carries no public key")
	}
	if o.Desc.PublicKey.IsMulti() {
		keys := make([]ed25519.PublicKey, len(o.Desc.PublicKey.Keys))
		for i, k := range o.Desc.PublicKey.Keys {
			keys[i] = ed25519.PublicKey(k)
		}
		return keys, nil
	}
	return []ed25519.PublicKey{ed25519.PublicKey(o.Desc.PublicKey.Single)}, nil
}

// VerifySigns checks every descriptor and body signature against the key(s)
// its source resolves to, using resolver for anything beyond SourceSelf
// (§4.1 "a NamedObject is valid only if every recorded signature verifies").
func (o *NamedObject) VerifySigns(resolver KeyResolver) error {
	descRaw, err := encodeDesc(o.Desc)
	if err != nil {
		return fmt.Errorf("objmodel: encode descriptor: %w", err)
	}
	for i, sig := range o.DescSigns {
		if err := o.verifyOne(resolver, sig, descRaw); err != nil {
			return fmt.Errorf("objmodel: desc signature %d: %w", i, err)
		}
	}
	if o.Body != nil && len(o.BodySigns) > 0 {
		bodyRaw, err := cborcanon.Marshal(o.Body)
		if err != nil {
			return fmt.Errorf("objmodel: encode body: %w", err)
		}
		for i, sig := range o.BodySigns {
			if err := o.verifyOne(resolver, sig, bodyRaw); err != nil {
				return fmt.Errorf("objmodel: body signature %d: %w", i, err)
			}
		}
	}
	return nil
}

func (o *NamedObject) verifyOne(resolver KeyResolver, sig Signature, raw []byte) error {
	var candidates []ed25519.PublicKey
	if sig.Source.Kind == SourceSelf {
		keys, err := o.selfKeys()
		if err != nil {
			return err
		}
		candidates = keys
	} else {
		if resolver == nil {
			return fmt.Errorf("no key resolver for source %s", sig.Source)
		}
		keys, err := resolver.ResolveKey(sig.Source)
		if err != nil {
			return fmt.Errorf("resolve key for source %s: %w", sig.Source, err)
		}
		candidates = keys
	}
	for _, key := range candidates {
		if ed25519.Verify(key, raw, sig.Bytes) {
			return nil
		}
	}
	return fmt.Errorf("signature does not verify against source %s", sig.Source)
}
