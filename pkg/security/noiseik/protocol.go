// Package noiseik implements the Noise IK handshake used to key a BDT
// tunnel between two devices (§4.5, §7 "Tunnel establishment").
package noiseik

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/buckyos/cyfs-ndn-core/pkg/codec/cborcanon"
	"github.com/buckyos/cyfs-ndn-core/pkg/constants"
	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// TunnelSyn is the initiator's handshake message carried in the SYN leg
// of tunnel establishment.
type TunnelSyn struct {
	Version        uint16            `cbor:"v"`
	From           objmodel.ObjectId `cbor:"from"` // initiating device's object id
	To             objmodel.ObjectId `cbor:"to"`   // target device's object id
	Nonce          uint64            `cbor:"nonce"`
	Caps           []string          `cbor:"caps"`                      // e.g. "stream/1", "datagram/1"
	NoiseKey       []byte            `cbor:"noisekey"`                  // X25519 public key for Noise IK
	Proof          []byte            `cbor:"proof"`                     // Ed25519 signature over canonical fields
	PSKHint        *string           `cbor:"psk_hint,omitempty"`        // optional PSK hint
	PSKProof       []byte            `cbor:"psk_proof,omitempty"`       // optional PSK proof
	AdmissionToken *string           `cbor:"admission_token,omitempty"` // optional admission token
	TokenProof     []byte            `cbor:"token_proof,omitempty"`
	TokenExpiry    *uint64           `cbor:"token_expiry,omitempty"`
}

// TunnelAck is the responder's handshake message carried in the ACK leg.
type TunnelAck struct {
	Version  uint16            `cbor:"v"`
	From     objmodel.ObjectId `cbor:"from"`
	To       objmodel.ObjectId `cbor:"to"`
	Nonce    uint64            `cbor:"nonce"`
	Caps     []string          `cbor:"caps"`
	NoiseKey []byte            `cbor:"noisekey"`
	Proof    []byte            `cbor:"proof"`
	PSKProof []byte            `cbor:"psk_proof,omitempty"`
}

// Sign signs the TunnelSyn with the initiator's Ed25519 private key.
func (m *TunnelSyn) Sign(privateKey ed25519.PrivateKey) error {
	sigData, err := cborcanon.EncodeForSigning(m, "proof")
	if err != nil {
		return fmt.Errorf("noiseik: encode TunnelSyn for signing: %w", err)
	}
	m.Proof = ed25519.Sign(privateKey, sigData)
	return nil
}

// Verify checks the TunnelSyn signature against publicKey.
func (m *TunnelSyn) Verify(publicKey ed25519.PublicKey) error {
	if len(m.Proof) == 0 {
		return fmt.Errorf("noiseik: TunnelSyn has no proof")
	}
	sigData, err := cborcanon.EncodeForSigning(m, "proof")
	if err != nil {
		return fmt.Errorf("noiseik: encode TunnelSyn for verification: %w", err)
	}
	if !ed25519.Verify(publicKey, sigData, m.Proof) {
		return fmt.Errorf("noiseik: TunnelSyn signature verification failed")
	}
	return nil
}

// Marshal encodes the TunnelSyn to canonical CBOR.
func (m *TunnelSyn) Marshal() ([]byte, error) { return cborcanon.Marshal(m) }

// Unmarshal decodes the TunnelSyn from CBOR.
func (m *TunnelSyn) Unmarshal(data []byte) error { return cborcanon.Unmarshal(data, m) }

// Sign signs the TunnelAck with the responder's Ed25519 private key.
func (m *TunnelAck) Sign(privateKey ed25519.PrivateKey) error {
	sigData, err := cborcanon.EncodeForSigning(m, "proof")
	if err != nil {
		return fmt.Errorf("noiseik: encode TunnelAck for signing: %w", err)
	}
	m.Proof = ed25519.Sign(privateKey, sigData)
	return nil
}

// Verify checks the TunnelAck signature against publicKey.
func (m *TunnelAck) Verify(publicKey ed25519.PublicKey) error {
	if len(m.Proof) == 0 {
		return fmt.Errorf("noiseik: TunnelAck has no proof")
	}
	sigData, err := cborcanon.EncodeForSigning(m, "proof")
	if err != nil {
		return fmt.Errorf("noiseik: encode TunnelAck for verification: %w", err)
	}
	if !ed25519.Verify(publicKey, sigData, m.Proof) {
		return fmt.Errorf("noiseik: TunnelAck signature verification failed")
	}
	return nil
}

// Marshal encodes the TunnelAck to canonical CBOR.
func (m *TunnelAck) Marshal() ([]byte, error) { return cborcanon.Marshal(m) }

// Unmarshal decodes the TunnelAck from CBOR.
func (m *TunnelAck) Unmarshal(data []byte) error { return cborcanon.Unmarshal(data, m) }

// Handshake drives one Noise IK handshake for a single tunnel attempt.
// A Handshake is single-use: build a fresh one per SYN/ACK/ACK-ACK cycle.
type Handshake struct {
	identity        *identity.Identity
	localId         objmodel.ObjectId
	peerId          objmodel.ObjectId
	nonce           uint64
	complete        bool
	noiseKey        []byte // X25519 private key material used in this handshake
	peerKey         []byte // peer's X25519 public key
	noiseState      *noise.HandshakeState
	cipherSuite     noise.CipherSuite
	isInitiator     bool
	sequenceTracker *SequenceTracker
	config          *HandshakeConfig
}

// NewHandshake creates a handshake for a tunnel between localId and peerId,
// backed by id's signing and key-agreement keys.
func NewHandshake(id *identity.Identity, localId, peerId objmodel.ObjectId) *Handshake {
	nonce := uint64(time.Now().UnixNano())

	var randomBytes [8]byte
	rand.Read(randomBytes[:])
	randomPart := uint64(randomBytes[0])<<56 | uint64(randomBytes[1])<<48 |
		uint64(randomBytes[2])<<40 | uint64(randomBytes[3])<<32 |
		uint64(randomBytes[4])<<24 | uint64(randomBytes[5])<<16 |
		uint64(randomBytes[6])<<8 | uint64(randomBytes[7])
	nonce ^= randomPart

	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2b)

	return &Handshake{
		identity:        id,
		localId:         localId,
		peerId:          peerId,
		nonce:           nonce,
		noiseKey:        make([]byte, 32),
		cipherSuite:     cipherSuite,
		sequenceTracker: NewSequenceTracker(),
		config:          NewHandshakeConfig(),
	}
}

// NewHandshakeWithPSK creates a handshake pre-configured with a PSK.
func NewHandshakeWithPSK(id *identity.Identity, localId, peerId objmodel.ObjectId, pskConfig *PSKConfig) *Handshake {
	h := NewHandshake(id, localId, peerId)
	h.config.PSKConfig = pskConfig
	return h
}

// NewHandshakeWithAdmission creates a handshake pre-configured with zone
// admission control (§4 access model gating which peers may open a tunnel).
func NewHandshakeWithAdmission(id *identity.Identity, localId, peerId objmodel.ObjectId, admissionConfig *AdmissionConfig, clientToken string, tokenSigningKey ed25519.PrivateKey) *Handshake {
	h := NewHandshake(id, localId, peerId)
	h.config.AdmissionConfig = admissionConfig
	h.config.ClientToken = clientToken
	h.config.TokenSigningKey = tokenSigningKey
	return h
}

// SetTokenValidator sets the public key used to verify admission tokens
// (responder side).
func (h *Handshake) SetTokenValidator(publicKey ed25519.PublicKey) {
	h.config.TokenPublicKey = publicKey
}

// NewInitiatorHandshake builds the initiator (SYN) side of a Noise IK
// handshake against the responder's known static public key.
func NewInitiatorHandshake(id *identity.Identity, localId, peerId objmodel.ObjectId, responderPublicKey []byte) (*Handshake, error) {
	h := NewHandshake(id, localId, peerId)
	h.isInitiator = true

	cfg := noise.Config{
		CipherSuite: h.cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeIK,
		Initiator:   true,
		StaticKeypair: noise.DHKey{
			Private: h.identity.KeyAgreementPrivateKey[:],
			Public:  h.identity.KeyAgreementPublicKey[:],
		},
		PeerStatic: responderPublicKey,
	}

	var err error
	h.noiseState, err = noise.NewHandshakeState(cfg)
	if err != nil {
		return nil, fmt.Errorf("noiseik: create initiator handshake state: %w", err)
	}
	h.peerKey = append([]byte(nil), responderPublicKey...)
	return h, nil
}

// NewResponderHandshake builds the responder (ACK) side of a Noise IK
// handshake.
func NewResponderHandshake(id *identity.Identity, localId, peerId objmodel.ObjectId) (*Handshake, error) {
	h := NewHandshake(id, localId, peerId)
	h.isInitiator = false

	cfg := noise.Config{
		CipherSuite: h.cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeIK,
		Initiator:   false,
		StaticKeypair: noise.DHKey{
			Private: h.identity.KeyAgreementPrivateKey[:],
			Public:  h.identity.KeyAgreementPublicKey[:],
		},
	}

	var err error
	h.noiseState, err = noise.NewHandshakeState(cfg)
	if err != nil {
		return nil, fmt.Errorf("noiseik: create responder handshake state: %w", err)
	}
	return h, nil
}

// CreateSyn builds the SYN message sent by the tunnel initiator.
func (h *Handshake) CreateSyn() (*TunnelSyn, error) {
	copy(h.noiseKey, h.identity.KeyAgreementPrivateKey[:])

	msg := &TunnelSyn{
		Version:  constants.ProtocolVersion,
		From:     h.localId,
		To:       h.peerId,
		Nonce:    h.nonce,
		Caps:     []string{"stream/1", "datagram/1"},
		NoiseKey: h.identity.KeyAgreementPublicKey[:],
	}

	if h.config.AdmissionConfig != nil && h.config.ClientToken != "" {
		token, proof, expiry := h.config.GenerateAdmissionTokenProof(h.peerId.String())
		if token != "" {
			msg.AdmissionToken = &token
			msg.TokenProof = proof
			msg.TokenExpiry = &expiry
		}
	}

	if h.config.PSKConfig != nil {
		hint := h.config.PSKConfig.Hint
		msg.PSKHint = &hint

		sigData, err := cborcanon.EncodeForSigning(msg, "proof", "psk_proof")
		if err != nil {
			return nil, fmt.Errorf("noiseik: encode TunnelSyn for PSK proof: %w", err)
		}
		msg.PSKProof = h.config.PSKConfig.GenerateProof(sigData)
	}

	if err := msg.Sign(h.identity.SigningPrivateKey); err != nil {
		return nil, fmt.Errorf("noiseik: sign TunnelSyn: %w", err)
	}
	return msg, nil
}

// ProcessSyn validates an incoming SYN and builds the ACK response.
func (h *Handshake) ProcessSyn(syn *TunnelSyn) (*TunnelAck, error) {
	if syn.Version != constants.ProtocolVersion {
		return nil, fmt.Errorf("noiseik: protocol version mismatch: expected %d, got %d", constants.ProtocolVersion, syn.Version)
	}
	if syn.To != h.localId {
		return nil, fmt.Errorf("noiseik: SYN addressed to %s, not %s", syn.To, h.localId)
	}
	if len(syn.NoiseKey) != 32 {
		return nil, fmt.Errorf("noiseik: invalid noise key length %d", len(syn.NoiseKey))
	}

	if h.config.PSKConfig != nil {
		sigData, err := cborcanon.EncodeForSigning(syn, "proof", "psk_proof")
		if err != nil {
			return nil, fmt.Errorf("noiseik: encode TunnelSyn for PSK verification: %w", err)
		}
		if err := h.config.ValidatePSK(sigData, syn.PSKHint, syn.PSKProof); err != nil {
			return nil, fmt.Errorf("noiseik: PSK validation failed: %w", err)
		}
	}

	if err := h.config.ValidateAdmissionToken(syn.From.String(), syn.AdmissionToken, syn.TokenProof); err != nil {
		return nil, fmt.Errorf("noiseik: admission token validation failed: %w", err)
	}

	h.peerKey = append([]byte(nil), syn.NoiseKey...)
	copy(h.noiseKey, h.identity.KeyAgreementPrivateKey[:])

	ack := &TunnelAck{
		Version:  constants.ProtocolVersion,
		From:     h.localId,
		To:       syn.From,
		Nonce:    uint64(time.Now().UnixNano()),
		Caps:     []string{"stream/1", "datagram/1"},
		NoiseKey: h.identity.KeyAgreementPublicKey[:],
	}

	if h.config.PSKConfig != nil {
		sigData, err := cborcanon.EncodeForSigning(ack, "proof", "psk_proof")
		if err != nil {
			return nil, fmt.Errorf("noiseik: encode TunnelAck for PSK proof: %w", err)
		}
		ack.PSKProof = h.config.PSKConfig.GenerateProof(sigData)
	}

	if err := ack.Sign(h.identity.SigningPrivateKey); err != nil {
		return nil, fmt.Errorf("noiseik: sign TunnelAck: %w", err)
	}

	h.complete = true
	return ack, nil
}

// ProcessAck validates an incoming ACK and completes the initiator side.
func (h *Handshake) ProcessAck(ack *TunnelAck) error {
	if ack.To != h.localId {
		return fmt.Errorf("noiseik: ACK addressed to %s, not %s", ack.To, h.localId)
	}

	if h.config.PSKConfig != nil {
		if len(ack.PSKProof) == 0 {
			return fmt.Errorf("noiseik: PSK proof expected but not provided in TunnelAck")
		}
		sigData, err := cborcanon.EncodeForSigning(ack, "proof", "psk_proof")
		if err != nil {
			return fmt.Errorf("noiseik: encode TunnelAck for PSK verification: %w", err)
		}
		if !h.config.PSKConfig.VerifyProof(sigData, ack.PSKProof) {
			return fmt.Errorf("noiseik: TunnelAck PSK proof verification failed")
		}
	}

	h.peerKey = append([]byte(nil), ack.NoiseKey...)
	h.complete = true
	return nil
}

// IsComplete reports whether the handshake's hello exchange finished.
func (h *Handshake) IsComplete() bool {
	return h.complete
}

// PerformHandshake drives one Noise IK write step, returning the message
// to send. When that step finishes the handshake, IsComplete reports true
// afterwards; the cipher states themselves are not returned.
func (h *Handshake) PerformHandshake(peerMessage []byte) ([]byte, error) {
	if h.noiseState == nil {
		return nil, fmt.Errorf("noiseik: handshake state not initialized")
	}
	message, cs1, cs2, err := h.noiseState.WriteMessage(nil, peerMessage)
	if err != nil {
		return nil, fmt.Errorf("noiseik: handshake step failed: %w", err)
	}
	if cs1 != nil && cs2 != nil {
		h.complete = true
	}
	return message, nil
}

// ReadHandshakeMessage processes a peer's Noise IK handshake message. On
// the responder's first read, this is where the initiator's static public
// key becomes known (IK carries it encrypted in message one); it's
// recorded into h.peerKey so GetSessionKeys can later derive the shared
// transport keys.
func (h *Handshake) ReadHandshakeMessage(message []byte) ([]byte, error) {
	if h.noiseState == nil {
		return nil, fmt.Errorf("noiseik: handshake state not initialized")
	}
	payload, cs1, cs2, err := h.noiseState.ReadMessage(nil, message)
	if err != nil {
		return nil, fmt.Errorf("noiseik: read handshake message: %w", err)
	}
	if cs1 != nil && cs2 != nil {
		h.complete = true
	}
	if len(h.peerKey) != 32 {
		if peerStatic := h.noiseState.PeerStatic(); len(peerStatic) == 32 {
			h.peerKey = append([]byte(nil), peerStatic...)
		}
	}
	return payload, nil
}

// GetSessionKeys derives the tunnel's per-direction encryption keys once
// the handshake is complete: a fresh X25519 ECDH between the local and
// peer static keys, fed through HKDF-SHA256 with distinct labels per
// direction so a compromised send key doesn't also leak the receive key.
// Both ends compute the same ECDH shared secret (Diffie-Hellman is
// commutative in the static keys each already learned from the other's
// TunnelSyn/TunnelAck NoiseKey field), so the initiator's send key equals
// the responder's receive key and vice versa.
func (h *Handshake) GetSessionKeys() ([]byte, []byte, error) {
	if !h.complete {
		return nil, nil, fmt.Errorf("noiseik: handshake not complete")
	}
	if len(h.peerKey) != 32 {
		return nil, nil, fmt.Errorf("noiseik: peer key not established")
	}

	shared, err := curve25519.X25519(h.identity.KeyAgreementPrivateKey[:], h.peerKey)
	if err != nil {
		return nil, nil, fmt.Errorf("noiseik: X25519 key agreement: %w", err)
	}

	initToResp, err := deriveDirectionKey(shared, "init->resp")
	if err != nil {
		return nil, nil, err
	}
	respToInit, err := deriveDirectionKey(shared, "resp->init")
	if err != nil {
		return nil, nil, err
	}

	if h.isInitiator {
		return initToResp, respToInit, nil
	}
	return respToInit, initToResp, nil
}

// deriveDirectionKey expands an ECDH shared secret into a 32-byte AEAD key
// for one direction of traffic via HKDF-SHA256.
func deriveDirectionKey(shared []byte, label string) ([]byte, error) {
	r := hkdf.New(sha256.New, shared, nil, []byte("cyfs-ndn-core/tunnel/"+label))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("noiseik: derive %s key: %w", label, err)
	}
	return key, nil
}

// NextSendSequence returns the next outgoing sequence number.
func (h *Handshake) NextSendSequence() uint64 {
	return h.sequenceTracker.NextSendSequence()
}

// ValidateReceiveSequence reports whether sequence is a valid, non-replayed
// incoming sequence number.
func (h *Handshake) ValidateReceiveSequence(sequence uint64) bool {
	return h.sequenceTracker.ValidateReceiveSequence(sequence)
}

// GetSequenceStats returns send/receive sequence counters for diagnostics.
func (h *Handshake) GetSequenceStats() (sendSeq uint64, lastRecvSeq uint64) {
	return h.sequenceTracker.GetSendSequence(), h.sequenceTracker.GetLastReceivedSequence()
}
