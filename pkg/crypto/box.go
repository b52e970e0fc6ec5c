// Package crypto generalizes the primitives pkg/security/noiseik uses
// for tunnel session keys into standalone encrypt/decrypt and
// sign/verify helpers over arbitrary byte payloads — needed wherever a
// NamedObject or device-to-device message must be sealed outside an
// established tunnel (§8 "Round-trip laws", §14).
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// SealedBox is an X25519-ECDH-then-ChaCha20-Poly1305-AEAD encryption of
// a payload to a recipient's key-agreement public key, with an
// ephemeral sender key so the sender doesn't need a long-term secret to
// encrypt (§8's "encrypt/decrypt round trip" needs only the recipient's
// public key to hold).
type SealedBox struct {
	EphemeralPublicKey [32]byte
	Nonce              [chacha20poly1305.NonceSize]byte
	Ciphertext         []byte
}

// EncryptForX25519 seals plaintext so only the holder of
// recipientPrivateKey (paired with recipientPublicKey) can open it,
// mirroring noiseik's ECDH-then-HKDF-then-AEAD chain but for one-shot
// box encryption instead of a live handshake.
func EncryptForX25519(recipientPublicKey [32]byte, plaintext []byte) (*SealedBox, error) {
	ephPriv := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, ephPriv); err != nil {
		return nil, fmt.Errorf("crypto: generate ephemeral key: %w", err)
	}
	ephPub, err := curve25519.X25519(ephPriv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive ephemeral public key: %w", err)
	}

	shared, err := curve25519.X25519(ephPriv, recipientPublicKey[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: X25519 key agreement: %w", err)
	}
	key, err := deriveBoxKey(shared, ephPub, recipientPublicKey[:])
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create aead: %w", err)
	}

	box := &SealedBox{}
	copy(box.EphemeralPublicKey[:], ephPub)
	if _, err := io.ReadFull(rand.Reader, box.Nonce[:]); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	box.Ciphertext = aead.Seal(nil, box.Nonce[:], plaintext, nil)
	return box, nil
}

// DecryptX25519 opens a SealedBox using the recipient's key-agreement
// private/public keypair.
func DecryptX25519(recipientPrivateKey, recipientPublicKey [32]byte, box *SealedBox) ([]byte, error) {
	shared, err := curve25519.X25519(recipientPrivateKey[:], box.EphemeralPublicKey[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: X25519 key agreement: %w", err)
	}
	key, err := deriveBoxKey(shared, box.EphemeralPublicKey[:], recipientPublicKey[:])
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create aead: %w", err)
	}
	plaintext, err := aead.Open(nil, box.Nonce[:], box.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: open sealed box: %w", err)
	}
	return plaintext, nil
}

// deriveBoxKey expands an ECDH shared secret into a 32-byte AEAD key,
// salted with both the sender's ephemeral and the recipient's static
// public keys so two boxes from different senders to the same recipient
// never reuse a key even if (improbably) the same ephemeral key were
// reused.
func deriveBoxKey(shared, ephPub, recipientPub []byte) ([]byte, error) {
	salt := append(append([]byte(nil), ephPub...), recipientPub...)
	r := hkdf.New(sha256.New, shared, salt, []byte("cyfs-ndn-core/crypto/box"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("crypto: derive box key: %w", err)
	}
	return key, nil
}

// Sign signs data with an Ed25519 signing private key, matching the
// signature scheme identity.Identity already uses for device
// identities.
func Sign(privateKey ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(privateKey, data)
}

// Verify checks an Ed25519 signature against data and publicKey.
func Verify(publicKey ed25519.PublicKey, data, signature []byte) bool {
	return ed25519.Verify(publicKey, data, signature)
}
