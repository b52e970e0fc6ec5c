package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// EncryptForRSA encrypts plaintext to an RSA public key using OAEP, for
// interoperating with legacy device identities minted before the
// project standardized on X25519 key agreement (§14). No pack example
// wires an ecosystem RSA library for this; crypto/rsa is the idiomatic
// standard-library choice for a single legacy-compat code path.
func EncryptForRSA(publicKey *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa-oaep encrypt: %w", err)
	}
	return ciphertext, nil
}

// DecryptRSA decrypts ciphertext produced by EncryptForRSA.
func DecryptRSA(privateKey *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa-oaep decrypt: %w", err)
	}
	return plaintext, nil
}
