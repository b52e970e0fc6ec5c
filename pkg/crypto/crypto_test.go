package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"golang.org/x/crypto/curve25519"
)

func generateX25519Pair(t *testing.T) (priv, pub [32]byte) {
	t.Helper()
	if _, err := rand.Read(priv[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		t.Fatalf("X25519: %v", err)
	}
	copy(pub[:], pubBytes)
	return priv, pub
}

func TestSealedBoxRoundTrip(t *testing.T) {
	priv, pub := generateX25519Pair(t)

	plaintext := []byte("device state snapshot")
	box, err := EncryptForX25519(pub, plaintext)
	if err != nil {
		t.Fatalf("EncryptForX25519: %v", err)
	}

	got, err := DecryptX25519(priv, pub, box)
	if err != nil {
		t.Fatalf("DecryptX25519: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestSealedBoxWrongKeyFails(t *testing.T) {
	_, pub := generateX25519Pair(t)
	otherPriv, otherPub := generateX25519Pair(t)

	box, err := EncryptForX25519(pub, []byte("secret"))
	if err != nil {
		t.Fatalf("EncryptForX25519: %v", err)
	}
	if _, err := DecryptX25519(otherPriv, otherPub, box); err == nil {
		t.Fatalf("expected decryption to fail with the wrong keypair")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	data := []byte("sign me")
	sig := Sign(priv, data)
	if !Verify(pub, data, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(pub, []byte("tampered"), sig) {
		t.Fatalf("expected signature to fail on tampered data")
	}
}

func TestRSAEncryptDecryptRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	plaintext := []byte("legacy compat payload")
	ciphertext, err := EncryptForRSA(&key.PublicKey, plaintext)
	if err != nil {
		t.Fatalf("EncryptForRSA: %v", err)
	}
	got, err := DecryptRSA(key, ciphertext)
	if err != nil {
		t.Fatalf("DecryptRSA: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}
