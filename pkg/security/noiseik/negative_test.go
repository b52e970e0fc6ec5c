package noiseik

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
)

// TestProtocolVersionMismatch tests handling of protocol version mismatches.
func TestProtocolVersionMismatch(t *testing.T) {
	clientIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate client identity: %v", err)
	}
	serverIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate server identity: %v", err)
	}

	clientId := testDeviceId(1)
	serverId := testDeviceId(2)

	clientHandshake := NewHandshake(clientIdentity, clientId, serverId)
	serverHandshake := NewHandshake(serverIdentity, serverId, clientId)

	syn, err := clientHandshake.CreateSyn()
	if err != nil {
		t.Fatalf("Failed to create TunnelSyn: %v", err)
	}

	originalVersion := syn.Version
	syn.Version = 999
	if err := syn.Sign(clientIdentity.SigningPrivateKey); err != nil {
		t.Fatalf("Failed to re-sign TunnelSyn: %v", err)
	}

	_, err = serverHandshake.ProcessSyn(syn)
	if err == nil {
		t.Error("Server should reject TunnelSyn with invalid version")
	}

	syn.Version = originalVersion
	if err := syn.Sign(clientIdentity.SigningPrivateKey); err != nil {
		t.Fatalf("Failed to restore TunnelSyn signature: %v", err)
	}

	_, err = serverHandshake.ProcessSyn(syn)
	if err != nil {
		t.Errorf("Server should accept TunnelSyn with correct version: %v", err)
	}
}

// TestInvalidEd25519Signatures tests that a corrupted proof still fails
// Verify even though ProcessSyn itself does not resolve the sender's key.
func TestInvalidEd25519Signatures(t *testing.T) {
	clientIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate client identity: %v", err)
	}

	syn := &TunnelSyn{
		Version:  1,
		From:     testDeviceId(1),
		To:       testDeviceId(2),
		Nonce:    12345,
		Caps:     []string{"stream/1"},
		NoiseKey: make([]byte, 32),
	}
	if err := syn.Sign(clientIdentity.SigningPrivateKey); err != nil {
		t.Fatalf("Failed to sign TunnelSyn: %v", err)
	}
	if err := syn.Verify(clientIdentity.SigningPublicKey); err != nil {
		t.Fatalf("Expected valid signature to verify: %v", err)
	}

	syn.Proof[0] ^= 0xFF
	if err := syn.Verify(clientIdentity.SigningPublicKey); err == nil {
		t.Error("Expected corrupted signature to fail verification")
	}

	syn.Proof = []byte{}
	if err := syn.Verify(clientIdentity.SigningPublicKey); err == nil {
		t.Error("Expected empty signature to fail verification")
	}
}

// TestReplayAttackPrevention tests replay attack prevention via the
// responder handshake's own sequence tracker.
func TestReplayAttackPrevention(t *testing.T) {
	serverIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate server identity: %v", err)
	}

	serverId := testDeviceId(2)
	clientId := testDeviceId(1)
	serverHandshake := NewHandshake(serverIdentity, serverId, clientId)

	seq := serverHandshake.NextSendSequence()
	if !serverHandshake.ValidateReceiveSequence(seq) {
		t.Fatal("first use of a fresh sequence number should be accepted")
	}
	if serverHandshake.ValidateReceiveSequence(seq) {
		t.Error("Server should reject a replayed sequence number")
	}
}

// TestMalformedMessages tests handling of malformed protocol messages.
func TestMalformedMessages(t *testing.T) {
	serverIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate server identity: %v", err)
	}

	serverId := testDeviceId(2)
	clientId := testDeviceId(1)
	serverHandshake := NewHandshake(serverIdentity, serverId, clientId)

	// SYN addressed to a different device than the responder.
	wrongTarget := &TunnelSyn{
		Version:  1,
		From:     clientId,
		To:       testDeviceId(99),
		Nonce:    12345,
		Caps:     []string{"stream/1"},
		NoiseKey: make([]byte, 32),
	}
	_, err = serverHandshake.ProcessSyn(wrongTarget)
	if err == nil {
		t.Error("Server should reject TunnelSyn addressed to a different device")
	}

	// SYN with a malformed noise key length.
	badNoiseKey := &TunnelSyn{
		Version:  1,
		From:     clientId,
		To:       serverId,
		Nonce:    12345,
		Caps:     []string{"stream/1"},
		NoiseKey: make([]byte, 16),
	}
	_, err = serverHandshake.ProcessSyn(badNoiseKey)
	if err == nil {
		t.Error("Server should reject TunnelSyn with invalid NoiseKey length")
	}
}

// TestPSKValidationErrors tests PSK validation error conditions.
func TestPSKValidationErrors(t *testing.T) {
	clientIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate client identity: %v", err)
	}
	serverIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate server identity: %v", err)
	}

	clientId := testDeviceId(1)
	serverId := testDeviceId(2)

	clientPSK := make([]byte, 32)
	rand.Read(clientPSK)
	clientPSKConfig := NewPSKConfig(clientPSK, "client-psk")

	serverPSK := make([]byte, 32)
	rand.Read(serverPSK)
	serverPSKConfig := NewPSKConfig(serverPSK, "server-psk")

	clientHandshake := NewHandshakeWithPSK(clientIdentity, clientId, serverId, clientPSKConfig)
	serverHandshake := NewHandshakeWithPSK(serverIdentity, serverId, clientId, serverPSKConfig)

	syn, err := clientHandshake.CreateSyn()
	if err != nil {
		t.Fatalf("Failed to create TunnelSyn: %v", err)
	}

	_, err = serverHandshake.ProcessSyn(syn)
	if err == nil {
		t.Error("Server should reject TunnelSyn with mismatched PSK")
	}
}

// TestTokenValidationErrors tests token validation error conditions.
func TestTokenValidationErrors(t *testing.T) {
	clientIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate client identity: %v", err)
	}
	serverIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate server identity: %v", err)
	}

	clientId := testDeviceId(1)
	serverId := testDeviceId(2)

	admissionConfig := NewAdmissionConfig()
	admissionConfig.RequireToken = true

	tokenPublicKey, tokenSigningKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate token signing key: %v", err)
	}

	expiredToken := "expired-token"
	expiredTime := uint64(time.Now().Add(-time.Hour).Unix())
	err = admissionConfig.AddToken(expiredToken, expiredTime, tokenSigningKey)
	if err != nil {
		t.Fatalf("Failed to add expired token: %v", err)
	}

	clientHandshake := NewHandshakeWithAdmission(clientIdentity, clientId, serverId, admissionConfig, expiredToken, tokenSigningKey)
	serverHandshake := NewHandshakeWithAdmission(serverIdentity, serverId, clientId, admissionConfig, "", nil)
	serverHandshake.SetTokenValidator(tokenPublicKey)

	syn, err := clientHandshake.CreateSyn()
	if err != nil {
		t.Fatalf("Failed to create TunnelSyn: %v", err)
	}

	_, err = serverHandshake.ProcessSyn(syn)
	if err == nil {
		t.Error("Server should reject TunnelSyn with expired token")
	}
}
