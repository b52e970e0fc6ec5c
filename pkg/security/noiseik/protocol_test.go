package noiseik

import (
	"crypto/rand"
	"testing"

	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

func testDeviceId(seed byte) objmodel.ObjectId {
	return objmodel.ComputeObjectId(objmodel.CategoryCore, objmodel.TypeDevice, []byte{seed})
}

func TestTunnelSyn_MarshalUnmarshal(t *testing.T) {
	testIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate test identity: %v", err)
	}

	syn := &TunnelSyn{
		Version:  1,
		From:     testDeviceId(1),
		To:       testDeviceId(2),
		Nonce:    12345,
		Caps:     []string{"stream/1", "datagram/1"},
		NoiseKey: make([]byte, 32),
	}
	if _, err := rand.Read(syn.NoiseKey); err != nil {
		t.Fatalf("Failed to generate noise key: %v", err)
	}

	if err := syn.Sign(testIdentity.SigningPrivateKey); err != nil {
		t.Fatalf("Failed to sign TunnelSyn: %v", err)
	}

	data, err := syn.Marshal()
	if err != nil {
		t.Fatalf("Failed to marshal TunnelSyn: %v", err)
	}

	var decoded TunnelSyn
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Failed to unmarshal TunnelSyn: %v", err)
	}

	if decoded.Version != syn.Version {
		t.Errorf("Expected version %d, got %d", syn.Version, decoded.Version)
	}
	if decoded.From != syn.From {
		t.Errorf("Expected from %s, got %s", syn.From, decoded.From)
	}
	if decoded.To != syn.To {
		t.Errorf("Expected to %s, got %s", syn.To, decoded.To)
	}
	if decoded.Nonce != syn.Nonce {
		t.Errorf("Expected nonce %d, got %d", syn.Nonce, decoded.Nonce)
	}
	if len(decoded.Caps) != len(syn.Caps) {
		t.Errorf("Expected %d capabilities, got %d", len(syn.Caps), len(decoded.Caps))
	}
	if len(decoded.NoiseKey) != len(syn.NoiseKey) {
		t.Errorf("Expected noise key length %d, got %d", len(syn.NoiseKey), len(decoded.NoiseKey))
	}

	if err := decoded.Verify(testIdentity.SigningPublicKey); err != nil {
		t.Errorf("Failed to verify TunnelSyn signature: %v", err)
	}
}

func TestTunnelAck_MarshalUnmarshal(t *testing.T) {
	testIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate test identity: %v", err)
	}

	ack := &TunnelAck{
		Version:  1,
		From:     testDeviceId(2),
		To:       testDeviceId(1),
		Nonce:    67890,
		Caps:     []string{"stream/1", "datagram/1"},
		NoiseKey: make([]byte, 32),
	}
	if _, err := rand.Read(ack.NoiseKey); err != nil {
		t.Fatalf("Failed to generate noise key: %v", err)
	}

	if err := ack.Sign(testIdentity.SigningPrivateKey); err != nil {
		t.Fatalf("Failed to sign TunnelAck: %v", err)
	}

	data, err := ack.Marshal()
	if err != nil {
		t.Fatalf("Failed to marshal TunnelAck: %v", err)
	}

	var decoded TunnelAck
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Failed to unmarshal TunnelAck: %v", err)
	}

	if decoded.Version != ack.Version {
		t.Errorf("Expected version %d, got %d", ack.Version, decoded.Version)
	}
	if decoded.From != ack.From {
		t.Errorf("Expected from %s, got %s", ack.From, decoded.From)
	}
	if decoded.Nonce != ack.Nonce {
		t.Errorf("Expected nonce %d, got %d", ack.Nonce, decoded.Nonce)
	}

	if err := decoded.Verify(testIdentity.SigningPublicKey); err != nil {
		t.Errorf("Failed to verify TunnelAck signature: %v", err)
	}
}

func TestHandshakeFlow(t *testing.T) {
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
	syn, err := clientHandshake.CreateSyn()
	if err != nil {
		t.Fatalf("Failed to create TunnelSyn: %v", err)
	}
	if err := syn.Verify(clientIdentity.SigningPublicKey); err != nil {
		t.Errorf("Failed to verify TunnelSyn: %v", err)
	}

	serverHandshake := NewHandshake(serverIdentity, serverId, clientId)
	ack, err := serverHandshake.ProcessSyn(syn)
	if err != nil {
		t.Fatalf("Failed to process TunnelSyn: %v", err)
	}
	if err := ack.Verify(serverIdentity.SigningPublicKey); err != nil {
		t.Errorf("Failed to verify TunnelAck: %v", err)
	}

	if err := clientHandshake.ProcessAck(ack); err != nil {
		t.Fatalf("Failed to process TunnelAck: %v", err)
	}

	if !clientHandshake.IsComplete() {
		t.Error("Expected client handshake to be complete")
	}
	if !serverHandshake.IsComplete() {
		t.Error("Expected server handshake to be complete")
	}
}

func TestInvalidSignature(t *testing.T) {
	testIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate test identity: %v", err)
	}
	wrongIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate wrong identity: %v", err)
	}

	syn := &TunnelSyn{
		Version:  1,
		From:     testDeviceId(1),
		To:       testDeviceId(2),
		Nonce:    12345,
		Caps:     []string{"stream/1"},
		NoiseKey: make([]byte, 32),
	}

	if err := syn.Sign(testIdentity.SigningPrivateKey); err != nil {
		t.Fatalf("Failed to sign TunnelSyn: %v", err)
	}

	if err := syn.Verify(wrongIdentity.SigningPublicKey); err == nil {
		t.Error("Expected verification to fail with wrong public key")
	}
}

func TestReplayProtectionNoncesDiffer(t *testing.T) {
	testIdentity, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate test identity: %v", err)
	}

	peer := testDeviceId(2)
	handshake1 := NewHandshake(testIdentity, testDeviceId(1), peer)
	handshake2 := NewHandshake(testIdentity, testDeviceId(1), peer)

	syn1, err := handshake1.CreateSyn()
	if err != nil {
		t.Fatalf("Failed to create first TunnelSyn: %v", err)
	}
	syn2, err := handshake2.CreateSyn()
	if err != nil {
		t.Fatalf("Failed to create second TunnelSyn: %v", err)
	}

	if syn1.Nonce == syn2.Nonce {
		t.Error("Expected different nonces for replay protection")
	}
}

func TestNoiseIKHandshake(t *testing.T) {
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

	clientHandshake, err := NewInitiatorHandshake(clientIdentity, clientId, serverId, serverIdentity.KeyAgreementPublicKey[:])
	if err != nil {
		t.Fatalf("Failed to create initiator handshake: %v", err)
	}

	serverHandshake, err := NewResponderHandshake(serverIdentity, serverId, clientId)
	if err != nil {
		t.Fatalf("Failed to create responder handshake: %v", err)
	}

	clientMsg1, err := clientHandshake.PerformHandshake(nil)
	if err != nil {
		t.Fatalf("Client handshake step 1 failed: %v", err)
	}

	_, err = serverHandshake.ReadHandshakeMessage(clientMsg1)
	if err != nil {
		t.Fatalf("Server failed to read client message: %v", err)
	}

	serverMsg1, err := serverHandshake.PerformHandshake(nil)
	if err != nil {
		t.Fatalf("Server handshake step 1 failed: %v", err)
	}

	_, err = clientHandshake.ReadHandshakeMessage(serverMsg1)
	if err != nil {
		t.Fatalf("Client failed to read server message: %v", err)
	}

	if !clientHandshake.IsComplete() {
		t.Error("Expected client handshake to be complete")
	}
	if !serverHandshake.IsComplete() {
		t.Error("Expected server handshake to be complete")
	}

	clientSendKey, clientRecvKey, err := clientHandshake.GetSessionKeys()
	if err != nil {
		t.Fatalf("Failed to get client session keys: %v", err)
	}
	serverSendKey, serverRecvKey, err := serverHandshake.GetSessionKeys()
	if err != nil {
		t.Fatalf("Failed to get server session keys: %v", err)
	}

	if len(clientSendKey) == 0 || len(clientRecvKey) == 0 {
		t.Error("Client session keys should not be empty")
	}
	if len(serverSendKey) == 0 || len(serverRecvKey) == 0 {
		t.Error("Server session keys should not be empty")
	}
}

func TestHandshakeWithSequenceTracking(t *testing.T) {
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

	seq1 := clientHandshake.NextSendSequence()
	seq2 := clientHandshake.NextSendSequence()
	seq3 := clientHandshake.NextSendSequence()

	if seq1 != 1 || seq2 != 2 || seq3 != 3 {
		t.Errorf("Expected sequences 1,2,3, got %d,%d,%d", seq1, seq2, seq3)
	}

	if !serverHandshake.ValidateReceiveSequence(1) {
		t.Error("Should accept sequence 1")
	}
	if !serverHandshake.ValidateReceiveSequence(3) {
		t.Error("Should accept sequence 3")
	}
	if !serverHandshake.ValidateReceiveSequence(2) {
		t.Error("Should accept sequence 2 (out of order)")
	}

	if serverHandshake.ValidateReceiveSequence(2) {
		t.Error("Should reject replayed sequence 2")
	}
	if serverHandshake.ValidateReceiveSequence(1) {
		t.Error("Should reject replayed sequence 1")
	}

	sendSeq, _ := clientHandshake.GetSequenceStats()
	if sendSeq != 3 {
		t.Errorf("Expected client send sequence 3, got %d", sendSeq)
	}

	_, serverLastRecv := serverHandshake.GetSequenceStats()
	if serverLastRecv != 3 {
		t.Errorf("Expected server last received sequence 3, got %d", serverLastRecv)
	}
}
