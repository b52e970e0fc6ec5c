package tunnel

import (
	"context"
	"fmt"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/security/noiseik"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// handshakeTimeout bounds how long one SYN/ACK/ACK-ACK cycle may take
// before the caller gives up and tries the next establishment strategy.
const handshakeTimeout = 5 * time.Second

// dialHandshake drives the SYN/ACK/ACK-ACK cycle as the connecting side
// over an already-dialed conn, returning the derived per-direction AEAD
// keys once complete. The Noise IK handshake message itself rides inside
// SynTunnel/AckTunnel's SessionKey field; PackageBox framing during the
// handshake carries plaintext (no AEAD key exists yet), authenticated
// instead by Noise IK's own key-confirmation property.
func dialHandshake(ctx context.Context, id *identity.Identity, localId, peerId objmodel.ObjectId, peerNoiseKey []byte, localEndpoints []string, admission *noiseik.AdmissionParams, c conn) (sendKey, recvKey [32]byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	hs, err := noiseik.NewInitiatorHandshake(id, localId, peerId, peerNoiseKey)
	if err != nil {
		return sendKey, recvKey, fmt.Errorf("tunnel: build initiator handshake: %w", err)
	}

	msg1, err := hs.PerformHandshake(nil)
	if err != nil {
		return sendKey, recvKey, fmt.Errorf("tunnel: handshake step 1: %w", err)
	}

	syn := &wire.SynTunnel{
		FromDeviceId: localId.Bytes(),
		ToDeviceId:   peerId.Bytes(),
		SessionKey:   msg1,
		Endpoints:    localEndpoints,
		SendTime:     wire.NowMillis(time.Now()),
	}
	if admission != nil && admission.Config != nil && admission.ClientToken != "" {
		hc := &noiseik.HandshakeConfig{
			AdmissionConfig: admission.Config,
			ClientToken:     admission.ClientToken,
			TokenSigningKey: admission.SigningKey,
		}
		token, proof, expiry := hc.GenerateAdmissionTokenProof(peerId.String())
		if token != "" {
			syn.AdmissionToken = &token
			syn.TokenProof = proof
			syn.TokenExpiry = &expiry
		}
	}
	synData, err := wire.MarshalPackage(syn)
	if err != nil {
		return sendKey, recvKey, fmt.Errorf("tunnel: marshal SynTunnel: %w", err)
	}
	if err := c.WriteBox(&wire.PackageBox{Version: 1, Cmd: wire.CmdSynTunnel, Ciphertext: synData}); err != nil {
		return sendKey, recvKey, fmt.Errorf("tunnel: send SynTunnel: %w", err)
	}

	ack, err := awaitCmd(ctx, c, wire.CmdAckTunnel)
	if err != nil {
		return sendKey, recvKey, fmt.Errorf("tunnel: await AckTunnel: %w", err)
	}
	var ackMsg wire.AckTunnel
	if err := wire.UnmarshalPackage(ack.Ciphertext, &ackMsg); err != nil {
		return sendKey, recvKey, fmt.Errorf("tunnel: decode AckTunnel: %w", err)
	}
	if ackMsg.Result != 0 {
		return sendKey, recvKey, fmt.Errorf("tunnel: peer rejected tunnel (result=%d)", ackMsg.Result)
	}

	if _, err := hs.ReadHandshakeMessage(ackMsg.SessionKey); err != nil {
		return sendKey, recvKey, fmt.Errorf("tunnel: handshake step 2: %w", err)
	}
	if !hs.IsComplete() {
		return sendKey, recvKey, fmt.Errorf("tunnel: handshake did not complete")
	}

	if err := c.WriteBox(ackAckBox(ack.Seq)); err != nil {
		return sendKey, recvKey, fmt.Errorf("tunnel: send AckAckTunnel: %w", err)
	}

	send, recv, err := hs.GetSessionKeys()
	if err != nil {
		return sendKey, recvKey, fmt.Errorf("tunnel: derive session keys: %w", err)
	}
	copy(sendKey[:], send)
	copy(recvKey[:], recv)
	return sendKey, recvKey, nil
}

// acceptHandshake drives the SYN/ACK/ACK-ACK cycle as the responder, given
// the SynTunnel box that triggered this attempt.
func acceptHandshake(ctx context.Context, id *identity.Identity, localId objmodel.ObjectId, syn *wire.SynTunnel, admission *noiseik.AdmissionParams, c conn) (peerId objmodel.ObjectId, sendKey, recvKey [32]byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	peerId, err = objmodel.ObjectIdFromBytes(syn.FromDeviceId)
	if err != nil {
		return peerId, sendKey, recvKey, fmt.Errorf("tunnel: decode SynTunnel.FromDeviceId: %w", err)
	}

	if admission != nil && admission.Config != nil && admission.Config.RequireToken {
		// The dialer proves its token against its own view of who it's
		// calling (its peerId, i.e. us); validate against that same
		// value — our own localId — rather than the dialer's identity,
		// so both sides sign/verify the same context string.
		hc := &noiseik.HandshakeConfig{AdmissionConfig: admission.Config, TokenPublicKey: admission.PublicKey}
		if verr := hc.ValidateAdmissionToken(localId.String(), syn.AdmissionToken, syn.TokenProof); verr != nil {
			_ = c.WriteBox(rejectAckTunnelBox(syn.FromDeviceId, wire.AckTunnelAdmissionDenied))
			return peerId, sendKey, recvKey, fmt.Errorf("tunnel: admission control rejected SYN from %s: %w", peerId, verr)
		}
	}

	hs, err := noiseik.NewResponderHandshake(id, localId, peerId)
	if err != nil {
		return peerId, sendKey, recvKey, fmt.Errorf("tunnel: build responder handshake: %w", err)
	}

	if _, err := hs.ReadHandshakeMessage(syn.SessionKey); err != nil {
		return peerId, sendKey, recvKey, fmt.Errorf("tunnel: handshake step 1: %w", err)
	}

	msg2, err := hs.PerformHandshake(nil)
	if err != nil {
		return peerId, sendKey, recvKey, fmt.Errorf("tunnel: handshake step 2: %w", err)
	}
	if !hs.IsComplete() {
		return peerId, sendKey, recvKey, fmt.Errorf("tunnel: handshake did not complete")
	}

	ack := &wire.AckTunnel{ToDeviceId: syn.FromDeviceId, SessionKey: msg2, Result: 0}
	ackData, err := wire.MarshalPackage(ack)
	if err != nil {
		return peerId, sendKey, recvKey, fmt.Errorf("tunnel: marshal AckTunnel: %w", err)
	}
	if err := c.WriteBox(&wire.PackageBox{Version: 1, Cmd: wire.CmdAckTunnel, Ciphertext: ackData}); err != nil {
		return peerId, sendKey, recvKey, fmt.Errorf("tunnel: send AckTunnel: %w", err)
	}

	if _, err := awaitCmd(ctx, c, wire.CmdAckAckTunnel); err != nil {
		return peerId, sendKey, recvKey, fmt.Errorf("tunnel: await AckAckTunnel: %w", err)
	}

	send, recv, err := hs.GetSessionKeys()
	if err != nil {
		return peerId, sendKey, recvKey, fmt.Errorf("tunnel: derive session keys: %w", err)
	}
	copy(sendKey[:], send)
	copy(recvKey[:], recv)
	return peerId, sendKey, recvKey, nil
}

// awaitCmd blocks until a box with the given cmd code arrives, discarding
// anything else (stray retransmits of an earlier leg, for instance).
func awaitCmd(ctx context.Context, c conn, want wire.CmdCode) (*wire.PackageBox, error) {
	for {
		box, err := c.ReadBox(ctx)
		if err != nil {
			return nil, err
		}
		if box.Cmd == want {
			return box, nil
		}
	}
}

func ackAckBox(seqAcked uint16) *wire.PackageBox {
	data, _ := wire.MarshalPackage(&wire.AckAckTunnel{SeqAcked: seqAcked})
	return &wire.PackageBox{Version: 1, Cmd: wire.CmdAckAckTunnel, Ciphertext: data}
}

// rejectAckTunnelBox builds an AckTunnel carrying a non-zero result code,
// sent in place of a real handshake response when a SYN is turned away
// before the Noise exchange completes (e.g. failed admission control).
func rejectAckTunnelBox(toDeviceId []byte, result uint8) *wire.PackageBox {
	data, _ := wire.MarshalPackage(&wire.AckTunnel{ToDeviceId: toDeviceId, Result: result})
	return &wire.PackageBox{Version: 1, Cmd: wire.CmdAckTunnel, Ciphertext: data}
}
