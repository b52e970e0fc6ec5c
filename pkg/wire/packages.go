package wire

import (
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/codec/cborcanon"
)

// Package is implemented by every concrete payload that can be carried
// inside a PackageBox's ciphertext. Dispatch is by CmdCode, the tagged-
// variant style §9 prescribes in place of runtime-typed polymorphism.
type Package interface {
	CmdCode() CmdCode
}

// MarshalPackage canonical-CBOR encodes a Package for placement inside a
// PackageBox's ciphertext (before encryption).
func MarshalPackage(p Package) ([]byte, error) {
	return cborcanon.Marshal(p)
}

// UnmarshalPackage decodes a PackageBox's decrypted plaintext into out,
// which must be a pointer to a concrete Package type matching the box's
// Cmd code.
func UnmarshalPackage(data []byte, out interface{}) error {
	return cborcanon.Unmarshal(data, out)
}

// Exchange carries a device's long-term public key material the first time
// two peers speak, so the receiver can verify subsequent signatures without
// a separate lookup.
type Exchange struct {
	DeviceId  []byte `cbor:"device_id"`
	PublicKey []byte `cbor:"public_key"`
	SeqSeed   uint32 `cbor:"seq_seed"`
}

func (*Exchange) CmdCode() CmdCode { return CmdExchange }

// Tunnel establishment (§4.5 "Tunnel establishment").

type SynTunnel struct {
	FromDeviceId []byte   `cbor:"from"`
	ToDeviceId   []byte   `cbor:"to"`
	SessionKey   []byte   `cbor:"session_key"` // X25519 public key for this tunnel attempt
	Endpoints    []string `cbor:"endpoints"`
	SendTime     uint64   `cbor:"send_time"`
	// AdmissionToken/TokenProof/TokenExpiry carry zone admission control
	// (§4 access model): present only when the dialing side's Manager was
	// configured with a client token to prove prior authorization.
	AdmissionToken *string `cbor:"admission_token,omitempty"`
	TokenProof     []byte  `cbor:"token_proof,omitempty"`
	TokenExpiry    *uint64 `cbor:"token_expiry,omitempty"`
}

func (*SynTunnel) CmdCode() CmdCode { return CmdSynTunnel }

// AckTunnel Result codes.
const (
	AckTunnelAccepted       uint8 = 0
	AckTunnelRejected       uint8 = 1
	AckTunnelAdmissionDenied uint8 = 2
)

type AckTunnel struct {
	ToDeviceId []byte `cbor:"to"`
	SessionKey []byte `cbor:"session_key"`
	Result     uint8  `cbor:"result"` // 0 = accepted, non-zero = rejected
}

func (*AckTunnel) CmdCode() CmdCode { return CmdAckTunnel }

type AckAckTunnel struct {
	SeqAcked uint16 `cbor:"seq_acked"`
}

func (*AckAckTunnel) CmdCode() CmdCode { return CmdAckAckTunnel }

type PingTunnel struct {
	SendTime uint64 `cbor:"send_time"`
}

func (*PingTunnel) CmdCode() CmdCode { return CmdPingTunnel }

type PingTunnelResp struct {
	RecvTime uint64 `cbor:"recv_time"` // echoes the ping's SendTime, for RTT
}

func (*PingTunnelResp) CmdCode() CmdCode { return CmdPingTunnelResp }

// Datagram carries one unordered, unreliable user message (§4.5 "Datagram").
type Datagram struct {
	SessionId uint32 `cbor:"session_id"`
	Data      []byte `cbor:"data"`
}

func (*Datagram) CmdCode() CmdCode { return CmdDatagram }

// SessionData carries one ordered reliable stream segment (§4.5 "Stream").
type SessionData struct {
	SessionId uint32 `cbor:"session_id"`
	StreamPos uint64 `cbor:"stream_pos"`
	Data      []byte `cbor:"data"`
	Fin       bool   `cbor:"fin,omitempty"`
}

func (*SessionData) CmdCode() CmdCode { return CmdSessionData }

// SessionDataAck carries a stream's contiguous-receive watermark back to
// the sender, feeding cc.Controller's OnAck.
type SessionDataAck struct {
	SessionId uint32 `cbor:"session_id"`
	AckedPos  uint64 `cbor:"acked_pos"`
	SentTime  uint64 `cbor:"sent_time"` // echoes the acked segment's send time, for RTT
}

func (*SessionDataAck) CmdCode() CmdCode { return CmdSessionDataAck }

// SN ping/call packages (§4.5 "SN client").

type SnPing struct {
	DeviceId  []byte `cbor:"device_id"`
	Endpoints []string `cbor:"endpoints"`
	SeqNo     uint32 `cbor:"seq_no"`
}

func (*SnPing) CmdCode() CmdCode { return CmdSnPing }

type SnPingResp struct {
	SeqNo      uint32 `cbor:"seq_no"`
	PeerEndpoint string `cbor:"peer_endpoint"`
}

func (*SnPingResp) CmdCode() CmdCode { return CmdSnPingResp }

type SnCall struct {
	FromDeviceId []byte `cbor:"from"`
	ToDeviceId   []byte `cbor:"to"`
	SeqNo        uint32 `cbor:"seq_no"`
	ReverseEndpoints []string `cbor:"reverse_endpoints"`
}

func (*SnCall) CmdCode() CmdCode { return CmdSnCall }

type SnCallResp struct {
	SeqNo  uint32 `cbor:"seq_no"`
	Result uint8  `cbor:"result"`
}

func (*SnCallResp) CmdCode() CmdCode { return CmdSnCallResp }

// SnCalled is relayed by the SN to the called peer, asking it to connect
// back to the caller (reverse connect, §4.5 path (b)).
type SnCalled struct {
	FromDeviceId []byte   `cbor:"from"`
	SeqNo        uint32   `cbor:"seq_no"`
	CallerEndpoints []string `cbor:"caller_endpoints"`
}

func (*SnCalled) CmdCode() CmdCode { return CmdSnCalled }

type SnCalledResp struct {
	SeqNo  uint32 `cbor:"seq_no"`
	Result uint8  `cbor:"result"`
}

func (*SnCalledResp) CmdCode() CmdCode { return CmdSnCalledResp }

// Proxy fallback (§4.5 path (d)).

type SynProxy struct {
	FromDeviceId []byte `cbor:"from"`
	ToDeviceId   []byte `cbor:"to"`
	ProxyDeviceId []byte `cbor:"proxy"`
	SeqNo        uint32 `cbor:"seq_no"`
}

func (*SynProxy) CmdCode() CmdCode { return CmdSynProxy }

type AckProxy struct {
	SeqNo        uint32 `cbor:"seq_no"`
	RelayEndpoint string `cbor:"relay_endpoint"`
	Result       uint8  `cbor:"result"`
}

func (*AckProxy) CmdCode() CmdCode { return CmdAckProxy }

// TCP single-shot establishment (§4.5 path (c)).

type TcpSynConnection struct {
	FromDeviceId []byte `cbor:"from"`
	ToDeviceId   []byte `cbor:"to"`
	SessionKey   []byte `cbor:"session_key"`
}

func (*TcpSynConnection) CmdCode() CmdCode { return CmdTcpSynConnection }

type TcpAckConnection struct {
	Result uint8 `cbor:"result"`
}

func (*TcpAckConnection) CmdCode() CmdCode { return CmdTcpAckConnection }

type TcpAckAckConnection struct {
	Result uint8 `cbor:"result"`
}

func (*TcpAckAckConnection) CmdCode() CmdCode { return CmdTcpAckAckConnection }

// NowMillis is a small helper kept here (rather than scattered across
// callers) so every package timestamp uses the same epoch convention.
func NowMillis(t time.Time) uint64 { return uint64(t.UnixMilli()) }
