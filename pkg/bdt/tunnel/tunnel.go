// Package tunnel implements BDT tunnel establishment and the active
// tunnel abstraction between two devices (§4.5, §7). A Tunnel carries
// PackageBox records over whichever path establishment picked: direct
// UDP, SN-mediated reverse connect, single-shot TCP, QUIC, or a proxy relay.
package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/security/noiseik"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// State is a Tunnel's lifecycle position.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateDead
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateActive:
		return "Active"
	case StateDead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// PathKind identifies which of the five establishment strategies produced
// a Tunnel's underlying connection.
type PathKind int

const (
	PathDirectUDP PathKind = iota
	PathSNReverse
	PathTCP
	PathQUIC
	PathProxy
)

func (p PathKind) String() string {
	switch p {
	case PathDirectUDP:
		return "direct-udp"
	case PathSNReverse:
		return "sn-reverse"
	case PathTCP:
		return "tcp"
	case PathQUIC:
		return "quic"
	case PathProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// Endpoint is one network address a peer can be dialed on.
type Endpoint struct {
	Network string // "udp", "tcp" or "quic"
	Addr    string
}

// conn is the minimal I/O surface every establishment strategy's
// underlying connection must provide; Tunnel doesn't otherwise care
// whether it is a raw UDP socket, a TCP+TLS stream, or a proxy-relayed
// UDP socket.
type conn interface {
	WriteBox(box *wire.PackageBox) error
	ReadBox(ctx context.Context) (*wire.PackageBox, error)
	Close() error
}

// Tunnel is one active (or in-progress) connection to a peer device.
type Tunnel struct {
	localId objmodel.ObjectId
	peerId  objmodel.ObjectId

	mu         sync.RWMutex
	state      State
	lastRTT    time.Duration
	lastActive time.Time
	endpoints  []Endpoint
	chosenPath PathKind

	sendKey [32]byte
	recvKey [32]byte
	// seqTracker draws outbound sequence numbers and rejects replayed or
	// stale inbound ones via its sliding-window bitmap (§5 "AEAD replay
	// protection"); one tracker per Tunnel covers both directions since
	// send and receive sequence spaces are independent.
	seqTracker *noiseik.SequenceTracker

	conn conn

	closeOnce sync.Once
	closed    chan struct{}

	datagramHandlers sync.Map // uint32 sessionId -> func(*wire.Datagram)
	streamHandlers   sync.Map // uint32 sessionId -> func(*wire.SessionData)
	ackHandlers      sync.Map // uint32 sessionId -> func(*wire.SessionDataAck)

	controlMu      sync.Mutex
	controlHandler func(cmd wire.CmdCode, payload []byte)
}

// Conn is the minimal I/O surface a Tunnel runs over; it mirrors the
// package-private conn interface so callers outside pkg/bdt/tunnel (e.g.
// an in-memory transport in tests) can supply their own.
type Conn interface {
	WriteBox(box *wire.PackageBox) error
	ReadBox(ctx context.Context) (*wire.PackageBox, error)
	Close() error
}

// NewEstablished wraps an already-keyed connection as an Active Tunnel
// and starts its receive loop, skipping the dial/handshake strategies in
// manager.go. Used when a caller already has session keys in hand through
// some other channel than the normal establishment strategies.
func NewEstablished(localId, peerId objmodel.ObjectId, path PathKind, c Conn, sendKey, recvKey [32]byte, endpoints []Endpoint) *Tunnel {
	t := newTunnel(localId, peerId, path, c, sendKey, recvKey, endpoints)
	go t.run(context.Background())
	return t
}

func newTunnel(localId, peerId objmodel.ObjectId, path PathKind, c conn, sendKey, recvKey [32]byte, endpoints []Endpoint) *Tunnel {
	return &Tunnel{
		localId:    localId,
		peerId:     peerId,
		state:      StateActive,
		lastActive: time.Now(),
		endpoints:  endpoints,
		chosenPath: path,
		sendKey:    sendKey,
		recvKey:    recvKey,
		seqTracker: noiseik.NewSequenceTracker(),
		conn:       c,
		closed:     make(chan struct{}),
	}
}

// PeerId returns the device id this tunnel connects to.
func (t *Tunnel) PeerId() objmodel.ObjectId { return t.peerId }

// State returns the tunnel's current lifecycle state.
func (t *Tunnel) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// ChosenPath returns which establishment strategy produced this tunnel.
func (t *Tunnel) ChosenPath() PathKind {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chosenPath
}

// LastRTT returns the most recently measured round-trip time, updated by
// PingTunnel/PingTunnelResp exchanges.
func (t *Tunnel) LastRTT() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastRTT
}

// Closed returns a channel closed once the tunnel transitions to Dead,
// so pending stream/datagram operations can select on it alongside their
// own context (§4.5, §5 "Cancellation").
func (t *Tunnel) Closed() <-chan struct{} {
	return t.closed
}

// Send encrypts pkg and writes it as a PackageBox over the underlying
// connection.
func (t *Tunnel) Send(pkg wire.Package) error {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return fmt.Errorf("tunnel: send on non-active tunnel (state=%s)", t.state)
	}
	key := t.sendKey
	t.mu.Unlock()
	seq := uint32(t.seqTracker.NextSendSequence())

	plaintext, err := wire.MarshalPackage(pkg)
	if err != nil {
		return fmt.Errorf("tunnel: marshal package: %w", err)
	}

	ciphertext, err := seal(key, seq, plaintext)
	if err != nil {
		return fmt.Errorf("tunnel: seal package: %w", err)
	}

	box := &wire.PackageBox{Version: 1, Seq: uint16(seq), Cmd: pkg.CmdCode(), Ciphertext: ciphertext}
	return t.conn.WriteBox(box)
}

// dispatch decrypts an incoming PackageBox and routes it to the right
// handler by cmd-code sub-space (§4.5 "Cmd codes partition").
func (t *Tunnel) dispatch(box *wire.PackageBox) {
	t.mu.Lock()
	t.lastActive = time.Now()
	key := t.recvKey
	t.mu.Unlock()

	plaintext, err := open(key, uint32(box.Seq), box.Ciphertext)
	if err != nil {
		return
	}
	if !t.seqTracker.ValidateReceiveSequence(uint64(box.Seq)) {
		// Replayed or stale box.Seq (§5 "AEAD replay protection"): the
		// ciphertext decrypted fine, but we've already processed this
		// sequence number or it fell outside the sliding window.
		return
	}

	switch {
	case box.Cmd == wire.CmdDatagram:
		var dg wire.Datagram
		if err := wire.UnmarshalPackage(plaintext, &dg); err != nil {
			return
		}
		if h, ok := t.datagramHandlers.Load(dg.SessionId); ok {
			h.(func(*wire.Datagram))(&dg)
		}
	case box.Cmd == wire.CmdSessionData:
		var sd wire.SessionData
		if err := wire.UnmarshalPackage(plaintext, &sd); err != nil {
			return
		}
		if h, ok := t.streamHandlers.Load(sd.SessionId); ok {
			h.(func(*wire.SessionData))(&sd)
		}
	case box.Cmd == wire.CmdSessionDataAck:
		var ack wire.SessionDataAck
		if err := wire.UnmarshalPackage(plaintext, &ack); err != nil {
			return
		}
		if h, ok := t.ackHandlers.Load(ack.SessionId); ok {
			h.(func(*wire.SessionDataAck))(&ack)
		}
	case box.Cmd == wire.CmdPingTunnel:
		var ping wire.PingTunnel
		if err := wire.UnmarshalPackage(plaintext, &ping); err != nil {
			return
		}
		_ = t.Send(&wire.PingTunnelResp{RecvTime: ping.SendTime})
	case box.Cmd == wire.CmdPingTunnelResp:
		var resp wire.PingTunnelResp
		if err := wire.UnmarshalPackage(plaintext, &resp); err != nil {
			return
		}
		sent := time.UnixMilli(int64(resp.RecvTime))
		t.mu.Lock()
		t.lastRTT = time.Since(sent)
		t.mu.Unlock()
	case box.Cmd == wire.CmdSynProxy, box.Cmd == wire.CmdAckProxy:
		t.controlMu.Lock()
		h := t.controlHandler
		t.controlMu.Unlock()
		if h != nil {
			h(box.Cmd, plaintext)
		}
	}
}

// RegisterDatagramHandler routes incoming datagrams for sessionId to fn.
func (t *Tunnel) RegisterDatagramHandler(sessionId uint32, fn func(*wire.Datagram)) {
	t.datagramHandlers.Store(sessionId, fn)
}

// RegisterStreamHandler routes incoming stream segments for sessionId to fn.
func (t *Tunnel) RegisterStreamHandler(sessionId uint32, fn func(*wire.SessionData)) {
	t.streamHandlers.Store(sessionId, fn)
}

// RegisterAckHandler routes incoming stream acks for sessionId to fn.
func (t *Tunnel) RegisterAckHandler(sessionId uint32, fn func(*wire.SessionDataAck)) {
	t.ackHandlers.Store(sessionId, fn)
}

// UnregisterSession removes every handler registered for sessionId.
func (t *Tunnel) UnregisterSession(sessionId uint32) {
	t.datagramHandlers.Delete(sessionId)
	t.streamHandlers.Delete(sessionId)
	t.ackHandlers.Delete(sessionId)
}

// SetControlHandler registers fn to receive SynProxy/AckProxy control
// packages arriving on this tunnel. Unlike datagrams and stream data,
// proxy establishment messages aren't addressed to a session id, so
// Manager intercepts them directly instead of through the handler maps
// above.
func (t *Tunnel) SetControlHandler(fn func(cmd wire.CmdCode, payload []byte)) {
	t.controlMu.Lock()
	t.controlHandler = fn
	t.controlMu.Unlock()
}

// run starts the tunnel's receive loop; it returns once the underlying
// connection is closed or ctx is cancelled.
func (t *Tunnel) run(ctx context.Context) {
	for {
		box, err := t.conn.ReadBox(ctx)
		if err != nil {
			break
		}
		t.dispatch(box)
	}
	t.markDead()
}

// markDead transitions the tunnel to Dead and closes its done channel
// exactly once, resolving any pending stream/datagram ops with
// ErrConnectionReset per §4.5/§5.
func (t *Tunnel) markDead() {
	t.mu.Lock()
	t.state = StateDead
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.closed) })
}

// Close terminates the tunnel explicitly; pending ops should treat this
// the same as ErrAborted rather than ErrConnectionReset (§4.5, §5).
func (t *Tunnel) Close() error {
	t.markDead()
	return t.conn.Close()
}

const chachaPolyNonceSize = chacha20poly1305.NonceSize

// seal encrypts plaintext with key, using the per-direction send sequence
// number as the nonce (zero-padded to the AEAD's nonce size) so both ends
// stay in lockstep without an explicit nonce field on the wire.
func seal(key [32]byte, seq uint32, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chachaPolyNonceSize)
	nonce[0] = byte(seq)
	nonce[1] = byte(seq >> 8)
	nonce[2] = byte(seq >> 16)
	nonce[3] = byte(seq >> 24)
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// open decrypts ciphertext sealed with seal.
func open(key [32]byte, seq uint32, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chachaPolyNonceSize)
	nonce[0] = byte(seq)
	nonce[1] = byte(seq >> 8)
	nonce[2] = byte(seq >> 16)
	nonce[3] = byte(seq >> 24)
	return aead.Open(nil, nonce, ciphertext, nil)
}
