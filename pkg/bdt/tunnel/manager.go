package tunnel

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/security/noiseik"
	"github.com/buckyos/cyfs-ndn-core/pkg/transport"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// relayIdleTimeout bounds how long a relay this device allocated for
// someone else's proxy establishment waits for both peers to show up (or
// for traffic to keep flowing) before it closes itself.
const relayIdleTimeout = 60 * time.Second

// PeerHint is what a caller knows about a peer before a tunnel exists:
// its advertised endpoints, Noise static public key, and (if one of its
// SNs is known) a relay to try for a reverse connect.
type PeerHint struct {
	NoiseKey  []byte
	Endpoints []Endpoint
	// SNTunnel, if non-nil, is an already-Active tunnel to an SN that can
	// relay an SnCall to the peer (§4.5 "SN-mediated reverse connect").
	SNTunnel *Tunnel
	// ProxyTunnel, if non-nil, is an already-Active tunnel to a third
	// device willing to relay a SynProxy/AckProxy exchange (§4.5 "proxy
	// fallback"), tried when direct, SN-reverse and TCP all fail or
	// don't apply. The proxy must already hold an Active tunnel of its
	// own to peerId for the relay to succeed.
	ProxyTunnel *Tunnel
}

// Manager holds at most one Active tunnel per peer and races every
// applicable establishment strategy concurrently, installing whichever
// completes first through promote.
type Manager struct {
	id      *identity.Identity
	localId objmodel.ObjectId

	tcp  transport.Transport
	quic transport.Transport

	mu      sync.RWMutex
	tunnels map[objmodel.ObjectId]*Tunnel

	udp      *udpListener
	udpClose chan struct{}

	reverseWaiters sync.Map // objmodel.ObjectId -> chan *Tunnel

	nextProxySeq uint32
	proxyWaiters sync.Map // uint32 seqNo -> chan *wire.AckProxy

	relaysMu sync.Mutex
	relays   map[string]*proxyRelay // keyed by relay listen addr

	// admission, if set, gates every SYN this Manager sends or accepts
	// behind zone admission control (§4 access model); nil disables it.
	admission *noiseik.AdmissionParams
}

// SetAdmissionControl configures zone admission control for every tunnel
// this Manager dials or accepts from this point on: dialed SYNs carry
// proof of params.ClientToken, and accepted SYNs are validated against
// params.Config when it requires one. Pass nil to disable.
func (m *Manager) SetAdmissionControl(params *noiseik.AdmissionParams) {
	m.mu.Lock()
	m.admission = params
	m.mu.Unlock()
}

func (m *Manager) admissionParams() *noiseik.AdmissionParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admission
}

// NewManager starts listening for direct-UDP tunnel attempts on udpAddr
// (empty disables the direct-UDP accept path, e.g. on a NAT'd client that
// only ever dials out). quicT is optional (nil disables the QUIC dial
// path); callers that don't need it can pass nil.
func NewManager(id *identity.Identity, localId objmodel.ObjectId, udpAddr string, tcp transport.Transport, quicT transport.Transport) (*Manager, error) {
	m := &Manager{
		id:      id,
		localId: localId,
		tcp:     tcp,
		quic:    quicT,
		tunnels: make(map[objmodel.ObjectId]*Tunnel),
		relays:  make(map[string]*proxyRelay),
	}

	if udpAddr != "" {
		l, err := listenUDP(udpAddr)
		if err != nil {
			return nil, err
		}
		m.udp = l
		m.udpClose = make(chan struct{})
		go m.serveUDP()
	}

	return m, nil
}

// serveUDP accepts direct-UDP tunnel attempts, running the responder side
// of the handshake for each new source address.
func (m *Manager) serveUDP() {
	_ = m.udp.serve(func(box *wire.PackageBox, c *addrConn) {
		if box.Cmd != wire.CmdSynTunnel {
			c.Close()
			return
		}
		var syn wire.SynTunnel
		if err := wire.UnmarshalPackage(box.Ciphertext, &syn); err != nil {
			c.Close()
			return
		}
		go m.acceptDirectUDP(&syn, c)
	})
}

func (m *Manager) acceptDirectUDP(syn *wire.SynTunnel, c *addrConn) {
	ctx := context.Background()
	peerId, sendKey, recvKey, err := acceptHandshake(ctx, m.id, m.localId, syn, m.admissionParams(), c)
	if err != nil {
		c.Close()
		return
	}
	t := newTunnel(m.localId, peerId, PathDirectUDP, c, sendKey, recvKey, nil)
	installed := m.promote(t)
	m.notifyReverseConnect(peerId, installed)
}

// Get returns the current Active tunnel to peerId, if any.
func (m *Manager) Get(peerId objmodel.ObjectId) (*Tunnel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tunnels[peerId]
	if !ok || t.State() != StateActive {
		return nil, false
	}
	return t, true
}

// promote installs t as the tunnel for its peer if no Active tunnel is
// already installed, closing t if it lost the race; it also starts t's
// receive loop. Returns the tunnel that ended up installed.
func (m *Manager) promote(t *Tunnel) *Tunnel {
	m.mu.Lock()
	if existing, ok := m.tunnels[t.PeerId()]; ok && existing.State() == StateActive {
		m.mu.Unlock()
		t.Close()
		return existing
	}
	m.tunnels[t.PeerId()] = t
	m.mu.Unlock()
	t.SetControlHandler(func(cmd wire.CmdCode, payload []byte) { m.handleControl(t, cmd, payload) })
	go t.run(context.Background())
	return t
}

// Connect races every establishment strategy hint affords and returns
// whichever Tunnel completes first. Strategies that don't apply (no TCP
// endpoint, no SN relay) are skipped rather than attempted.
func (m *Manager) Connect(ctx context.Context, peerId objmodel.ObjectId, hint PeerHint) (*Tunnel, error) {
	if existing, ok := m.Get(peerId); ok {
		return existing, nil
	}

	type attempt struct {
		t   *Tunnel
		err error
	}
	results := make(chan attempt, len(hint.Endpoints)+2)
	attempts := 0

	for _, ep := range hint.Endpoints {
		ep := ep
		switch ep.Network {
		case "udp":
			attempts++
			go func() {
				t, err := m.dialDirectUDP(ctx, peerId, hint.NoiseKey, ep)
				results <- attempt{t, err}
			}()
		case "tcp":
			attempts++
			go func() {
				t, err := m.dialTCP(ctx, peerId, hint.NoiseKey, ep)
				results <- attempt{t, err}
			}()
		case "quic":
			if m.quic == nil {
				continue
			}
			attempts++
			go func() {
				t, err := m.dialQUIC(ctx, peerId, hint.NoiseKey, ep)
				results <- attempt{t, err}
			}()
		}
	}

	if hint.SNTunnel != nil {
		attempts++
		go func() {
			t, err := m.dialViaSN(ctx, peerId, hint.NoiseKey, hint.SNTunnel)
			results <- attempt{t, err}
		}()
	}

	if hint.ProxyTunnel != nil {
		attempts++
		go func() {
			t, err := m.dialViaProxy(ctx, peerId, hint.NoiseKey, hint.ProxyTunnel)
			results <- attempt{t, err}
		}()
	}

	if attempts == 0 {
		return nil, fmt.Errorf("tunnel: no establishment strategy available for %s", peerId)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		a := <-results
		if a.err == nil {
			return m.promote(a.t), nil
		}
		lastErr = a.err
	}
	return nil, fmt.Errorf("tunnel: all establishment strategies failed: %w", lastErr)
}

func (m *Manager) dialDirectUDP(ctx context.Context, peerId objmodel.ObjectId, peerNoiseKey []byte, ep Endpoint) (*Tunnel, error) {
	c, err := dialUDP(ctx, ep.Addr)
	if err != nil {
		return nil, err
	}
	sendKey, recvKey, err := dialHandshake(ctx, m.id, m.localId, peerId, peerNoiseKey, m.localEndpointStrings(), m.admissionParams(), c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return newTunnel(m.localId, peerId, PathDirectUDP, c, sendKey, recvKey, []Endpoint{ep}), nil
}

func (m *Manager) dialTCP(ctx context.Context, peerId objmodel.ObjectId, peerNoiseKey []byte, ep Endpoint) (*Tunnel, error) {
	tlsCfg, err := selfSignedTLSConfig(m.id)
	if err != nil {
		return nil, err
	}
	tlsCfg.InsecureSkipVerify = true
	tc, err := m.tcp.Dial(ctx, ep.Addr, &tls.Config{
		Certificates:       tlsCfg.Certificates,
		InsecureSkipVerify: true,
		NextProtos:         tlsCfg.NextProtos,
		MinVersion:         tlsCfg.MinVersion,
	})
	if err != nil {
		return nil, err
	}
	c := newStreamConn(tc)
	sendKey, recvKey, err := dialHandshake(ctx, m.id, m.localId, peerId, peerNoiseKey, m.localEndpointStrings(), m.admissionParams(), c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return newTunnel(m.localId, peerId, PathTCP, c, sendKey, recvKey, []Endpoint{ep}), nil
}

// dialQUIC races alongside dialDirectUDP/dialTCP/dialViaSN/dialViaProxy
// when hint carries a "quic" endpoint; it mirrors dialTCP exactly except
// for the transport used, since both ride the same self-signed TLS 1.3
// certificate and PackageBox framing over a reassembled byte stream.
func (m *Manager) dialQUIC(ctx context.Context, peerId objmodel.ObjectId, peerNoiseKey []byte, ep Endpoint) (*Tunnel, error) {
	tlsCfg, err := selfSignedTLSConfig(m.id)
	if err != nil {
		return nil, err
	}
	tc, err := m.quic.Dial(ctx, ep.Addr, &tls.Config{
		Certificates:       tlsCfg.Certificates,
		InsecureSkipVerify: true,
		NextProtos:         tlsCfg.NextProtos,
		MinVersion:         tlsCfg.MinVersion,
	})
	if err != nil {
		return nil, err
	}
	c := newStreamConn(tc)
	sendKey, recvKey, err := dialHandshake(ctx, m.id, m.localId, peerId, peerNoiseKey, m.localEndpointStrings(), m.admissionParams(), c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return newTunnel(m.localId, peerId, PathQUIC, c, sendKey, recvKey, []Endpoint{ep}), nil
}

// dialViaSN requests a reverse connect by sending SnCall over an
// already-Active tunnel to an SN that the target peer is also registered
// with; the SN is expected to forward SnCalled to the peer, which then
// dials us back on our own direct-UDP accept path. The caller is
// responsible for waiting on the resulting reverse-dial landing in
// acceptDirectUDP, which this method blocks on via a one-shot registration.
func (m *Manager) dialViaSN(ctx context.Context, peerId objmodel.ObjectId, peerNoiseKey []byte, snTunnel *Tunnel) (*Tunnel, error) {
	waiter := m.registerReverseWaiter(peerId)
	defer m.cancelReverseWaiter(peerId, waiter)

	call := &wire.SnCall{
		FromDeviceId:     m.localId.Bytes(),
		ToDeviceId:       peerId.Bytes(),
		ReverseEndpoints: m.localEndpointStrings(),
	}
	if err := snTunnel.Send(call); err != nil {
		return nil, fmt.Errorf("tunnel: send SnCall: %w", err)
	}

	select {
	case t := <-waiter:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) registerReverseWaiter(peerId objmodel.ObjectId) chan *Tunnel {
	ch := make(chan *Tunnel, 1)
	m.reverseWaiters.Store(peerId, ch)
	return ch
}

func (m *Manager) cancelReverseWaiter(peerId objmodel.ObjectId, ch chan *Tunnel) {
	m.reverseWaiters.Delete(peerId)
}

// notifyReverseConnect is called by acceptDirectUDP once a reverse dial
// lands, so a blocked dialViaSN call can return instead of timing out.
func (m *Manager) notifyReverseConnect(peerId objmodel.ObjectId, t *Tunnel) {
	if v, ok := m.reverseWaiters.Load(peerId); ok {
		select {
		case v.(chan *Tunnel) <- t:
		default:
		}
	}
}

// dialViaProxy asks proxyTunnel's peer to relay a connection to peerId
// (§4.5 "proxy fallback"): it sends SynProxy and waits for AckProxy to
// come back with a relay endpoint, then dials that endpoint as a plain
// UDP peer and runs the normal initiator handshake over it, exactly as
// dialDirectUDP does against a peer's own address.
func (m *Manager) dialViaProxy(ctx context.Context, peerId objmodel.ObjectId, peerNoiseKey []byte, proxyTunnel *Tunnel) (*Tunnel, error) {
	seq := atomic.AddUint32(&m.nextProxySeq, 1)
	waiter := make(chan *wire.AckProxy, 1)
	m.proxyWaiters.Store(seq, waiter)
	defer m.proxyWaiters.Delete(seq)

	syn := &wire.SynProxy{
		FromDeviceId:  m.localId.Bytes(),
		ToDeviceId:    peerId.Bytes(),
		ProxyDeviceId: proxyTunnel.PeerId().Bytes(),
		SeqNo:         seq,
	}
	if err := proxyTunnel.Send(syn); err != nil {
		return nil, fmt.Errorf("tunnel: send SynProxy: %w", err)
	}

	var ack *wire.AckProxy
	select {
	case ack = <-waiter:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if ack.Result != 0 {
		return nil, fmt.Errorf("tunnel: proxy %s refused to relay to %s", proxyTunnel.PeerId(), peerId)
	}

	c, err := dialUDP(ctx, ack.RelayEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tunnel: dial proxy relay %s: %w", ack.RelayEndpoint, err)
	}
	sendKey, recvKey, err := dialHandshake(ctx, m.id, m.localId, peerId, peerNoiseKey, m.localEndpointStrings(), m.admissionParams(), c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return newTunnel(m.localId, peerId, PathProxy, c, sendKey, recvKey, []Endpoint{{Network: "udp", Addr: ack.RelayEndpoint}}), nil
}

// acceptViaProxy is the responder-side counterpart of dialViaProxy: it's
// started when this device, as the target of someone else's proxy dial,
// receives an unsolicited AckProxy inviting it to the relay a proxy
// allocated. It dials the relay, announces itself with a harmless
// PingTunnel probe (a plain UDP dial sends no packet on its own, and the
// relay can't pair two peers until it has seen both addresses), then
// runs the normal responder handshake against whatever SynTunnel the
// relay forwards once the dialing side shows up too.
func (m *Manager) acceptViaProxy(relayEndpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*handshakeTimeout)
	defer cancel()

	c, err := dialUDP(ctx, relayEndpoint)
	if err != nil {
		return
	}
	if err := c.WriteBox(&wire.PackageBox{Version: 1, Cmd: wire.CmdPingTunnel}); err != nil {
		c.Close()
		return
	}

	box, err := c.ReadBox(ctx)
	if err != nil {
		c.Close()
		return
	}
	if box.Cmd != wire.CmdSynTunnel {
		c.Close()
		return
	}
	var syn wire.SynTunnel
	if err := wire.UnmarshalPackage(box.Ciphertext, &syn); err != nil {
		c.Close()
		return
	}

	peerId, sendKey, recvKey, err := acceptHandshake(ctx, m.id, m.localId, &syn, m.admissionParams(), c)
	if err != nil {
		c.Close()
		return
	}
	t := newTunnel(m.localId, peerId, PathProxy, c, sendKey, recvKey, []Endpoint{{Network: "udp", Addr: relayEndpoint}})
	m.promote(t)
}

// handleControl processes a SynProxy/AckProxy control package that
// arrived on an already-Active tunnel, as registered via
// Tunnel.SetControlHandler in promote.
func (m *Manager) handleControl(via *Tunnel, cmd wire.CmdCode, payload []byte) {
	switch cmd {
	case wire.CmdSynProxy:
		m.handleSynProxy(via, payload)
	case wire.CmdAckProxy:
		m.handleAckProxy(payload)
	}
}

// handleSynProxy runs this device's relay side of the proxy fallback
// strategy: a neighbor asked us (ProxyDeviceId == our own id) to relay a
// connection to ToDeviceId, which we can only do if we already hold an
// Active tunnel to it ourselves (§4.5 "proxy fallback" requires the
// relay to be a mutual neighbor of both ends). On success, both ends are
// handed the same relay endpoint: the soliciting side as a direct
// AckProxy reply, the target side as an unsolicited one that doubles as
// its invitation to dial in.
func (m *Manager) handleSynProxy(via *Tunnel, payload []byte) {
	var syn wire.SynProxy
	if err := wire.UnmarshalPackage(payload, &syn); err != nil {
		return
	}
	if !bytes.Equal(syn.ProxyDeviceId, m.localId.Bytes()) {
		return
	}
	toId, err := objmodel.ObjectIdFromBytes(syn.ToDeviceId)
	if err != nil {
		return
	}
	target, ok := m.Get(toId)
	if !ok {
		_ = via.Send(&wire.AckProxy{SeqNo: syn.SeqNo, Result: 1})
		return
	}

	relay, err := newProxyRelay(m.relayBindHost())
	if err != nil {
		_ = via.Send(&wire.AckProxy{SeqNo: syn.SeqNo, Result: 1})
		return
	}
	addr := relay.Addr().String()
	m.relaysMu.Lock()
	m.relays[addr] = relay
	m.relaysMu.Unlock()
	go func() {
		relay.splice(relayIdleTimeout)
		m.relaysMu.Lock()
		delete(m.relays, addr)
		m.relaysMu.Unlock()
	}()

	_ = via.Send(&wire.AckProxy{SeqNo: syn.SeqNo, RelayEndpoint: addr, Result: 0})
	_ = target.Send(&wire.AckProxy{SeqNo: syn.SeqNo, RelayEndpoint: addr, Result: 0})
}

// handleAckProxy either resolves a pending dialViaProxy waiter, or, if no
// waiter is registered for this seq, treats the AckProxy as an
// unsolicited relay invitation and starts acceptViaProxy.
func (m *Manager) handleAckProxy(payload []byte) {
	var ack wire.AckProxy
	if err := wire.UnmarshalPackage(payload, &ack); err != nil {
		return
	}
	if ch, ok := m.proxyWaiters.Load(ack.SeqNo); ok {
		select {
		case ch.(chan *wire.AckProxy) <- &ack:
		default:
		}
		return
	}
	if ack.Result != 0 || ack.RelayEndpoint == "" {
		return
	}
	go m.acceptViaProxy(ack.RelayEndpoint)
}

func (m *Manager) localEndpointStrings() []string {
	if m.udp == nil {
		return nil
	}
	return []string{m.udp.Addr().String()}
}

// relayBindHost returns the host a proxy relay this device allocates
// should bind on: the same host its own direct-UDP listener uses, since
// that's the only address this device is known to be reachable at.
func (m *Manager) relayBindHost() string {
	if m.udp == nil {
		return "0.0.0.0"
	}
	host, _, err := net.SplitHostPort(m.udp.Addr().String())
	if err != nil {
		return "0.0.0.0"
	}
	return host
}

// Close tears down every tunnel, every relay this device allocated for
// someone else's proxy establishment, and stops the accept loop.
func (m *Manager) Close() error {
	m.mu.Lock()
	tunnels := make([]*Tunnel, 0, len(m.tunnels))
	for _, t := range m.tunnels {
		tunnels = append(tunnels, t)
	}
	m.tunnels = make(map[objmodel.ObjectId]*Tunnel)
	m.mu.Unlock()

	for _, t := range tunnels {
		t.Close()
	}

	m.relaysMu.Lock()
	relays := make([]*proxyRelay, 0, len(m.relays))
	for _, r := range m.relays {
		relays = append(relays, r)
	}
	m.relaysMu.Unlock()
	for _, r := range relays {
		r.Close()
	}

	if m.udp != nil {
		return m.udp.Close()
	}
	return nil
}
