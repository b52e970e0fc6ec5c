package tunnel

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
	"github.com/buckyos/cyfs-ndn-core/pkg/transport"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// packetConn implements conn over a connected UDP socket: one PackageBox
// per datagram, no stream reassembly needed (§4.5 "direct UDP").
type packetConn struct {
	nc         net.Conn
	remoteAddr string
}

func dialUDP(ctx context.Context, remoteAddr string) (*packetConn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("tunnel: dial UDP %s: %w", remoteAddr, err)
	}
	return &packetConn{nc: nc, remoteAddr: remoteAddr}, nil
}

func (c *packetConn) WriteBox(box *wire.PackageBox) error {
	data, err := box.Encode()
	if err != nil {
		return err
	}
	_, err = c.nc.Write(data)
	return err
}

func (c *packetConn) ReadBox(ctx context.Context) (*wire.PackageBox, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.nc.SetReadDeadline(deadline)
	} else {
		c.nc.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 64*1024)
	n, err := c.nc.Read(buf)
	if err != nil {
		return nil, err
	}
	return wire.DecodeBox(buf[:n])
}

func (c *packetConn) Close() error { return c.nc.Close() }

// udpListener accepts direct-UDP tunnel attempts on a single bound socket,
// demultiplexing by source address since UDP has no per-peer listener: one
// read loop fans incoming datagrams out to per-peer addrConn queues,
// creating a new one (via onNewPeer) the first time an address is seen.
type udpListener struct {
	pc net.PacketConn

	mu    sync.Mutex
	peers map[string]*addrConn
}

func listenUDP(addr string) (*udpListener, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("tunnel: listen UDP %s: %w", addr, err)
	}
	return &udpListener{pc: pc, peers: make(map[string]*addrConn)}, nil
}

func (l *udpListener) Addr() net.Addr { return l.pc.LocalAddr() }
func (l *udpListener) Close() error   { return l.pc.Close() }

// serve reads datagrams until the socket is closed, routing each decoded
// box to its sender's addrConn queue. onNewPeer is called the first time a
// sender address is seen, with the triggering box and the addrConn now
// registered for that address; it's expected to drive the responder
// handshake and register the resulting Tunnel.
func (l *udpListener) serve(onNewPeer func(box *wire.PackageBox, c *addrConn)) error {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := l.pc.ReadFrom(buf)
		if err != nil {
			return err
		}
		box, err := wire.DecodeBox(buf[:n])
		if err != nil {
			continue
		}

		key := addr.String()
		l.mu.Lock()
		c, known := l.peers[key]
		if !known {
			c = &addrConn{pc: l.pc, remote: addr, queue: make(chan *wire.PackageBox, 16), listener: l}
			l.peers[key] = c
		}
		l.mu.Unlock()

		if !known {
			onNewPeer(box, c)
			continue
		}
		select {
		case c.queue <- box:
		default:
		}
	}
}

// forget drops a peer's routing entry once its Tunnel has closed.
func (l *udpListener) forget(addr net.Addr) {
	l.mu.Lock()
	delete(l.peers, addr.String())
	l.mu.Unlock()
}

// addrConn is a conn over a shared listening socket pinned to one remote
// address, used on the accept side of direct UDP and SN-reverse dialing.
type addrConn struct {
	pc       net.PacketConn
	remote   net.Addr
	queue    chan *wire.PackageBox
	listener *udpListener // forgotten on Close so the demux map doesn't leak
}

func (c *addrConn) WriteBox(box *wire.PackageBox) error {
	data, err := box.Encode()
	if err != nil {
		return err
	}
	_, err = c.pc.WriteTo(data, c.remote)
	return err
}

func (c *addrConn) ReadBox(ctx context.Context) (*wire.PackageBox, error) {
	if c.queue == nil {
		return nil, fmt.Errorf("tunnel: addrConn has no demultiplexed queue")
	}
	select {
	case box, ok := <-c.queue:
		if !ok {
			return nil, fmt.Errorf("tunnel: addrConn closed")
		}
		return box, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close forgets this peer's routing entry; the shared listening socket
// itself outlives any one peer and is not closed here.
func (c *addrConn) Close() error {
	if c.listener != nil {
		c.listener.forget(c.remote)
	}
	return nil
}

// maxPendingProxyPackets bounds how many datagrams a proxyRelay buffers
// from the first peer it sees before the second peer registers, so a
// caller that never gets answered can't grow the relay's memory usage.
const maxPendingProxyPackets = 16

// relayPacket is one datagram a proxyRelay has decided to forward, and
// the address it should go to.
type relayPacket struct {
	dest    net.Addr
	payload []byte
}

// proxyRelay is the "dumb pipe" a SynProxy/AckProxy exchange allocates
// for the proxy establishment strategy (§4.5 path (d)): it blindly
// forwards raw datagrams between the first two distinct source addresses
// it observes, never parsing PackageBox framing itself. The two relayed
// peers handshake and encrypt exactly as they would over a direct UDP
// path; the relay only ever sees ciphertext and the plaintext
// SynTunnel/AckTunnel handshake legs, both opaque to it.
type proxyRelay struct {
	pc net.PacketConn

	mu      sync.Mutex
	peers   [2]net.Addr
	pending [][]byte // buffered datagrams from peers[0], before peers[1] appears
}

// newProxyRelay binds an ephemeral UDP port on bindHost, the same host
// the caller's own direct-UDP listener is bound to — binding ":0"
// instead would report a wildcard address in Addr(), which the two
// relayed peers can't actually dial.
func newProxyRelay(bindHost string) (*proxyRelay, error) {
	pc, err := net.ListenPacket("udp", net.JoinHostPort(bindHost, "0"))
	if err != nil {
		return nil, fmt.Errorf("tunnel: allocate proxy relay: %w", err)
	}
	return &proxyRelay{pc: pc}, nil
}

func (r *proxyRelay) Addr() net.Addr { return r.pc.LocalAddr() }
func (r *proxyRelay) Close() error   { return r.pc.Close() }

// splice reads datagrams until it has seen exactly two distinct source
// addresses, buffering anything from the first until the second shows up,
// then forwards every further datagram to whichever of the two it didn't
// arrive from. It returns once the socket is closed or no datagram has
// arrived for idleTimeout, whether or not the pairing completed.
func (r *proxyRelay) splice(idleTimeout time.Duration) {
	defer r.Close()
	buf := make([]byte, 64*1024)
	for {
		r.pc.SetReadDeadline(time.Now().Add(idleTimeout))
		n, addr, err := r.pc.ReadFrom(buf)
		if err != nil {
			return
		}
		payload := append([]byte(nil), buf[:n]...)

		r.mu.Lock()
		out := r.register(addr, payload)
		r.mu.Unlock()

		for _, pkt := range out {
			if _, err := r.pc.WriteTo(pkt.payload, pkt.dest); err != nil {
				return
			}
		}
	}
}

// register records addr as a relay peer if it's new, returning every
// datagram (and its destination) that can now be forwarded as a result.
func (r *proxyRelay) register(addr net.Addr, payload []byte) []relayPacket {
	key := addr.String()
	switch {
	case r.peers[0] == nil:
		r.peers[0] = addr
		r.pending = append(r.pending, payload)
		return nil
	case r.peers[0].String() == key:
		if r.peers[1] == nil {
			r.pending = append(r.pending, payload)
			if len(r.pending) > maxPendingProxyPackets {
				r.pending = r.pending[1:]
			}
			return nil
		}
		return []relayPacket{{dest: r.peers[1], payload: payload}}
	case r.peers[1] == nil:
		r.peers[1] = addr
		out := make([]relayPacket, 0, len(r.pending)+1)
		for _, p := range r.pending {
			out = append(out, relayPacket{dest: addr, payload: p})
		}
		r.pending = nil
		out = append(out, relayPacket{dest: r.peers[0], payload: payload})
		return out
	case r.peers[1].String() == key:
		return []relayPacket{{dest: r.peers[0], payload: payload}}
	default:
		// a third address showed up; this relay is scoped to one pair.
		return nil
	}
}

// streamConn implements conn over a transport.Conn (TCP or QUIC), using
// wire.Parser to reassemble PackageBox records out of an arbitrarily
// chunked byte stream (§4.5, §6).
type streamConn struct {
	tc      transport.Conn
	parser  *wire.Parser
	buf     []byte
	pending []*wire.PackageBox
}

func newStreamConn(tc transport.Conn) *streamConn {
	return &streamConn{tc: tc, parser: wire.NewParser(), buf: make([]byte, 64*1024)}
}

func (c *streamConn) WriteBox(box *wire.PackageBox) error {
	data, err := box.Encode()
	if err != nil {
		return err
	}
	_, err = c.tc.Write(data)
	return err
}

func (c *streamConn) ReadBox(ctx context.Context) (*wire.PackageBox, error) {
	if len(c.pending) > 0 {
		box := c.pending[0]
		c.pending = c.pending[1:]
		return box, nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.tc.SetReadDeadline(deadline)
	} else {
		c.tc.SetReadDeadline(time.Time{})
	}
	for {
		n, err := c.tc.Read(c.buf)
		if err != nil {
			return nil, err
		}
		boxes, err := c.parser.Feed(c.buf[:n])
		if err != nil {
			return nil, err
		}
		if len(boxes) > 0 {
			c.pending = boxes[1:]
			return boxes[0], nil
		}
	}
}

func (c *streamConn) Close() error { return c.tc.Close() }

// selfSignedTLSConfig builds a TLS config whose certificate is bound to
// id's Ed25519 signing key, turning a throwaway test certificate
// generator into a real per-device certificate. Peer authentication
// happens at the Noise IK / TunnelSyn-TunnelAck layer carried inside,
// not via the TLS certificate chain, hence InsecureSkipVerify.
func selfSignedTLSConfig(id *identity.Identity) (*tls.Config, error) {
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"cyfs-ndn-core"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, id.SigningPublicKey, id.SigningPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("tunnel: create self-signed certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{certDER},
			PrivateKey:  id.SigningPrivateKey,
		}},
		InsecureSkipVerify: true,
		NextProtos:         []string{"cyfs-ndn/1"},
		MinVersion:         tls.VersionTLS13,
	}, nil
}
