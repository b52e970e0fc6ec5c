package sn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/constants"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// registration is one device's current rendezvous entry: the address the
// server actually observed its last ping arrive from (its NAT-mapped
// endpoint) plus the endpoints it claims to listen on itself.
type registration struct {
	endpoints []string
	observed  string
	expires   time.Time
}

// Server is the SN (rendezvous server) responder side: it answers
// SnPing keepalives with each device's observed endpoint and relays
// SnCall as SnCalled to the target, the two message flows the client
// side (PingClient, Manager.dialViaSN) depend on (§4.5 "SN client").
// It never establishes a Noise tunnel itself — SN traffic is
// unauthenticated, low-stakes rendezvous signalling, framed the same
// way handler.WebsocketHandler reuses PackageBox for plaintext transport.
type Server struct {
	localId objmodel.ObjectId
	conn    net.PacketConn

	registrationTTL time.Duration

	mu    sync.Mutex
	peers map[objmodel.ObjectId]*registration
}

// NewServer opens a UDP socket on addr and returns an unstarted Server.
func NewServer(localId objmodel.ObjectId, addr string) (*Server, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("sn: listen %s: %w", addr, err)
	}
	return &Server{
		localId:         localId,
		conn:            conn,
		registrationTTL: 3 * constants.SNPingInterval,
		peers:           make(map[objmodel.ObjectId]*registration),
	}, nil
}

// Addr returns the server's bound local address.
func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }

// Serve reads SN datagrams until ctx is cancelled or the socket errs.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("sn: read: %w", err)
		}
		box, err := wire.DecodeBox(buf[:n])
		if err != nil {
			continue
		}
		s.handle(box, addr)
	}
}

func (s *Server) handle(box *wire.PackageBox, from net.Addr) {
	switch box.Cmd {
	case wire.CmdSnPing:
		s.handlePing(box, from)
	case wire.CmdSnCall:
		s.handleCall(box)
	default:
	}
}

func (s *Server) handlePing(box *wire.PackageBox, from net.Addr) {
	var ping wire.SnPing
	if err := wire.UnmarshalPackage(box.Ciphertext, &ping); err != nil {
		return
	}
	id, err := objmodel.ObjectIdFromBytes(ping.DeviceId)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.peers[id] = &registration{
		endpoints: ping.Endpoints,
		observed:  from.String(),
		expires:   time.Now().Add(s.registrationTTL),
	}
	s.mu.Unlock()

	s.reply(from, &wire.SnPingResp{SeqNo: ping.SeqNo, PeerEndpoint: from.String()})
}

func (s *Server) handleCall(box *wire.PackageBox) {
	var call wire.SnCall
	if err := wire.UnmarshalPackage(box.Ciphertext, &call); err != nil {
		return
	}
	toId, err := objmodel.ObjectIdFromBytes(call.ToDeviceId)
	if err != nil {
		return
	}

	s.mu.Lock()
	target, ok := s.peers[toId]
	s.mu.Unlock()
	if !ok || time.Now().After(target.expires) {
		return
	}

	addr, err := net.ResolveUDPAddr("udp", target.observed)
	if err != nil {
		return
	}
	s.reply(addr, &wire.SnCalled{
		FromDeviceId:    call.FromDeviceId,
		SeqNo:           call.SeqNo,
		CallerEndpoints: call.ReverseEndpoints,
	})
}

func (s *Server) reply(to net.Addr, p wire.Package) {
	ciphertext, err := wire.MarshalPackage(p)
	if err != nil {
		return
	}
	box := &wire.PackageBox{Version: 1, Cmd: p.CmdCode(), Ciphertext: ciphertext}
	data, err := box.Encode()
	if err != nil {
		return
	}
	_, _ = s.conn.WriteTo(data, to)
}

// RegistrationCount returns the number of devices currently registered,
// used by the daemon's diagnostics endpoint.
func (s *Server) RegistrationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Close shuts down the server's socket.
func (s *Server) Close() error {
	return s.conn.Close()
}
