// Package stream implements a reliable ordered byte stream multiplexed
// over a BDT tunnel (§4.5, §7): send side is paced by a pluggable
// cc.Controller, receive side reassembles out-of-order SessionData
// segments via recvqueue.Queue.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/cc"
	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/pacer"
	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/stream/recvqueue"
	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/tunnel"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// ErrConnectionReset is returned from pending reads/writes once the
// underlying tunnel dies unexpectedly.
var ErrConnectionReset = errors.New("stream: connection reset")

// ErrAborted is returned from pending reads/writes once Close is called
// explicitly.
var ErrAborted = errors.New("stream: aborted")

// Config tunes one Stream's buffers and pacing.
type Config struct {
	MSS        int
	RecvWindow int
	AckInterval time.Duration
}

// DefaultConfig mirrors typical BDT defaults: 1200-byte MSS (leaves room
// under common path MTUs once Noise/ChaCha20-Poly1305 overhead is added),
// a 64KiB receive window.
func DefaultConfig() Config {
	return Config{MSS: 1200, RecvWindow: 64 * 1024, AckInterval: 20 * time.Millisecond}
}

// Stream is one reliable ordered byte stream running over an Active
// Tunnel, identified by a session id unique within that tunnel.
type Stream struct {
	t         *tunnel.Tunnel
	sessionId uint32
	cfg       Config

	sendMu   sync.Mutex
	sendPos  uint64
	inFlight uint64 // bytes sent but not yet acked
	sendFin  bool
	ctrl     cc.Controller
	pace     *pacer.Pacer
	sender   *pacer.DeferredSender
	sentAt   map[uint64]time.Time // sendPos at send time -> send time, for RTT

	recvMu     sync.Mutex
	recv       *recvqueue.Queue
	recvNotify chan struct{} // closed and replaced on every arrival, for Read to wait on

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New wraps t with a reliable stream using sessionId, registering the
// handlers that feed received data and acks back into this Stream.
func New(t *tunnel.Tunnel, sessionId uint32, cfg Config, ctrl cc.Controller) *Stream {
	s := &Stream{
		t:         t,
		sessionId: sessionId,
		cfg:       cfg,
		ctrl:      ctrl,
		pace:      pacer.NewPacer(cfg.MSS, 0, time.Now()),
		sender:    pacer.NewDeferredSender(),
		sentAt:    make(map[uint64]time.Time),
		recv:       recvqueue.NewQueue(cfg.RecvWindow),
		recvNotify: make(chan struct{}),
		closed:     make(chan struct{}),
	}

	t.RegisterStreamHandler(sessionId, s.onSessionData)
	t.RegisterAckHandler(sessionId, s.onAck)
	go s.watchTunnel()
	return s
}

func (s *Stream) watchTunnel() {
	select {
	case <-s.t.Closed():
		s.fail(ErrConnectionReset)
	case <-s.closed:
	}
}

// Write sends p reliably, splitting it into MSS-sized segments and
// pacing each one through the configured cc.Controller/Pacer.
func (s *Stream) Write(ctx context.Context, p []byte) (int, error) {
	return s.write(ctx, p, false)
}

// CloseWrite sends a final empty-or-partial segment with the FIN flag
// set, half-closing the local send direction.
func (s *Stream) CloseWrite(ctx context.Context, p []byte) (int, error) {
	return s.write(ctx, p, true)
}

func (s *Stream) write(ctx context.Context, p []byte, fin bool) (int, error) {
	written := 0
	for written < len(p) || (fin && written == 0 && len(p) == 0) {
		select {
		case <-s.closed:
			return written, s.closeErr
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		chunk := p[written:]
		isFinalChunk := true
		if len(chunk) > s.cfg.MSS {
			chunk = chunk[:s.cfg.MSS]
			isFinalChunk = false
		}

		if err := s.waitForWindow(ctx, len(chunk)); err != nil {
			return written, err
		}

		now := time.Now()
		pos := s.claimSendPos(len(chunk))
		segFin := fin && isFinalChunk

		until := s.pace.Send(len(chunk), now)
		send := func() {
			s.sendSegment(pos, chunk, segFin, now)
		}
		if until == nil {
			send()
		} else {
			s.sender.Enqueue(len(chunk), *until, send)
		}

		written += len(chunk)
		if segFin {
			break
		}
	}
	return written, nil
}

func (s *Stream) waitForWindow(ctx context.Context, size int) error {
	for {
		s.sendMu.Lock()
		cwnd := s.ctrl.Cwnd()
		fits := s.inFlight+uint64(size) <= cwnd
		s.sendMu.Unlock()
		if fits {
			return nil
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-s.closed:
			return s.closeErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Stream) claimSendPos(size int) uint64 {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	pos := s.sendPos
	s.sendPos += uint64(size)
	s.inFlight += uint64(size)
	s.sentAt[s.sendPos] = time.Now() // keyed by segment end, matching AckedPos
	return pos
}

func (s *Stream) sendSegment(pos uint64, data []byte, fin bool, now time.Time) {
	s.sendMu.Lock()
	s.ctrl.OnSent(len(data), now)
	s.pace.Update(s.ctrl.Rate())
	s.sendMu.Unlock()

	_ = s.t.Send(&wire.SessionData{
		SessionId: s.sessionId,
		StreamPos: pos,
		Data:      append([]byte(nil), data...),
		Fin:       fin,
	})
}

// onAck feeds acknowledgment of bytes up to ack.AckedPos back into the
// congestion controller and releases send-window capacity.
func (s *Stream) onAck(ack *wire.SessionDataAck) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if ack.AckedPos <= s.sendPos-s.inFlight {
		return
	}

	newlyAcked := ack.AckedPos - (s.sendPos - s.inFlight)
	if newlyAcked > s.inFlight {
		newlyAcked = s.inFlight
	}
	s.inFlight -= newlyAcked

	var rtt time.Duration
	for pos, sentAt := range s.sentAt {
		if pos > ack.AckedPos {
			continue
		}
		if since := time.Since(sentAt); since > rtt {
			rtt = since
		}
		delete(s.sentAt, pos)
	}
	s.ctrl.OnAck(int(newlyAcked), rtt, time.Now())
}

// onSessionData is the tunnel-layer handler feeding received segments
// into the recv queue, acking the new contiguous watermark back.
func (s *Stream) onSessionData(sd *wire.SessionData) {
	s.recvMu.Lock()
	_, _ = s.recv.Push(sd.StreamPos, sd.Data, sd.Fin)
	next := make(chan struct{})
	prev := s.recvNotify
	s.recvNotify = next
	s.recvMu.Unlock()
	close(prev)

	_ = s.t.Send(&wire.SessionDataAck{
		SessionId: s.sessionId,
		AckedPos:  sd.StreamPos + uint64(len(sd.Data)),
	})
}

// Read blocks until at least one byte is available, the stream reaches
// FIN (returns io.EOF once drained), or ctx/Close/tunnel-death interrupts.
func (s *Stream) Read(ctx context.Context, buf []byte) (int, error) {
	for {
		s.recvMu.Lock()
		if s.recv.Len() > 0 {
			n := s.recv.Read(buf)
			s.recvMu.Unlock()
			return n, nil
		}
		if s.recv.Done() {
			s.recvMu.Unlock()
			return 0, io.EOF
		}
		wait := s.recvNotify
		s.recvMu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.closed:
			return 0, s.closeErr
		}
	}
}

// Closed returns a channel closed once the stream is no longer usable.
func (s *Stream) Closed() <-chan struct{} { return s.closed }

func (s *Stream) fail(err error) {
	s.closeOnce.Do(func() {
		s.closeErr = err
		close(s.closed)
	})
}

// Close aborts the stream locally; pending reads/writes resolve ErrAborted.
func (s *Stream) Close() error {
	s.fail(ErrAborted)
	s.t.UnregisterSession(s.sessionId)
	s.sender.Close()
	return nil
}
