// Package datagram implements the unordered, unreliable message channel
// multiplexed over a BDT tunnel (§4.5, §7): one wire.Datagram per Send,
// no retransmission, no ordering guarantee between messages.
package datagram

import (
	"context"
	"errors"
	"sync"

	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/tunnel"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// ErrConnectionReset is returned from a pending Recv once the underlying
// tunnel dies unexpectedly.
var ErrConnectionReset = errors.New("datagram: connection reset")

// ErrAborted is returned from a pending Recv once Close is called explicitly.
var ErrAborted = errors.New("datagram: aborted")

// Channel is one unordered, unreliable message channel running over an
// Active Tunnel, identified by a session id unique within that tunnel.
type Channel struct {
	t         *tunnel.Tunnel
	sessionId uint32

	mu      sync.Mutex
	pending [][]byte
	notify  chan struct{} // closed and replaced on every arrival

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New wraps t with a datagram channel using sessionId, registering the
// handler that feeds received messages back into this Channel.
func New(t *tunnel.Tunnel, sessionId uint32) *Channel {
	c := &Channel{
		t:         t,
		sessionId: sessionId,
		notify:    make(chan struct{}),
		closed:    make(chan struct{}),
	}
	t.RegisterDatagramHandler(sessionId, c.onDatagram)
	go c.watchTunnel()
	return c
}

func (c *Channel) watchTunnel() {
	select {
	case <-c.t.Closed():
		c.fail(ErrConnectionReset)
	case <-c.closed:
	}
}

func (c *Channel) onDatagram(dg *wire.Datagram) {
	c.mu.Lock()
	c.pending = append(c.pending, append([]byte(nil), dg.Data...))
	next := make(chan struct{})
	prev := c.notify
	c.notify = next
	c.mu.Unlock()
	close(prev)
}

// Send transmits data as one unreliable, unordered message. A successful
// return means the tunnel accepted the PackageBox for writing, not that
// the peer received it.
func (c *Channel) Send(data []byte) error {
	select {
	case <-c.closed:
		return c.closeErr
	default:
	}
	return c.t.Send(&wire.Datagram{SessionId: c.sessionId, Data: append([]byte(nil), data...)})
}

// Recv blocks until a message is available, or ctx/Close/tunnel-death
// interrupts.
func (c *Channel) Recv(ctx context.Context) ([]byte, error) {
	for {
		c.mu.Lock()
		if len(c.pending) > 0 {
			msg := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()
			return msg, nil
		}
		wait := c.notify
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closed:
			return nil, c.closeErr
		}
	}
}

// Closed returns a channel closed once this Channel is no longer usable.
func (c *Channel) Closed() <-chan struct{} { return c.closed }

func (c *Channel) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
	})
}

// Close stops routing datagrams for this channel's session; pending
// Recv calls resolve ErrAborted.
func (c *Channel) Close() error {
	c.fail(ErrAborted)
	c.t.UnregisterSession(c.sessionId)
	return nil
}
