package datagram

import (
	"context"
	"testing"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/tunnel"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

type pipeConn struct {
	out chan *wire.PackageBox
	in  chan *wire.PackageBox
}

func newPipePair() (*pipeConn, *pipeConn) {
	ab := make(chan *wire.PackageBox, 64)
	ba := make(chan *wire.PackageBox, 64)
	return &pipeConn{out: ab, in: ba}, &pipeConn{out: ba, in: ab}
}

func (c *pipeConn) WriteBox(box *wire.PackageBox) error {
	c.out <- box
	return nil
}

func (c *pipeConn) ReadBox(ctx context.Context) (*wire.PackageBox, error) {
	select {
	case box := <-c.in:
		return box, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pipeConn) Close() error { return nil }

func newTunnelPair(t *testing.T) (*tunnel.Tunnel, *tunnel.Tunnel) {
	t.Helper()
	a, b := newPipePair()

	var sendKey, recvKey [32]byte
	copy(sendKey[:], []byte("0123456789abcdef0123456789abcdef"))
	copy(recvKey[:], []byte("fedcba9876543210fedcba9876543210"))

	var idA, idB objmodel.ObjectId
	idA[0] = 0xA
	idB[0] = 0xB

	tA := tunnel.NewEstablished(idA, idB, tunnel.PathDirectUDP, a, sendKey, recvKey, nil)
	tB := tunnel.NewEstablished(idB, idA, tunnel.PathDirectUDP, b, recvKey, sendKey, nil)
	return tA, tB
}

func TestChannelSendRecv(t *testing.T) {
	tA, tB := newTunnelPair(t)
	defer tA.Close()
	defer tB.Close()

	cA := New(tA, 9)
	cB := New(tB, 9)
	defer cA.Close()
	defer cB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := cA.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, err := cB.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(msg) != "ping" {
		t.Fatalf("got %q, want ping", msg)
	}
}

func TestChannelRecvUnblocksOnClose(t *testing.T) {
	tA, tB := newTunnelPair(t)
	defer tA.Close()
	defer tB.Close()

	cB := New(tB, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := cB.Recv(ctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cB.Close()

	select {
	case err := <-done:
		if err != ErrAborted {
			t.Fatalf("got %v, want ErrAborted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestChannelRecvUnblocksOnTunnelDeath(t *testing.T) {
	tA, tB := newTunnelPair(t)
	defer tA.Close()

	cB := New(tB, 4)
	defer cB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := cB.Recv(ctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	tB.Close()

	select {
	case err := <-done:
		if err != ErrConnectionReset && err != ErrAborted {
			t.Fatalf("got %v, want ErrConnectionReset or ErrAborted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not unblock after tunnel death")
	}
}
