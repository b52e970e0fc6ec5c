package router

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/buckyos/cyfs-ndn-core/pkg/access"
	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/cc"
	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/stream"
	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/tunnel"
	"github.com/buckyos/cyfs-ndn-core/pkg/handler"
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

func newStreamPair(t *testing.T) (*stream.Stream, *stream.Stream) {
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

	cfg := stream.DefaultConfig()
	sA := stream.New(tA, 1, cfg, cc.NewLossBased(cc.DefaultLossBasedConfig(cfg.MSS)))
	sB := stream.New(tB, 1, cfg, cc.NewLossBased(cc.DefaultLossBasedConfig(cfg.MSS)))
	return sA, sB
}

type fixedSourceResolver struct{ src access.Source }

func (r fixedSourceResolver) ResolveSource(ctx context.Context, req *handler.Request) (access.Source, error) {
	return r.src, nil
}

type echoProcessor struct{}

func (echoProcessor) Process(ctx context.Context, src access.Source, req *handler.Request) (*handler.Response, error) {
	return &handler.Response{Status: 200, Body: append([]byte("echo:"), req.Body...)}, nil
}

func TestStreamForwarderRoundTrip(t *testing.T) {
	clientSide, serverSide := newStreamPair(t)
	defer clientSide.Close()
	defer serverSide.Close()

	serverRouter := New(
		objmodel.ObjectId{0xB},
		fixedSourceResolver{src: access.Source{Device: objmodel.ObjectId{0xA}, Verified: true}},
		nil, echoProcessor{}, nil,
		handler.NewRegistry(), handler.NewRegistry(),
		logrus.StandardLogger(),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- ServeStream(context.Background(), serverSide, serverRouter) }()

	fwd := NewStreamForwarder(clientSide)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := fwd.Forward(ctx, &handler.Request{Category: handler.CategoryGetObject, Body: []byte("hi")})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(resp.Body) != "echo:hi" {
		t.Fatalf("got body %q, want %q", resp.Body, "echo:hi")
	}
	if resp.Status != 200 {
		t.Fatalf("got status %d, want 200", resp.Status)
	}

	clientSide.Close()
	serverSide.Close()
	select {
	case <-serveErr:
	case <-time.After(time.Second):
		t.Fatalf("ServeStream did not exit after stream close")
	}
}
