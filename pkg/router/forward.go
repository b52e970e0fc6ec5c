package router

import (
	"context"
	"fmt"

	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/stream"
	"github.com/buckyos/cyfs-ndn-core/pkg/codec/cborcanon"
	"github.com/buckyos/cyfs-ndn-core/pkg/handler"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// Out-of-zone forwarding reuses the §4.5 PackageBox envelope over a
// reliable bdt.Stream rather than a raw socket, so request/response
// framing survives the stream's own segment/ack machinery unchanged.
const (
	cmdRouterRequest  wire.CmdCode = 0xF101
	cmdRouterResponse wire.CmdCode = 0xF102
)

type rpcEnvelope struct {
	Request  *handler.Request  `cbor:"request,omitempty"`
	Response *handler.Response `cbor:"response,omitempty"`
	ErrMsg   string            `cbor:"err,omitempty"`
}

// StreamForwarder forwards requests to one remote device over an
// already-established bdt.Stream, one request in flight at a time (the
// caller is expected to serialize calls, or to construct one
// StreamForwarder per concurrent caller).
type StreamForwarder struct {
	s      *stream.Stream
	seq    uint16
	parser *wire.Parser
	buf    []byte
}

// NewStreamForwarder wraps an established stream as a Forwarder.
func NewStreamForwarder(s *stream.Stream) *StreamForwarder {
	return &StreamForwarder{s: s, parser: wire.NewParser(), buf: make([]byte, 4096)}
}

// Forward sends req as a single framed RPC call and blocks for its reply.
func (f *StreamForwarder) Forward(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	payload, err := cborcanon.Marshal(rpcEnvelope{Request: req})
	if err != nil {
		return nil, fmt.Errorf("router: marshal forward request: %w", err)
	}

	f.seq++
	box := &wire.PackageBox{Version: 1, Seq: f.seq, Cmd: cmdRouterRequest, Ciphertext: payload}
	frame, err := box.Encode()
	if err != nil {
		return nil, fmt.Errorf("router: encode forward request: %w", err)
	}
	if _, err := f.s.Write(ctx, frame); err != nil {
		return nil, fmt.Errorf("router: send forward request: %w", err)
	}

	for {
		boxes, err := f.readBoxes(ctx)
		if err != nil {
			return nil, err
		}
		for _, b := range boxes {
			if b.Cmd != cmdRouterResponse {
				continue
			}
			var env rpcEnvelope
			if err := cborcanon.Unmarshal(b.Ciphertext, &env); err != nil {
				return nil, fmt.Errorf("router: decode forward response: %w", err)
			}
			if env.ErrMsg != "" {
				return nil, fmt.Errorf("router: remote handler: %s", env.ErrMsg)
			}
			return env.Response, nil
		}
	}
}

func (f *StreamForwarder) readBoxes(ctx context.Context) ([]*wire.PackageBox, error) {
	n, err := f.s.Read(ctx, f.buf)
	if err != nil {
		return nil, fmt.Errorf("router: read forward stream: %w", err)
	}
	return f.parser.Feed(f.buf[:n])
}

// ServeStream answers PackageBox-framed forward requests on s: each one
// has its source resolved by r.Sources, runs through the PreRouter chain
// and, unless that chain settles it, goes to r.Local.Process (no target
// resolution and no PostRouter chain — the remote device has already
// decided this device is the target). It returns once the stream closes.
func ServeStream(ctx context.Context, s *stream.Stream, r *Router) error {
	parser := wire.NewParser()
	buf := make([]byte, 4096)
	for {
		n, err := s.Read(ctx, buf)
		if err != nil {
			return err
		}
		boxes, err := parser.Feed(buf[:n])
		if err != nil {
			return fmt.Errorf("router: malformed forward frame: %w", err)
		}
		for _, b := range boxes {
			if b.Cmd != cmdRouterRequest {
				continue
			}
			if err := serveOne(ctx, s, r, b); err != nil {
				return err
			}
		}
	}
}

func serveOne(ctx context.Context, s *stream.Stream, r *Router, box *wire.PackageBox) error {
	var env rpcEnvelope
	if err := cborcanon.Unmarshal(box.Ciphertext, &env); err != nil {
		return fmt.Errorf("router: decode forward request: %w", err)
	}

	src, srcErr := r.Sources.ResolveSource(ctx, env.Request)
	var resp *handler.Response
	var procErr error
	if srcErr != nil {
		procErr = srcErr
	} else if doneResp, done, doneErr := r.runChain(ctx, handler.PreRouter, env.Request); done {
		resp, procErr = doneResp, doneErr
	} else {
		resp, procErr = r.Local.Process(ctx, src, env.Request)
	}

	out := rpcEnvelope{Response: resp}
	if procErr != nil {
		out.ErrMsg = procErr.Error()
	}
	payload, err := cborcanon.Marshal(out)
	if err != nil {
		return fmt.Errorf("router: marshal forward response: %w", err)
	}
	respBox := &wire.PackageBox{Version: 1, Seq: box.Seq, Cmd: cmdRouterResponse, Ciphertext: payload}
	frame, err := respBox.Encode()
	if err != nil {
		return fmt.Errorf("router: encode forward response: %w", err)
	}
	_, err = s.Write(ctx, frame)
	return err
}
