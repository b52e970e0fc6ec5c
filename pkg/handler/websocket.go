package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/buckyos/cyfs-ndn-core/pkg/codec/cborcanon"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// Out-of-process handler RPC reuses the §4.5 PackageBox envelope
// (magic/version/seq/cmd/length header, CBOR-canon body) but outside any
// tunnel's AEAD session — the payload rides unencrypted inside
// Ciphertext since the websocket connection itself is expected to
// already be wrapped in TLS by its caller.
const (
	cmdHandlerRequest  wire.CmdCode = 0xF001
	cmdHandlerResponse wire.CmdCode = 0xF002
)

// wireResult mirrors Result but with Err flattened to a string so it
// round-trips through CBOR.
type wireResult struct {
	Verdict  Verdict   `cbor:"verdict"`
	Response *Response `cbor:"response,omitempty"`
	ErrMsg   string    `cbor:"err,omitempty"`
}

type wsEnvelope struct {
	Id       string      `cbor:"id"`
	Category Category    `cbor:"category"`
	Request  *Request    `cbor:"request,omitempty"`
	Result   *wireResult `cbor:"result,omitempty"`
}

// WebsocketHandler is an out-of-process Handler reached over a
// gorilla/websocket connection: each Handle call sends one framed
// request and blocks on a per-call response channel keyed by a
// google/uuid correlation id, so concurrent calls on the same
// connection don't cross-deliver.
type WebsocketHandler struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	seq     uint16

	mu      sync.Mutex
	pending map[string]chan *Result
	closed  chan struct{}
}

// NewWebsocketHandler wraps an already-established websocket connection
// and starts its response-reading loop.
func NewWebsocketHandler(conn *websocket.Conn) *WebsocketHandler {
	h := &WebsocketHandler{
		conn:    conn,
		pending: make(map[string]chan *Result),
		closed:  make(chan struct{}),
	}
	go h.readLoop()
	return h
}

func (h *WebsocketHandler) readLoop() {
	defer close(h.closed)
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			h.failAll(fmt.Errorf("handler: websocket closed: %w", err))
			return
		}
		box, err := wire.DecodeBox(data)
		if err != nil || box.Cmd != cmdHandlerResponse {
			continue
		}
		var env wsEnvelope
		if err := cborcanon.Unmarshal(box.Ciphertext, &env); err != nil {
			continue
		}
		h.deliver(env.Id, env.Result)
	}
}

func (h *WebsocketHandler) deliver(id string, wr *wireResult) {
	h.mu.Lock()
	ch, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	res := &Result{Verdict: VerdictDefault}
	if wr != nil {
		res.Verdict = wr.Verdict
		res.Response = wr.Response
		if wr.ErrMsg != "" {
			res.Err = errors.New(wr.ErrMsg)
		}
	}
	ch <- res
}

func (h *WebsocketHandler) failAll(err error) {
	h.mu.Lock()
	pending := h.pending
	h.pending = make(map[string]chan *Result)
	h.mu.Unlock()

	for _, ch := range pending {
		ch <- &Result{Verdict: VerdictReject, Err: err}
	}
}

// Handle sends req to the remote handler and blocks for its verdict.
func (h *WebsocketHandler) Handle(ctx context.Context, req *Request) (*Result, error) {
	id := uuid.NewString()
	respCh := make(chan *Result, 1)

	h.mu.Lock()
	h.pending[id] = respCh
	h.mu.Unlock()

	env := wsEnvelope{Id: id, Category: req.Category, Request: req}
	payload, err := cborcanon.Marshal(env)
	if err != nil {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
		return nil, fmt.Errorf("handler: marshal request: %w", err)
	}

	h.writeMu.Lock()
	h.seq++
	box := &wire.PackageBox{Version: 1, Seq: h.seq, Cmd: cmdHandlerRequest, Ciphertext: payload}
	frame, err := box.Encode()
	if err == nil {
		err = h.conn.WriteMessage(websocket.BinaryMessage, frame)
	}
	h.writeMu.Unlock()
	if err != nil {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
		return nil, fmt.Errorf("handler: send request: %w", err)
	}

	select {
	case res := <-respCh:
		return res, nil
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
		return nil, ctx.Err()
	case <-h.closed:
		return nil, fmt.Errorf("handler: websocket closed while awaiting response")
	}
}

// Close terminates the underlying websocket connection.
func (h *WebsocketHandler) Close() error {
	return h.conn.Close()
}

// Reply is called on the remote side: it frames res as the response to
// the request identified by id and writes it back over conn.
func Reply(conn *websocket.Conn, id string, res *Result) error {
	wr := &wireResult{Verdict: res.Verdict, Response: res.Response}
	if res.Err != nil {
		wr.ErrMsg = res.Err.Error()
	}
	env := wsEnvelope{Id: id, Result: wr}
	payload, err := cborcanon.Marshal(env)
	if err != nil {
		return fmt.Errorf("handler: marshal response: %w", err)
	}
	box := &wire.PackageBox{Version: 1, Cmd: cmdHandlerResponse, Ciphertext: payload}
	frame, err := box.Encode()
	if err != nil {
		return fmt.Errorf("handler: encode response: %w", err)
	}
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}
