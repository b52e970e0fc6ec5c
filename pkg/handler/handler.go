// Package handler implements the router handler chain of §4.8: ordered
// pre/post hooks a request passes through around routing, forwarding,
// and crypto, each able to short-circuit the request with its own
// verdict.
package handler

import (
	"context"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Chain identifies which of the six hook points a Handler is registered
// on (§4.8): three operation phases (Router, Forward, Crypto), each with
// a Pre and Post variant.
type Chain string

const (
	PreRouter   Chain = "pre_router"
	PostRouter  Chain = "post_router"
	PreForward  Chain = "pre_forward"
	PostForward Chain = "post_forward"
	PreCrypto   Chain = "pre_crypto"
	PostCrypto  Chain = "post_crypto"
)

// Category identifies which kind of NON/NDN operation a Handler applies
// to, matching the categories cyfs-lib's RouterHandlerCategory enumerates.
type Category string

const (
	CategoryPutObject    Category = "put_object"
	CategoryGetObject    Category = "get_object"
	CategoryPostObject   Category = "post_object"
	CategorySelectObject Category = "select_object"
	CategoryDeleteObject Category = "delete_object"
	CategoryGetData      Category = "get_data"
	CategoryPutData      Category = "put_data"
	CategoryDeleteData   Category = "delete_data"
	CategorySignObject   Category = "sign_object"
	CategoryVerifyObject Category = "verify_object"
	CategoryEncryptData  Category = "encrypt_data"
	CategoryDecryptData  Category = "decrypt_data"
	CategoryAcl          Category = "acl"
	CategoryInterest     Category = "interest"
)

// Verdict is a Handler's decision about a request: Pass moves to the
// next handler in the chain, Default falls through to whatever the
// chain's built-in default action is, Response supplies the final
// response outright, Reject fails the request with an error, Drop
// silently discards it (no response sent at all).
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictDefault
	VerdictResponse
	VerdictReject
	VerdictDrop
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictDefault:
		return "default"
	case VerdictResponse:
		return "response"
	case VerdictReject:
		return "reject"
	case VerdictDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Request is the operation a Handler inspects or rewrites. PriorResponse
// is nil throughout the Pre* chains; the router fills it in before
// running a Post* chain so post-handlers can inspect (and, via
// VerdictResponse, override) the response the request actually produced.
type Request struct {
	Category      Category
	SourceId      objmodel.ObjectId
	DecId         objmodel.ObjectId
	Headers       map[string]string
	Body          []byte
	PriorResponse *Response
}

// Response is what a handler (or the eventual executor) produces for a
// Request.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Result is a Handler's verdict plus, for VerdictResponse, the response
// to short-circuit with and, for VerdictReject, the error to report.
type Result struct {
	Verdict  Verdict
	Response *Response
	Err      error
}

// Pass is the common case: let the next handler (or the chain's
// default action) see the request unmodified.
func Pass() *Result { return &Result{Verdict: VerdictPass} }

// WithResponse short-circuits the chain with resp as the final answer.
func WithResponse(resp *Response) *Result {
	return &Result{Verdict: VerdictResponse, Response: resp}
}

// Reject short-circuits the chain, failing the request with err.
func Reject(err error) *Result {
	return &Result{Verdict: VerdictReject, Err: err}
}

// Drop silently discards the request: no response, no error.
func Drop() *Result { return &Result{Verdict: VerdictDrop} }

// Handler is one hook in a chain, identified by (Chain, Category, Id,
// DecId) when registered. Handle may mutate req in place (e.g. to
// rewrite headers before the next handler sees it) before returning its
// Result.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Result, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (*Result, error)

func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}
