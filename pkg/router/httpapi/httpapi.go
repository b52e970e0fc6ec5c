// Package httpapi exposes the local HTTP control surface of §6: the NON
// object CRUD endpoints, the crypto sign/verify endpoints, and handler
// registration, all funneled through a pkg/router.Router so the same
// pre/post handler chain and access checks apply regardless of whether
// a caller reaches the stack over HTTP or a direct library call.
package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/buckyos/cyfs-ndn-core/pkg/handler"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/router"
)

// Common header names, carried verbatim per §6.
const (
	HeaderDecId         = "cyfs-dec-id"
	HeaderApiEdition    = "cyfs-api-edition"
	HeaderFlags         = "cyfs-flags"
	HeaderTarget        = "cyfs-target"
	HeaderRemoteDevice  = "cyfs-remote-device"
	HeaderReqPath       = "cyfs-req-path"
	HeaderSignType      = "cyfs-sign-type"
	HeaderSignFlags     = "cyfs-sign-flags"
	HeaderVerifyType    = "cyfs-verify-type"
	HeaderSignObjId     = "cyfs-sign-obj-id"
	HeaderSignObj       = "cyfs-sign-obj"
	HeaderVerifySigns   = "cyfs-verify-signs"
)

var passedThroughHeaders = []string{
	HeaderDecId, HeaderApiEdition, HeaderFlags, HeaderTarget, HeaderRemoteDevice,
	HeaderReqPath, HeaderSignType, HeaderSignFlags, HeaderVerifyType,
	HeaderSignObjId, HeaderSignObj, HeaderVerifySigns,
}

// Server adapts a router.Router and a handler.Registry (used for the
// dynamic /router/handler registration endpoint) to an http.Handler.
type Server struct {
	Router   *router.Router
	Handlers *handler.Registry
	Log      *logrus.Logger
}

// NewServer builds a Server. log may be nil to use logrus's standard
// logger.
func NewServer(r *router.Router, handlers *handler.Registry, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{Router: r, Handlers: handlers, Log: log}
}

// Routes builds the chi router exposing exactly the §6 endpoint set.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Put("/non/object/{id}", s.handleObjectOp(handler.CategoryPutObject))
	r.Get("/non/object/{id}", s.handleObjectOp(handler.CategoryGetObject))
	r.Post("/non/object/{id}", s.handleObjectOp(handler.CategoryPostObject))
	r.Delete("/non/object/{id}", s.handleObjectOp(handler.CategoryDeleteObject))

	r.Post("/crypto/sign/{id}", s.handleObjectOp(handler.CategorySignObject))
	r.Post("/crypto/verify/{id}", s.handleObjectOp(handler.CategoryVerifyObject))

	r.Put("/router/handler/{chain}/{category}/{id}", s.handleRegisterHandler)
	r.Delete("/router/handler/{chain}/{category}/{id}", s.handleUnregisterHandler)
	return r
}

func parseObjectId(hexStr string) (objmodel.ObjectId, error) {
	var id objmodel.ObjectId
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return id, err
	}
	n := copy(id[:], b)
	_ = n
	return id, nil
}

func (s *Server) handleObjectOp(category handler.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, httpReq *http.Request) {
		id, err := parseObjectId(chi.URLParam(httpReq, "id"))
		if err != nil {
			http.Error(w, "bad object id: "+err.Error(), http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(httpReq.Body)
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}

		headers := make(map[string]string)
		for _, name := range passedThroughHeaders {
			if v := httpReq.Header.Get(name); v != "" {
				headers[name] = v
			}
		}

		var decId objmodel.ObjectId
		if v := httpReq.Header.Get(HeaderDecId); v != "" {
			if parsed, err := parseObjectId(v); err == nil {
				decId = parsed
			}
		}

		req := &handler.Request{
			Category: category,
			SourceId: id,
			DecId:    decId,
			Headers:  headers,
			Body:     body,
		}

		resp, err := s.Router.Handle(httpReq.Context(), req)
		if err != nil {
			s.Log.WithError(err).WithField("category", category).Warn("httpapi: request failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeResponse(w, resp)
	}
}

func writeResponse(w http.ResponseWriter, resp *handler.Response) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// registeredVerdict is the JSON body accepted by PUT /router/handler/...:
// a static verdict a config-driven deployment can bind to a (chain,
// category, id) without shipping a full filter-expression evaluator,
// which is out of scope here.
type registeredVerdict struct {
	Priority int             `json:"priority"`
	Verdict  string          `json:"verdict"`
	Status   int             `json:"status,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

func (s *Server) handleRegisterHandler(w http.ResponseWriter, httpReq *http.Request) {
	chain := handler.Chain(chi.URLParam(httpReq, "chain"))
	category := handler.Category(chi.URLParam(httpReq, "category"))
	id := chi.URLParam(httpReq, "id")

	var decId objmodel.ObjectId
	if v := httpReq.Header.Get(HeaderDecId); v != "" {
		if parsed, err := parseObjectId(v); err == nil {
			decId = parsed
		}
	}

	var spec registeredVerdict
	if err := json.NewDecoder(httpReq.Body).Decode(&spec); err != nil {
		http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result := verdictFromSpec(spec)
	s.Handlers.Register(chain, category, id, decId, spec.Priority, handler.HandlerFunc(
		func(ctx context.Context, req *handler.Request) (*handler.Result, error) {
			return result, nil
		},
	))
	w.WriteHeader(http.StatusNoContent)
}

func verdictFromSpec(spec registeredVerdict) *handler.Result {
	switch spec.Verdict {
	case "reject":
		return handler.Reject(errFromBody(spec.Body))
	case "drop":
		return handler.Drop()
	case "response":
		return handler.WithResponse(&handler.Response{Status: spec.Status, Body: spec.Body})
	default:
		return handler.Pass()
	}
}

func errFromBody(body json.RawMessage) error {
	if len(body) == 0 {
		return errRejectedByHandler
	}
	return &bodyError{msg: string(body)}
}

type bodyError struct{ msg string }

func (e *bodyError) Error() string { return e.msg }

var errRejectedByHandler = &bodyError{msg: "rejected by registered handler"}

func (s *Server) handleUnregisterHandler(w http.ResponseWriter, httpReq *http.Request) {
	chain := handler.Chain(chi.URLParam(httpReq, "chain"))
	category := handler.Category(chi.URLParam(httpReq, "category"))
	id := chi.URLParam(httpReq, "id")

	var decId objmodel.ObjectId
	if v := httpReq.Header.Get(HeaderDecId); v != "" {
		if parsed, err := parseObjectId(v); err == nil {
			decId = parsed
		}
	}

	s.Handlers.Unregister(chain, category, id, decId)
	w.WriteHeader(http.StatusNoContent)
}
