// Package router implements the five-step request pipeline of §4.8:
// source resolution, target resolution, a pre-handler chain, execution
// (local or forwarded), and a post-handler chain.
package router

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/buckyos/cyfs-ndn-core/pkg/access"
	"github.com/buckyos/cyfs-ndn-core/pkg/handler"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// SourceResolver determines who is making a request: which device, what
// its relationship to the local zone is, and which DEC it is acting for.
type SourceResolver interface {
	ResolveSource(ctx context.Context, req *handler.Request) (access.Source, error)
}

// TargetResolver determines where a request should execute. A nil
// deviceId means "process locally".
type TargetResolver interface {
	ResolveTarget(ctx context.Context, req *handler.Request) (*objmodel.ObjectId, error)
}

// LocalProcessor executes a request against this device's own state (NOC,
// chunk store, crypto, ...).
type LocalProcessor interface {
	Process(ctx context.Context, src access.Source, req *handler.Request) (*handler.Response, error)
}

// Forwarder executes a request against one specific remote device.
type Forwarder interface {
	Forward(ctx context.Context, req *handler.Request) (*handler.Response, error)
}

// ForwarderFactory hands out a Forwarder bound to a given device id,
// typically backed by a bdt.Tunnel to that device.
type ForwarderFactory interface {
	Forwarder(ctx context.Context, deviceId objmodel.ObjectId) (Forwarder, error)
}

// Router is the glue between source/target resolution, the handler
// chain, and execution.
type Router struct {
	LocalDeviceId objmodel.ObjectId

	Sources    SourceResolver
	Targets    TargetResolver
	Local      LocalProcessor
	Forwarders ForwarderFactory

	Pre  *handler.Registry
	Post *handler.Registry

	Log *logrus.Logger
}

// New builds a Router. pre and post may be the same *handler.Registry
// instance — chain selection (PreRouter/PreForward/... vs
// PostRouter/PostForward/...) disambiguates lookups within it.
func New(localDeviceId objmodel.ObjectId, sources SourceResolver, targets TargetResolver, local LocalProcessor, forwarders ForwarderFactory, pre, post *handler.Registry, log *logrus.Logger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Router{
		LocalDeviceId: localDeviceId,
		Sources:       sources,
		Targets:       targets,
		Local:         local,
		Forwarders:    forwarders,
		Pre:           pre,
		Post:          post,
		Log:           log,
	}
}

// Handle runs the full pipeline for req.
func (r *Router) Handle(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	src, err := r.Sources.ResolveSource(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("router: resolve source: %w", err)
	}
	target, err := r.Targets.ResolveTarget(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("router: resolve target: %w", err)
	}

	action := "local"
	var targetField interface{} = nil
	if target != nil {
		action = "forward"
		targetField = *target
	}
	r.Log.WithFields(logrus.Fields{
		"source":        src.Device,
		"target_device": targetField,
		"action":        action,
	}).Debug("router: handling request")

	if resp, done, err := r.runChain(ctx, handler.PreRouter, req); done {
		return resp, err
	}

	var resp *handler.Response
	if target == nil {
		resp, err = r.runLocal(ctx, src, req)
	} else {
		resp, err = r.runForward(ctx, *target, req)
	}
	if err != nil {
		return nil, err
	}

	postReq := *req
	postReq.PriorResponse = resp
	if overridden, done, err := r.runChain(ctx, handler.PostRouter, &postReq); done {
		return overridden, err
	}
	return resp, nil
}

func (r *Router) runLocal(ctx context.Context, src access.Source, req *handler.Request) (*handler.Response, error) {
	return r.Local.Process(ctx, src, req)
}

func (r *Router) runForward(ctx context.Context, target objmodel.ObjectId, req *handler.Request) (*handler.Response, error) {
	if resp, done, err := r.runChain(ctx, handler.PreForward, req); done {
		return resp, err
	}

	fwd, err := r.Forwarders.Forwarder(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("router: no forwarder to %x: %w", target, err)
	}
	resp, err := fwd.Forward(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("router: forward to %x: %w", target, err)
	}

	postReq := *req
	postReq.PriorResponse = resp
	if overridden, done, err := r.runChain(ctx, handler.PostForward, &postReq); done {
		return overridden, err
	}
	return resp, nil
}

// runChain runs the named chain and translates a short-circuiting
// verdict into a final (response, error) pair. done is false when the
// chain passed the request through unmodified (VerdictPass/Default).
func (r *Router) runChain(ctx context.Context, chain handler.Chain, req *handler.Request) (resp *handler.Response, done bool, err error) {
	res, err := r.registryFor(chain).Run(ctx, chain, req)
	if err != nil {
		return nil, true, err
	}
	switch res.Verdict {
	case handler.VerdictResponse:
		return res.Response, true, nil
	case handler.VerdictReject:
		return nil, true, res.Err
	case handler.VerdictDrop:
		return nil, true, nil
	default:
		return nil, false, nil
	}
}

func (r *Router) registryFor(chain handler.Chain) *handler.Registry {
	switch chain {
	case handler.PostRouter, handler.PostForward, handler.PostCrypto:
		return r.Post
	default:
		return r.Pre
	}
}
