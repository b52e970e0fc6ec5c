// Package node wires together the packages a standalone cyfs-noded
// process needs: identity, NOC, crypto, the router and its HTTP control
// surface, device-state sync, and a meta-chain client, so cmd/cyfs-noded
// stays a thin flag/config layer over it.
package node

import (
	"context"
	"fmt"

	"github.com/buckyos/cyfs-ndn-core/pkg/access"
	"github.com/buckyos/cyfs-ndn-core/pkg/crypto"
	"github.com/buckyos/cyfs-ndn-core/pkg/handler"
	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
	"github.com/buckyos/cyfs-ndn-core/pkg/noc"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/router"
)

// localProcessor implements router.LocalProcessor against a noc.Store and
// this device's own identity, the two things every NON/crypto category in
// §6's endpoint set ultimately needs.
type localProcessor struct {
	store  noc.Store
	id     *identity.Identity
	selfId objmodel.ObjectId
}

func newLocalProcessor(store noc.Store, id *identity.Identity, selfId objmodel.ObjectId) *localProcessor {
	return &localProcessor{store: store, id: id, selfId: selfId}
}

func (p *localProcessor) Process(ctx context.Context, src access.Source, req *handler.Request) (*handler.Response, error) {
	switch req.Category {
	case handler.CategoryPutObject:
		return p.putObject(src, req)
	case handler.CategoryGetObject:
		return p.getObject(src, req)
	case handler.CategoryDeleteObject:
		return p.deleteObject(src, req)
	case handler.CategorySignObject:
		return p.signObject(req)
	case handler.CategoryVerifyObject:
		return p.verifyObject(req)
	default:
		return nil, fmt.Errorf("node: category %s not implemented locally", req.Category)
	}
}

func (p *localProcessor) putObject(src access.Source, req *handler.Request) (*handler.Response, error) {
	obj, err := objmodel.Decode(req.Body)
	if err != nil {
		return nil, fmt.Errorf("node: decode object: %w", err)
	}
	id, err := obj.ComputeId()
	if err != nil {
		return nil, fmt.Errorf("node: compute object id: %w", err)
	}

	row := noc.MetaRow{
		ObjectId:     id,
		Owner:        obj.Desc.Owner,
		Dec:          obj.Desc.DecId,
		Author:       obj.Desc.Author,
		Type:         obj.Desc.TypeCode,
		CreateTime:   obj.Desc.CreateTime,
		AccessString: access.Default(),
	}
	if req.DecId != (objmodel.ObjectId{}) {
		row.Dec = &req.DecId
	}

	result, err := p.store.Put(src, row, req.Body)
	if err != nil {
		return nil, fmt.Errorf("node: put object %x: %w", id[:], err)
	}

	status := 201
	if result.Kind == noc.PutUpdated {
		status = 200
	}
	return &handler.Response{Status: status}, nil
}

func (p *localProcessor) getObject(src access.Source, req *handler.Request) (*handler.Response, error) {
	result, err := p.store.Get(src, req.SourceId)
	if err != nil {
		return nil, fmt.Errorf("node: get object %x: %w", req.SourceId[:], err)
	}
	switch result.Kind {
	case noc.GetNotFound:
		return &handler.Response{Status: 404}, nil
	case noc.GetPermissionDenied:
		return &handler.Response{Status: 403}, nil
	default:
		return &handler.Response{Status: 200, Body: result.Body}, nil
	}
}

func (p *localProcessor) deleteObject(src access.Source, req *handler.Request) (*handler.Response, error) {
	if err := p.store.Delete(src, req.SourceId); err != nil {
		return nil, fmt.Errorf("node: delete object %x: %w", req.SourceId[:], err)
	}
	return &handler.Response{Status: 204}, nil
}

func (p *localProcessor) signObject(req *handler.Request) (*handler.Response, error) {
	sig := crypto.Sign(p.id.SigningPrivateKey, req.Body)
	return &handler.Response{Status: 200, Body: sig}, nil
}

func (p *localProcessor) verifyObject(req *handler.Request) (*handler.Response, error) {
	if !crypto.Verify(p.id.SigningPublicKey, req.Body, []byte(req.Headers["cyfs-verify-signs"])) {
		return &handler.Response{Status: 401}, nil
	}
	return &handler.Response{Status: 200}, nil
}

// localSourceResolver trusts every request as coming from this device
// itself (§4.2's same-device short-circuit), the right default for a
// request arriving over the loopback-only HTTP control surface. The
// node's Router uses it for every request; the node does not serve
// requests forwarded in over a tunnel.
type localSourceResolver struct {
	selfId objmodel.ObjectId
}

func (r localSourceResolver) ResolveSource(ctx context.Context, req *handler.Request) (access.Source, error) {
	return access.Source{Device: r.selfId, ZoneCategory: access.ZoneSameDevice, Verified: true}, nil
}

// localTargetResolver always resolves to "process locally": a single-node
// deployment with no zone peers to forward to.
type localTargetResolver struct{}

func (localTargetResolver) ResolveTarget(ctx context.Context, req *handler.Request) (*objmodel.ObjectId, error) {
	return nil, nil
}

// noForwarders is a router.ForwarderFactory with no peers configured,
// paired with localTargetResolver until zone membership resolution picks
// real forward targets.
type noForwarders struct{}

func (noForwarders) Forwarder(ctx context.Context, deviceId objmodel.ObjectId) (router.Forwarder, error) {
	return nil, fmt.Errorf("node: no forwarder configured for %x", deviceId[:])
}
