package node

import (
	"context"
	"testing"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/access"
	"github.com/buckyos/cyfs-ndn-core/pkg/handler"
	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
	"github.com/buckyos/cyfs-ndn-core/pkg/noc"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

func newTestProcessor(t *testing.T) (*localProcessor, *identity.Identity, objmodel.ObjectId) {
	t.Helper()
	id, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	selfId := objmodel.ComputeObjectId(objmodel.CategoryCore, objmodel.TypeDevice, []byte("self"))
	store, err := noc.NewMemStore(selfId, nil, 64)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	return newLocalProcessor(store, id, selfId), id, selfId
}

func signedPeopleObject(t *testing.T, id *identity.Identity) *objmodel.NamedObject {
	t.Helper()
	obj, err := id.PeopleNamedObject(time.Now())
	if err != nil {
		t.Fatalf("PeopleNamedObject: %v", err)
	}
	return obj
}

func TestLocalProcessorPutThenGetRoundTrip(t *testing.T) {
	p, id, selfId := newTestProcessor(t)
	obj := signedPeopleObject(t, id)
	encoded, err := obj.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	objId, err := obj.ComputeId()
	if err != nil {
		t.Fatalf("ComputeId: %v", err)
	}

	src := access.Source{Device: selfId, ZoneCategory: access.ZoneSameDevice, Verified: true}
	putResp, err := p.Process(context.Background(), src, &handler.Request{Category: handler.CategoryPutObject, Body: encoded})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if putResp.Status != 201 {
		t.Fatalf("got status %d, want 201", putResp.Status)
	}

	getResp, err := p.Process(context.Background(), src, &handler.Request{Category: handler.CategoryGetObject, SourceId: objId})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if getResp.Status != 200 {
		t.Fatalf("got status %d, want 200", getResp.Status)
	}
	if string(getResp.Body) != string(encoded) {
		t.Fatalf("round-tripped body does not match")
	}
}

func TestLocalProcessorGetMissingReturns404(t *testing.T) {
	p, _, selfId := newTestProcessor(t)
	src := access.Source{Device: selfId, ZoneCategory: access.ZoneSameDevice, Verified: true}
	resp, err := p.Process(context.Background(), src, &handler.Request{Category: handler.CategoryGetObject, SourceId: objmodel.ObjectId{0x1}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != 404 {
		t.Fatalf("got status %d, want 404", resp.Status)
	}
}

func TestLocalProcessorSignAndVerifyRoundTrip(t *testing.T) {
	p, id, selfId := newTestProcessor(t)
	src := access.Source{Device: selfId, ZoneCategory: access.ZoneSameDevice, Verified: true}

	payload := []byte("hello cyfs")
	signResp, err := p.Process(context.Background(), src, &handler.Request{Category: handler.CategorySignObject, Body: payload})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	verifyResp, err := p.Process(context.Background(), src, &handler.Request{
		Category: handler.CategoryVerifyObject,
		Body:     payload,
		Headers:  map[string]string{"cyfs-verify-signs": string(signResp.Body)},
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verifyResp.Status != 200 {
		t.Fatalf("got status %d, want 200", verifyResp.Status)
	}
	_ = id
}

func TestLocalProcessorRejectsUnknownCategory(t *testing.T) {
	p, _, selfId := newTestProcessor(t)
	src := access.Source{Device: selfId, ZoneCategory: access.ZoneSameDevice, Verified: true}
	if _, err := p.Process(context.Background(), src, &handler.Request{Category: handler.CategoryInterest}); err == nil {
		t.Fatalf("expected an error for an unimplemented category")
	}
}
