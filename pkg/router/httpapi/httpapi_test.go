package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/buckyos/cyfs-ndn-core/pkg/access"
	"github.com/buckyos/cyfs-ndn-core/pkg/handler"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/router"
)

type alwaysLocalResolver struct{}

func (alwaysLocalResolver) ResolveSource(ctx context.Context, req *handler.Request) (access.Source, error) {
	return access.Source{Device: objmodel.ObjectId{0x1}, Verified: true}, nil
}

type noTargetResolver struct{}

func (noTargetResolver) ResolveTarget(ctx context.Context, req *handler.Request) (*objmodel.ObjectId, error) {
	return nil, nil
}

type echoLocal struct{}

func (echoLocal) Process(ctx context.Context, src access.Source, req *handler.Request) (*handler.Response, error) {
	return &handler.Response{Status: 200, Body: append([]byte("processed:"), req.Body...)}, nil
}

func newTestServer() *Server {
	handlers := handler.NewRegistry()
	r := router.New(
		objmodel.ObjectId{0x1},
		alwaysLocalResolver{},
		noTargetResolver{},
		echoLocal{},
		nil,
		handlers,
		handlers,
		logrus.StandardLogger(),
	)
	return NewServer(r, handlers, logrus.StandardLogger())
}

func TestPutObjectRoundTrip(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/non/object/aabbcc", bytes.NewReader([]byte("payload")))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	if string(buf[:n]) != "processed:payload" {
		t.Fatalf("got body %q", buf[:n])
	}
}

func TestRegisterAndUnregisterHandler(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	body := bytes.NewReader([]byte(`{"priority":1,"verdict":"reject"}`))
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/router/handler/pre_router/get_object/rule1", body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT register: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	getReq, _ := http.NewRequest(http.MethodGet, ts.URL+"/non/object/aabbcc", nil)
	getResp, err := http.DefaultClient.Do(getReq)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected the registered rejecting handler to fail the request, got %d", getResp.StatusCode)
	}

	delReq, _ := http.NewRequest(http.MethodDelete, ts.URL+"/router/handler/pre_router/get_object/rule1", nil)
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("got status %d", delResp.StatusCode)
	}

	getReq2, _ := http.NewRequest(http.MethodGet, ts.URL+"/non/object/aabbcc", nil)
	getResp2, err := http.DefaultClient.Do(getReq2)
	if err != nil {
		t.Fatalf("GET after unregister: %v", err)
	}
	getResp2.Body.Close()
	if getResp2.StatusCode != 200 {
		t.Fatalf("expected success after unregistering the rejecting handler, got %d", getResp2.StatusCode)
	}
}
