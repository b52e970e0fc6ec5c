// Package metachain defines the narrow client-facing boundary between
// this module and the meta-chain executor (§1, §12): object lookups
// against chain state and transaction submission. Consensus rules, EVM
// semantics, and execution are entirely out of scope and implemented by
// the external executor this Client talks to, never by this package.
package metachain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/buckyos/cyfs-ndn-core/pkg/codec/cborcanon"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Client is the interface the rest of the core calls through to reach
// the meta-chain. It names only the two operations the core actually
// needs: resolving an object that lives on chain, and submitting one.
type Client interface {
	GetObject(ctx context.Context, id objmodel.ObjectId) (*objmodel.NamedObject, error)
	SubmitTx(ctx context.Context, tx *objmodel.NamedObject) (objmodel.ObjectId, error)
}

// HTTPClient is a minimal implementation of Client against an external
// meta-chain executor's object-lookup and transaction-submission HTTP
// endpoints. It carries request/response bodies as canonical CBOR,
// matching every other object payload in this module, rather than a
// chain-specific RPC format the external executor's own API may use —
// callers fronting a different executor wire format implement Client
// directly instead of using HTTPClient.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL. If httpClient is
// nil, http.DefaultClient is used.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{BaseURL: baseURL, HTTP: httpClient}
}

// GetObject fetches the object known to chain state by id.
func (c *HTTPClient) GetObject(ctx context.Context, id objmodel.ObjectId) (*objmodel.NamedObject, error) {
	url := fmt.Sprintf("%s/object/%x", c.BaseURL, id[:])
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("metachain: build request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metachain: get object %x: %w", id[:], err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("metachain: object %x not found on chain", id[:])
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metachain: get object %x: status %d", id[:], resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("metachain: read response: %w", err)
	}

	var obj objmodel.NamedObject
	if err := cborcanon.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("metachain: decode object: %w", err)
	}
	return &obj, nil
}

// SubmitTx submits tx to the meta-chain for inclusion, returning the
// object id the executor assigned it once accepted into its mempool —
// this call does not wait for confirmation.
func (c *HTTPClient) SubmitTx(ctx context.Context, tx *objmodel.NamedObject) (objmodel.ObjectId, error) {
	var zero objmodel.ObjectId

	payload, err := cborcanon.Marshal(tx)
	if err != nil {
		return zero, fmt.Errorf("metachain: marshal tx: %w", err)
	}

	url := c.BaseURL + "/tx"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return zero, fmt.Errorf("metachain: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/cbor")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return zero, fmt.Errorf("metachain: submit tx: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return zero, fmt.Errorf("metachain: submit tx: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("metachain: read response: %w", err)
	}

	var id objmodel.ObjectId
	if len(body) != len(id) {
		return zero, fmt.Errorf("metachain: unexpected tx id length %d", len(body))
	}
	copy(id[:], body)
	return id, nil
}
