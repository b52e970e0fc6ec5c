package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// key identifies one registered Handler uniquely within a Registry.
type key struct {
	Chain    Chain
	Category Category
	Id       string
	DecId    objmodel.ObjectId
}

type entry struct {
	key      key
	priority int
	handler  Handler
}

// Registry is a read-mostly handler index: lookups (the hot path, once
// per request per chain/category) take only a read lock; Register and
// Unregister are the only operations that write-lock (§5 "Shared-
// resource policy" — RWMutex favors the many-readers-few-writers shape
// here, same as pkg/noc and pkg/access's indices).
type Registry struct {
	mu      sync.RWMutex
	entries map[Chain]map[Category][]*entry
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Chain]map[Category][]*entry)}
}

// Register adds h under (chain, category, id, decId), ordered by
// priority among handlers sharing the same (chain, category) — lower
// priority values run first. Registering the same (chain, category, id,
// decId) twice replaces the prior handler.
func (r *Registry) Register(chain Chain, category Category, id string, decId objmodel.ObjectId, priority int, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{Chain: chain, Category: category, Id: id, DecId: decId}
	if r.entries[chain] == nil {
		r.entries[chain] = make(map[Category][]*entry)
	}
	list := r.entries[chain][category]

	for i, e := range list {
		if e.key == k {
			list[i] = &entry{key: k, priority: priority, handler: h}
			r.entries[chain][category] = list
			return
		}
	}

	list = append(list, &entry{key: k, priority: priority, handler: h})
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority < list[j].priority })
	r.entries[chain][category] = list
}

// Unregister removes the handler registered under (chain, category, id,
// decId), if any.
func (r *Registry) Unregister(chain Chain, category Category, id string, decId objmodel.ObjectId) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{Chain: chain, Category: category, Id: id, DecId: decId}
	list := r.entries[chain][category]
	for i, e := range list {
		if e.key == k {
			r.entries[chain][category] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Run executes every handler registered under (chain, category) in
// priority order against req, stopping at the first verdict other than
// Pass (a Default verdict stops it too). That Default verdict, or the
// Default result of a list that is empty or passes throughout, is
// reported back to the caller so it can apply the chain's built-in
// fallback behavior.
func (r *Registry) Run(ctx context.Context, chain Chain, req *Request) (*Result, error) {
	r.mu.RLock()
	list := append([]*entry(nil), r.entries[chain][req.Category]...)
	r.mu.RUnlock()

	for _, e := range list {
		res, err := e.handler.Handle(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("handler: %s/%s/%s: %w", chain, req.Category, e.key.Id, err)
		}
		switch res.Verdict {
		case VerdictPass:
			continue
		default:
			return res, nil
		}
	}
	return &Result{Verdict: VerdictDefault}, nil
}

// Count returns how many handlers are registered under (chain, category),
// for metrics/debugging.
func (r *Registry) Count(chain Chain, category Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[chain][category])
}
