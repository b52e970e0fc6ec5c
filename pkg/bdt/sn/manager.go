package sn

import (
	"context"
	"sync"
	"time"

	"github.com/buckyos/cyfs-ndn-core/internal/dhtkbucket"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Manager owns the pool of known SN candidates, keeping one PingClient per
// SN alive and ranking Online candidates by XOR distance via
// internal/dhtkbucket so callers can pick which SN to register with or
// route a reverse-connect call through.
type Manager struct {
	localId        objmodel.ObjectId
	localEndpoints []string
	sender         Sender

	mu      sync.Mutex
	clients map[objmodel.ObjectId]*PingClient
	table   *dhtkbucket.Table

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager constructs a Manager with an empty candidate pool; call
// ResetSNList to populate it.
func NewManager(localId objmodel.ObjectId, localEndpoints []string, sender Sender) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		localId:        localId,
		localEndpoints: localEndpoints,
		sender:         sender,
		clients:        make(map[objmodel.ObjectId]*PingClient),
		table:          dhtkbucket.NewTable(localId),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// ResetSNList replaces the candidate pool under a single mutex section:
// PingClients for candidates no longer present are stopped and dropped,
// new candidates get a fresh PingClient started.
func (m *Manager) ResetSNList(candidates []SNDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := make(map[objmodel.ObjectId]bool, len(candidates))
	for _, c := range candidates {
		keep[c.Id] = true
		if _, exists := m.clients[c.Id]; exists {
			continue
		}

		id := c.Id
		pc := NewPingClient(m.localId, m.localEndpoints, c, m.sender, func(State) {
			m.onStateChange(id)
		})
		m.clients[id] = pc
		m.table.Add(&dhtkbucket.Peer{Id: id, Endpoints: c.Endpoints, LastSeen: time.Now()})
		go pc.Start(m.ctx)
	}

	for id, pc := range m.clients {
		if keep[id] {
			continue
		}
		pc.Stop()
		delete(m.clients, id)
		m.table.Remove(id)
	}
}

func (m *Manager) onStateChange(id objmodel.ObjectId) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.clients[id]
	if !ok {
		return
	}
	if state, _ := pc.State(); state == StateOnline {
		m.table.Add(&dhtkbucket.Peer{Id: id, Endpoints: pc.Descriptor().Endpoints, LastSeen: time.Now()})
	}
}

// Best returns up to k Online candidates closest to target by XOR
// distance, the selection §4.5 describes for routing an SN-mediated call.
func (m *Manager) Best(target objmodel.ObjectId, k int) []SNDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	peers := m.table.Closest(target, k)
	out := make([]SNDescriptor, 0, len(peers))
	for _, p := range peers {
		pc, ok := m.clients[p.Id]
		if !ok {
			continue
		}
		if state, _ := pc.State(); state != StateOnline {
			continue
		}
		out = append(out, SNDescriptor{Id: p.Id, Endpoints: p.Endpoints})
	}
	return out
}

// State returns the current state of the SN identified by id, if known.
func (m *Manager) State(id objmodel.ObjectId) (State, time.Time, bool) {
	m.mu.Lock()
	pc, ok := m.clients[id]
	m.mu.Unlock()
	if !ok {
		return StateConnecting, time.Time{}, false
	}
	state, since := pc.State()
	return state, since, true
}

// Size returns the number of candidates currently tracked.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Stop halts every PingClient and cancels the Manager's background context.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pc := range m.clients {
		pc.Stop()
	}
	m.cancel()
}
