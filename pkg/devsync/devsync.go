// Package devsync implements device-state sync of §4.9: the local
// device's view of its zone root state and its own role within the
// zone, plus SN (service node) connectivity tracking, both published as
// typed Go channels rather than guarded by a shared lock — the same
// message-passing-over-locks preference §9 states for cross-component
// state propagation.
package devsync

import (
	"sync"

	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/sn"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// ZoneRole is this device's standing within its zone.
type ZoneRole int

const (
	RoleDevice ZoneRole = iota
	RoleStandbyOOD
	RoleActiveOOD
)

func (r ZoneRole) String() string {
	switch r {
	case RoleActiveOOD:
		return "ActiveOOD"
	case RoleStandbyOOD:
		return "StandbyOOD"
	default:
		return "Device"
	}
}

// OodWorkMode governs how multiple OODs in one zone divide work.
type OodWorkMode int

const (
	ModeStandalone OodWorkMode = iota
	ModeActiveStandby
)

// DeviceState is the zone-wide state this device currently believes is
// true.
type DeviceState struct {
	ZoneRootState         objmodel.ObjectId
	ZoneRootStateRevision uint64
	ZoneRole              ZoneRole
	OodWorkMode           OodWorkMode
}

// ZoneRoleChanged is emitted whenever the device's resolved role or the
// zone root state changes.
type ZoneRoleChanged struct {
	Previous DeviceState
	Current  DeviceState
}

// SNStateChanged mirrors one sn.PingClient's state transitions for
// whichever SN this device currently depends on.
type SNStateChanged struct {
	SN       sn.SNDescriptor
	Previous sn.State
	Current  sn.State
}

// Manager tracks DeviceState and SN connectivity, publishing every
// change on buffered channels so a slow consumer can't stall the
// manager's own processing.
type Manager struct {
	mu    sync.RWMutex
	state DeviceState

	roleCh chan ZoneRoleChanged
	snCh   chan SNStateChanged

	pingClient *sn.PingClient
	snState    sn.State
}

// NewManager creates a Manager seeded with an initial DeviceState. Call
// TrackSN to start SN connectivity tracking once a PingClient for the
// zone's chosen SN exists.
func NewManager(initial DeviceState) *Manager {
	return &Manager{
		state:  initial,
		roleCh: make(chan ZoneRoleChanged, 16),
		snCh:   make(chan SNStateChanged, 16),
	}
}

// State returns the manager's current view of the zone state.
func (m *Manager) State() DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ZoneRoleChanges returns the channel ZoneRoleChanged events are
// published on.
func (m *Manager) ZoneRoleChanges() <-chan ZoneRoleChanged { return m.roleCh }

// SNStateChanges returns the channel SNStateChanged events are
// published on.
func (m *Manager) SNStateChanges() <-chan SNStateChanged { return m.snCh }

// Update replaces the manager's DeviceState, publishing a
// ZoneRoleChanged event if anything actually changed.
func (m *Manager) Update(next DeviceState) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()

	if prev != next {
		m.publishRole(ZoneRoleChanged{Previous: prev, Current: next})
	}
}

func (m *Manager) publishRole(ev ZoneRoleChanged) {
	select {
	case m.roleCh <- ev:
	default:
		// A full channel means no one's listening for zone-role
		// transitions right now; drop rather than block the caller that
		// drove this update (§5 "no component holds a blocking lock
		// across an await" — the analogous rule for channel sends).
	}
}

// TrackSN attaches a PingClient whose state transitions should be
// republished as SNStateChanged events. Start the PingClient separately;
// TrackSN only records pc and its current state. Transitions arrive
// through OnSNStateChange, which must be the PingClient's onStateChange.
func (m *Manager) TrackSN(pc *sn.PingClient) {
	m.mu.Lock()
	m.pingClient = pc
	m.snState, _ = pc.State()
	m.mu.Unlock()
}

// OnSNStateChange is the callback to pass as sn.NewPingClient's
// onStateChange parameter so transitions flow into this Manager's
// SNStateChanges channel.
func (m *Manager) OnSNStateChange(next sn.State) {
	m.mu.Lock()
	prev := m.snState
	m.snState = next
	pc := m.pingClient
	m.mu.Unlock()

	if pc == nil || prev == next {
		return
	}
	select {
	case m.snCh <- SNStateChanged{SN: pc.Descriptor(), Previous: prev, Current: next}:
	default:
	}
}
