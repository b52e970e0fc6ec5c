// Package sn implements the SN (service node / rendezvous server) client:
// a keepalive ping loop per known SN and a candidate pool ranked by XOR
// distance, used to pick which SN a device registers with and which SN a
// tunnel establishment attempt asks to relay a reverse-connect call
// (§4.5 "SN client", §4.9).
package sn

import (
	"context"
	"sync"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/constants"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// State is a PingClient's view of its SN's reachability.
type State int

const (
	StateConnecting State = iota
	StateOnline
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateOnline:
		return "Online"
	case StateOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// SNDescriptor identifies one rendezvous server candidate.
type SNDescriptor struct {
	Id        objmodel.ObjectId
	Endpoints []string
}

// Sender delivers a ping to an SN and waits for its reply. Implementations
// wrap a PackageBox-carrying tunnel or raw UDP socket; PingClient doesn't
// care which.
type Sender interface {
	SendPing(ctx context.Context, sn SNDescriptor, ping *wire.SnPing) (*wire.SnPingResp, error)
}

// PingClient drives the keepalive ping loop against a single SN,
// transitioning between Connecting, Online and Offline as pings succeed
// or time out.
type PingClient struct {
	localId        objmodel.ObjectId
	localEndpoints []string
	sender         Sender
	onStateChange  func(State)

	mu           sync.Mutex
	sn           SNDescriptor
	state        State
	since        time.Time
	seqNo        uint32
	peerEndpoint string
	timer        *time.Timer
	stopped      bool
}

// NewPingClient constructs a PingClient in the Connecting state; call
// Start to send the first ping and begin the keepalive loop.
func NewPingClient(localId objmodel.ObjectId, localEndpoints []string, sn SNDescriptor, sender Sender, onStateChange func(State)) *PingClient {
	return &PingClient{
		localId:        localId,
		localEndpoints: localEndpoints,
		sender:         sender,
		onStateChange:  onStateChange,
		sn:             sn,
		state:          StateConnecting,
		since:          time.Now(),
	}
}

// Start sends the first ping. Subsequent pings are scheduled automatically
// on success (every SNPingInterval) or failure (every SNOfflineRetryInterval).
func (pc *PingClient) Start(ctx context.Context) {
	pc.pingOnce(ctx)
}

// Stop cancels any pending retry and prevents further pings.
func (pc *PingClient) Stop() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.stopped = true
	if pc.timer != nil {
		pc.timer.Stop()
	}
}

// State returns the current reachability state and the time it was entered.
func (pc *PingClient) State() (State, time.Time) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state, pc.since
}

// Descriptor returns the SN this client pings.
func (pc *PingClient) Descriptor() SNDescriptor {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.sn
}

// PeerEndpoint returns the device's own endpoint as last observed by the
// SN (its view of our NAT-mapped address), or "" if never pinged
// successfully.
func (pc *PingClient) PeerEndpoint() string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.peerEndpoint
}

func (pc *PingClient) pingOnce(ctx context.Context) {
	pc.mu.Lock()
	if pc.stopped {
		pc.mu.Unlock()
		return
	}
	pc.seqNo++
	seq := pc.seqNo
	target := pc.sn
	pc.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, constants.SNPingTimeout)
	resp, err := pc.sender.SendPing(pingCtx, target, &wire.SnPing{
		DeviceId:  pc.localId.Bytes(),
		Endpoints: pc.localEndpoints,
		SeqNo:     seq,
	})
	cancel()

	if err != nil || resp == nil || resp.SeqNo != seq {
		pc.transition(StateOffline)
		pc.reschedule(ctx, constants.SNOfflineRetryInterval)
		return
	}

	pc.mu.Lock()
	pc.peerEndpoint = resp.PeerEndpoint
	pc.mu.Unlock()

	pc.transition(StateOnline)
	pc.reschedule(ctx, constants.SNPingInterval)
}

func (pc *PingClient) transition(next State) {
	pc.mu.Lock()
	changed := pc.state != next
	pc.state = next
	if changed {
		pc.since = time.Now()
	}
	cb := pc.onStateChange
	pc.mu.Unlock()

	if changed && cb != nil {
		cb(next)
	}
}

func (pc *PingClient) reschedule(ctx context.Context, after time.Duration) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.stopped {
		return
	}
	pc.timer = time.AfterFunc(after, func() { pc.pingOnce(ctx) })
}
