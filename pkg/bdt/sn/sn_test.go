package sn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

func testDeviceId(seed byte) objmodel.ObjectId {
	return objmodel.ComputeObjectId(objmodel.CategoryCore, objmodel.TypeDevice, []byte{seed})
}

// fakeSender answers every ping immediately, unless the target SN is
// listed in refuse, in which case it returns an error (simulating a dead SN).
type fakeSender struct {
	mu      sync.Mutex
	refuse  map[objmodel.ObjectId]bool
	pings   int
	echoEnd string
}

func newFakeSender() *fakeSender {
	return &fakeSender{refuse: make(map[objmodel.ObjectId]bool)}
}

func (f *fakeSender) SendPing(ctx context.Context, target SNDescriptor, ping *wire.SnPing) (*wire.SnPingResp, error) {
	f.mu.Lock()
	f.pings++
	refused := f.refuse[target.Id]
	f.mu.Unlock()

	if refused {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return &wire.SnPingResp{SeqNo: ping.SeqNo, PeerEndpoint: "203.0.113.5:40000"}, nil
}

func (f *fakeSender) setRefuse(id objmodel.ObjectId, refuse bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refuse[id] = refuse
}

func waitForState(t *testing.T, pc *PingClient, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if state, _ := pc.State(); state == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	state, _ := pc.State()
	t.Fatalf("timed out waiting for state %s, last seen %s", want, state)
}

func TestPingClientGoesOnline(t *testing.T) {
	sender := newFakeSender()
	snId := testDeviceId(1)
	localId := testDeviceId(2)

	var transitions []State
	var mu sync.Mutex

	pc := NewPingClient(localId, []string{"192.0.2.1:9000"}, SNDescriptor{Id: snId, Endpoints: []string{"198.51.100.1:9001"}}, sender, func(s State) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})
	defer pc.Stop()

	ctx := context.Background()
	pc.Start(ctx)

	waitForState(t, pc, StateOnline, time.Second)

	if got := pc.PeerEndpoint(); got != "203.0.113.5:40000" {
		t.Fatalf("unexpected peer endpoint %q", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) == 0 || transitions[0] != StateOnline {
		t.Fatalf("expected first transition to Online, got %v", transitions)
	}
}

func TestPingClientGoesOfflineAndRetries(t *testing.T) {
	sender := newFakeSender()
	snId := testDeviceId(3)
	localId := testDeviceId(4)
	sender.setRefuse(snId, true)

	pc := NewPingClient(localId, nil, SNDescriptor{Id: snId, Endpoints: []string{"198.51.100.2:9001"}}, sender, nil)
	defer pc.Stop()

	ctx := context.Background()
	pc.Start(ctx)

	waitForState(t, pc, StateOffline, 2*time.Second)

	sender.mu.Lock()
	firstCount := sender.pings
	sender.mu.Unlock()
	if firstCount < 1 {
		t.Fatalf("expected at least one ping attempt, got %d", firstCount)
	}

	pc.mu.Lock()
	retryScheduled := pc.timer != nil
	pc.mu.Unlock()
	if !retryScheduled {
		t.Fatalf("expected a retry ping to be scheduled after going Offline")
	}
}

func TestManagerResetSNListStartsAndStopsClients(t *testing.T) {
	sender := newFakeSender()
	localId := testDeviceId(10)
	m := NewManager(localId, []string{"192.0.2.10:9000"}, sender)
	defer m.Stop()

	a := testDeviceId(11)
	b := testDeviceId(12)

	m.ResetSNList([]SNDescriptor{
		{Id: a, Endpoints: []string{"198.51.100.11:9001"}},
		{Id: b, Endpoints: []string{"198.51.100.12:9001"}},
	})

	if m.Size() != 2 {
		t.Fatalf("expected 2 candidates, got %d", m.Size())
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		stateA, _, okA := m.State(a)
		stateB, _, okB := m.State(b)
		if okA && okB && stateA == StateOnline && stateB == StateOnline {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Drop b from the pool.
	m.ResetSNList([]SNDescriptor{
		{Id: a, Endpoints: []string{"198.51.100.11:9001"}},
	})

	if m.Size() != 1 {
		t.Fatalf("expected 1 candidate after reset, got %d", m.Size())
	}
	if _, _, ok := m.State(b); ok {
		t.Fatal("expected b to be removed from the pool")
	}
}

func TestManagerBestRanksByXORDistance(t *testing.T) {
	sender := newFakeSender()
	localId := testDeviceId(20)
	m := NewManager(localId, nil, sender)
	defer m.Stop()

	candidates := make([]SNDescriptor, 0, 5)
	for i := byte(21); i < 26; i++ {
		candidates = append(candidates, SNDescriptor{Id: testDeviceId(i), Endpoints: []string{"198.51.100.1:9001"}})
	}
	m.ResetSNList(candidates)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.Size() == len(candidates) {
			allOnline := true
			for _, c := range candidates {
				state, _, ok := m.State(c.Id)
				if !ok || state != StateOnline {
					allOnline = false
					break
				}
			}
			if allOnline {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
	}

	best := m.Best(localId, 3)
	if len(best) != 3 {
		t.Fatalf("expected 3 best candidates, got %d", len(best))
	}
	seen := make(map[objmodel.ObjectId]bool)
	for _, d := range best {
		if seen[d.Id] {
			t.Fatalf("duplicate candidate %s in Best result", d.Id)
		}
		seen[d.Id] = true
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateConnecting: "Connecting",
		StateOnline:     "Online",
		StateOffline:    "Offline",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
