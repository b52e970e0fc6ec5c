package pacer

import (
	"sync"
	"testing"
	"time"
)

func TestPacerAdmitsWithinCapacity(t *testing.T) {
	now := time.Now()
	p := NewPacer(1400, 1_000_000, now)

	if until := p.Send(1000, now); until != nil {
		t.Fatalf("expected immediate admission, got defer until %v", until)
	}
}

func TestPacerDefersOverCapacity(t *testing.T) {
	now := time.Now()
	p := NewPacer(1400, 1000, now) // capacity = 5600 bytes, slow rate

	// Drain the bucket.
	if until := p.Send(5600, now); until != nil {
		t.Fatalf("first send within capacity should be immediate, got %v", until)
	}

	until := p.Send(1000, now)
	if until == nil {
		t.Fatalf("expected a deferral once the bucket is drained")
	}
	if !until.After(now) {
		t.Fatalf("deferUntil should be in the future: got %v, now %v", until, now)
	}
}

func TestPacerRefillsOverTime(t *testing.T) {
	now := time.Now()
	p := NewPacer(1400, 5600, now) // 5600 bytes/sec, capacity 5600
	p.Send(5600, now)              // drain

	later := now.Add(time.Second)
	if until := p.Send(5000, later); until != nil {
		t.Fatalf("expected bucket to have refilled after 1s at 5600B/s, got defer %v", until)
	}
}

func TestPacerZeroRateNeverDefers(t *testing.T) {
	now := time.Now()
	p := NewPacer(1400, 0, now)
	if until := p.Send(1_000_000, now); until != nil {
		t.Fatalf("zero rate should admit unconditionally, got %v", until)
	}
}

func TestDeferredSenderDeliversInOrder(t *testing.T) {
	s := NewDeferredSender()
	defer s.Close()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{}, 3)

	now := time.Now()
	record := func(n int) func() {
		return func() {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			done <- struct{}{}
		}
	}

	s.Enqueue(100, now.Add(60*time.Millisecond), record(3))
	s.Enqueue(100, now.Add(20*time.Millisecond), record(1))
	s.Enqueue(100, now.Add(40*time.Millisecond), record(2))

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for deferred delivery %d", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected delivery order [1 2 3], got %v", order)
	}
}
