// Package pacer smooths a stream's outgoing packets to its congestion
// controller's target rate, turning a fixed per-key request quota token
// bucket into a byte-rate pacer driven by a cc.Controller's live
// Cwnd()/Rate().
package pacer

import (
	"container/list"
	"sync"
	"time"
)

// Pacer is a token bucket sized mss*4, refilled continuously at the
// configured byte rate. Send either admits size immediately (enough
// tokens available) or reports how long the caller should wait.
type Pacer struct {
	mu sync.Mutex

	mss      int
	capacity float64 // bytes
	rate     float64 // bytes/sec; 0 means unpaced (always admit)
	tokens   float64
	lastFill time.Time
}

// NewPacer starts with a full bucket at the given initial rate (bytes/sec).
func NewPacer(mss int, initialRate float64, now time.Time) *Pacer {
	capacity := float64(mss * 4)
	return &Pacer{
		mss:      mss,
		capacity: capacity,
		rate:     initialRate,
		tokens:   capacity,
		lastFill: now,
	}
}

// Update changes the pacing rate, e.g. in step with a cc.Controller's
// Cwnd()/RTT-derived rate estimate.
func (p *Pacer) Update(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
}

// Send reports whether size bytes may go out now. If not, it returns the
// time at which enough tokens will have accumulated.
func (p *Pacer) Send(size int, now time.Time) (deferUntil *time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refill(now)

	if p.rate <= 0 || p.tokens >= float64(size) {
		if p.tokens >= float64(size) {
			p.tokens -= float64(size)
		}
		return nil
	}

	deficit := float64(size) - p.tokens
	wait := time.Duration(deficit / p.rate * float64(time.Second))
	until := now.Add(wait)
	return &until
}

func (p *Pacer) refill(now time.Time) {
	if p.rate <= 0 {
		p.lastFill = now
		return
	}
	elapsed := now.Sub(p.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	p.tokens += elapsed * p.rate
	if p.tokens > p.capacity {
		p.tokens = p.capacity
	}
	p.lastFill = now
}

// deferredPacket is one queued send awaiting its pacer-assigned release time.
type deferredPacket struct {
	size    int
	release time.Time
	send    func()
}

// DeferredSender queues packets the Pacer has told the caller to defer,
// delivering each at its release time via a single timer-driven goroutine
// rather than one timer per packet.
type DeferredSender struct {
	mu     sync.Mutex
	queue  *list.List // of *deferredPacket, ordered by release time
	closed bool
	wake   chan struct{}
}

// NewDeferredSender starts the delivery goroutine; call Close to stop it.
func NewDeferredSender() *DeferredSender {
	s := &DeferredSender{
		queue: list.New(),
		wake:  make(chan struct{}, 1),
	}
	go s.run()
	return s
}

// Enqueue schedules send to run at release time.
func (s *DeferredSender) Enqueue(size int, release time.Time, send func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	pkt := &deferredPacket{size: size, release: release, send: send}
	inserted := false
	for e := s.queue.Back(); e != nil; e = e.Prev() {
		if !e.Value.(*deferredPacket).release.After(release) {
			s.queue.InsertAfter(pkt, e)
			inserted = true
			break
		}
	}
	if !inserted {
		s.queue.PushFront(pkt)
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *DeferredSender) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		front := s.queue.Front()
		s.mu.Unlock()

		if front == nil {
			<-s.wake
			continue
		}

		pkt := front.Value.(*deferredPacket)
		wait := time.Until(pkt.release)
		if wait < 0 {
			wait = 0
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
			s.mu.Lock()
			if !s.closed && s.queue.Front() == front {
				s.queue.Remove(front)
			}
			s.mu.Unlock()
			pkt.send()
		case <-s.wake:
			continue
		}
	}
}

// Close stops the delivery goroutine; any still-queued packets are dropped.
func (s *DeferredSender) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
