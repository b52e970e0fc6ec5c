// Package upload implements the sending side of chunk transfer (§4.6):
// one UploadSession per (tunnel, chunk-or-range) pair, multiplexed
// fairly across an UploadTunnel's NextPiece calls.
package upload

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Source is the minimal read surface an UploadSession pulls bytes from;
// chunkstore.ChunkCache satisfies this directly.
type Source interface {
	Read(offset int64, buf []byte) (int, error)
}

// Session is one in-flight upload of a single chunk or byte range to a
// peer. Sessions are driven exclusively by their owning UploadTunnel's
// NextPiece — nothing else advances offset.
type Session struct {
	id     uint64
	source Source
	offset int64
	total  int64

	speed *speedCounter
}

// Id returns the session's monotonic identifier, assigned by the
// UploadTunnel that created it.
func (s *Session) Id() uint64 { return s.id }

// Done reports whether every byte of the session's range has been read.
func (s *Session) Done() bool { return s.offset >= s.total }

// Speed returns the session's exponentially-weighted moving average
// bytes/sec, updated on every non-zero read.
func (s *Session) Speed() float64 { return s.speed.value() }

// nextPiece reads up to len(buf) bytes starting at the session's current
// offset, advancing it, and returns (0, nil) rather than io.EOF once the
// session is exhausted — callers use Done() to detect completion.
func (s *Session) nextPiece(buf []byte) (int, error) {
	if s.Done() {
		return 0, nil
	}
	remaining := s.total - s.offset
	if int64(len(buf)) > remaining {
		buf = buf[:remaining]
	}
	n, err := s.source.Read(s.offset, buf)
	if n > 0 {
		s.offset += int64(n)
		s.speed.observe(n, time.Now())
	}
	return n, err
}

// Tunnel multiplexes NextPiece calls fairly across every Session added
// to it: a single pass never offers one session twice before every
// other non-empty session has been offered once (§4.6 fairness
// invariant), implemented with a per-round "tried" bitmap rather than a
// weighted scheduler since every session carries equal priority.
type Tunnel struct {
	mu       sync.Mutex
	sessions []*Session
	rr       int
	nextId   atomic.Uint64
}

// New creates an empty upload tunnel.
func New() *Tunnel {
	return &Tunnel{}
}

// AddSession registers a new upload session reading from source for
// total bytes, returning its assigned id.
func (t *Tunnel) AddSession(source Source, total int64) *Session {
	s := &Session{
		id:     t.nextId.Add(1),
		source: source,
		total:  total,
		speed:  newSpeedCounter(),
	}
	t.mu.Lock()
	t.sessions = append(t.sessions, s)
	t.mu.Unlock()
	return s
}

// RemoveSession drops a session, e.g. once Done() or on peer cancel.
func (t *Tunnel) RemoveSession(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.sessions {
		if s.id == id {
			t.sessions = append(t.sessions[:i], t.sessions[i+1:]...)
			if t.rr > i {
				t.rr--
			}
			return
		}
	}
}

// NextPiece fills buf from whichever of this tunnel's sessions is next
// in round-robin order, skipping sessions that are Done() or that
// produce zero bytes, and advancing past exactly one session per call.
// It returns the session the bytes came from alongside the usual
// (n, err) so the caller can frame the piece with the right session id.
func (t *Tunnel) NextPiece(buf []byte) (*Session, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.sessions)
	if n == 0 {
		return nil, 0, nil
	}

	tried := make([]bool, n)
	for attempts := 0; attempts < n; attempts++ {
		idx := t.rr % n
		t.rr = (t.rr + 1) % n
		if tried[idx] {
			continue
		}
		tried[idx] = true

		s := t.sessions[idx]
		if s.Done() {
			continue
		}
		cnt, err := s.nextPiece(buf)
		if err != nil {
			return s, 0, fmt.Errorf("upload: session %d: %w", s.id, err)
		}
		if cnt > 0 {
			return s, cnt, nil
		}
	}
	return nil, 0, nil
}

// Sessions returns a snapshot of the tunnel's current sessions.
func (t *Tunnel) Sessions() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, len(t.sessions))
	copy(out, t.sessions)
	return out
}

// speedCounter is a hand-rolled exponential moving average: no ecosystem
// EWMA library appears anywhere in the pack, and the formula itself is a
// three-line closure over a mutex, so pulling in a dependency for it
// would add an import without reducing code.
type speedCounter struct {
	mu      sync.Mutex
	ema     float64
	last    time.Time
	started bool
}

const speedCounterAlpha = 0.2

func newSpeedCounter() *speedCounter {
	return &speedCounter{}
}

func (c *speedCounter) observe(n int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		c.last = now
		c.started = true
		return
	}
	elapsed := now.Sub(c.last).Seconds()
	c.last = now
	if elapsed <= 0 {
		return
	}
	instant := float64(n) / elapsed
	c.ema = speedCounterAlpha*instant + (1-speedCounterAlpha)*c.ema
}

func (c *speedCounter) value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ema
}
