package cc

import (
	"container/ring"
	"time"
)

// LedbatConfig tunes the delay-based controller.
type LedbatConfig struct {
	TargetDelay        time.Duration
	MinCwnd            uint64 // in MSS units; scaled by mss in NewLedbat
	MaxCwndInc         uint64 // in MSS units
	CwndGain           uint64 // in MSS units
	HistoryCount       int
	HistoryRollInterval time.Duration
}

// DefaultLedbatConfig returns the historical LEDBAT tuning defaults.
func DefaultLedbatConfig() LedbatConfig {
	return LedbatConfig{
		TargetDelay:         100 * time.Millisecond,
		MinCwnd:             2,
		MaxCwndInc:          8,
		CwndGain:            1,
		HistoryCount:        10,
		HistoryRollInterval: 60 * time.Second,
	}
}

// estimateDelay tracks rolling minima of base delay (the floor, rolled
// every HistoryRollInterval across HistoryCount buckets) and current
// delay (the last HistoryCount raw samples), so queuingDelay = current -
// base approximates standing queue depth independent of path latency.
type estimateDelay struct {
	lastRoll     time.Time
	rollInterval time.Duration

	baseDelay    *ring.Ring // int64 microseconds, one slot per roll period
	currentDelay *ring.Ring // int64 microseconds, one slot per sample
}

const maxDelay = int64(1) << 62

func newEstimateDelay(cfg LedbatConfig, now time.Time) *estimateDelay {
	base := ring.New(cfg.HistoryCount)
	for i := 0; i < base.Len(); i++ {
		base.Value = maxDelay
		base = base.Next()
	}
	cur := ring.New(cfg.HistoryCount)
	for i := 0; i < cur.Len(); i++ {
		cur.Value = maxDelay
		cur = cur.Next()
	}
	return &estimateDelay{
		lastRoll:     now.Add(-cfg.HistoryRollInterval),
		rollInterval: cfg.HistoryRollInterval,
		baseDelay:    base,
		currentDelay: cur,
	}
}

func ringMin(r *ring.Ring) int64 {
	min := maxDelay
	r.Do(func(v interface{}) {
		if d := v.(int64); d < min {
			min = d
		}
	})
	return min
}

func (e *estimateDelay) currentMin() int64 { return ringMin(e.currentDelay) }
func (e *estimateDelay) baseMin() int64    { return ringMin(e.baseDelay) }

// update records a fresh one-way-delay sample (microseconds): it tightens
// the current roll period's base-delay slot and slides into the current-
// delay window.
func (e *estimateDelay) update(delay int64) {
	tail := e.baseDelay.Prev()
	if cur := tail.Value.(int64); delay < cur {
		tail.Value = delay
	}

	e.currentDelay.Value = delay
	e.currentDelay = e.currentDelay.Next()
}

// checkRoll advances the base-delay window once HistoryRollInterval has
// elapsed, starting a fresh minimum-tracking slot; if every slot is still
// at its sentinel (no samples arrived across a full history), the
// current-delay window is reset too, since queuingDelay is meaningless
// without a base to measure against.
func (e *estimateDelay) checkRoll(now time.Time) {
	if now.Sub(e.lastRoll) <= e.rollInterval {
		return
	}
	e.lastRoll = now
	e.baseDelay = e.baseDelay.Next()
	e.baseDelay.Value = maxDelay

	if e.baseMin() == maxDelay {
		r := e.currentDelay
		for i := 0; i < r.Len(); i++ {
			r.Value = maxDelay
			r = r.Next()
		}
	}
}

// Ledbat is the delay-based congestion controller from §4.7, grounded
// directly on cyfs-bdt's ledbat.rs: cwnd grows in proportion to how far
// queuing delay sits below TargetDelay, and halves outright on loss.
type Ledbat struct {
	mss    int
	cfg    LedbatConfig
	cwnd   uint64
	estDelay *estimateDelay
}

// NewLedbat scales cfg's MSS-unit fields by mss and starts cwnd at the
// scaled MinCwnd.
func NewLedbat(mss int, cfg LedbatConfig, now time.Time) *Ledbat {
	scaled := cfg
	scaled.MinCwnd = cfg.MinCwnd * uint64(mss)
	scaled.MaxCwndInc = cfg.MaxCwndInc * uint64(mss)
	scaled.CwndGain = cfg.CwndGain * uint64(mss)
	return &Ledbat{
		mss:      mss,
		cfg:      scaled,
		cwnd:     scaled.MinCwnd,
		estDelay: newEstimateDelay(scaled, now),
	}
}

func (l *Ledbat) OnSent(size int, now time.Time) {}

func (l *Ledbat) Cwnd() uint64 { return l.cwnd }

func (l *Ledbat) OnEstimate(rtt, rto, delay time.Duration, appLimited bool) {
	l.estDelay.update(delay.Microseconds())
}

func (l *Ledbat) OnAck(acked int, rtt time.Duration, now time.Time) {
	if acked <= 0 {
		return
	}
	cwnd := l.cwnd
	curDelay := l.estDelay.currentMin()
	baseDelay := l.estDelay.baseMin()
	if curDelay == maxDelay || baseDelay == maxDelay {
		return
	}
	queuingDelay := curDelay - baseDelay

	target := float64(l.cfg.TargetDelay.Microseconds())
	delayFactor := (target - float64(queuingDelay)) / target

	ackedU := uint64(acked)
	var cwndFactor float64
	if ackedU < cwnd {
		cwndFactor = float64(ackedU) / float64(cwnd)
	} else {
		cwndFactor = float64(cwnd) / float64(ackedU)
	}

	scaledGain := int64(float64(l.cfg.MaxCwndInc) * cwndFactor * delayFactor)
	newCwnd := int64(cwnd) + scaledGain
	if newCwnd < int64(l.cfg.MinCwnd) {
		newCwnd = int64(l.cfg.MinCwnd)
	}
	l.cwnd = uint64(newCwnd)
}

func (l *Ledbat) OnLoss(now time.Time) {
	half := l.cwnd / 2
	if half < l.cfg.MinCwnd {
		half = l.cfg.MinCwnd
	}
	l.cwnd = half
}

func (l *Ledbat) OnNoResp(now time.Time) {
	l.cwnd = l.cfg.MinCwnd
}

func (l *Ledbat) OnTimeEscape(now time.Time) {
	l.estDelay.checkRoll(now)
}

func (l *Ledbat) Rate() float64 { return 0 }
