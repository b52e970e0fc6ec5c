package cc

import "time"

// LossBasedConfig tunes the AIMD controller.
type LossBasedConfig struct {
	MinCwnd      uint64 // bytes
	InitialCwnd  uint64 // bytes
	AdditiveInc  uint64 // bytes added to cwnd per RTT of sustained acks
	LossMultiplier float64 // cwnd *= this on loss (0.5 = classic TCP)
}

// DefaultLossBasedConfig is "Default loss-based" from §4.7: a plain
// additive-increase/multiplicative-decrease window, the fallback when a
// path's delay signal isn't trustworthy enough for Ledbat.
func DefaultLossBasedConfig(mss int) LossBasedConfig {
	return LossBasedConfig{
		MinCwnd:        uint64(2 * mss),
		InitialCwnd:    uint64(4 * mss),
		AdditiveInc:    uint64(mss),
		LossMultiplier: 0.5,
	}
}

// LossBased is a standard AIMD congestion controller: cwnd grows by
// AdditiveInc worth of bytes for every window's acks and is cut by
// LossMultiplier on loss, floored at MinCwnd.
type LossBased struct {
	cfg  LossBasedConfig
	cwnd uint64

	ackedThisWindow uint64
}

func NewLossBased(cfg LossBasedConfig) *LossBased {
	return &LossBased{cfg: cfg, cwnd: cfg.InitialCwnd}
}

func (l *LossBased) OnSent(size int, now time.Time) {}

func (l *LossBased) Cwnd() uint64 { return l.cwnd }

func (l *LossBased) OnEstimate(rtt, rto, delay time.Duration, appLimited bool) {}

func (l *LossBased) OnAck(acked int, rtt time.Duration, now time.Time) {
	if acked <= 0 {
		return
	}
	l.ackedThisWindow += uint64(acked)
	if l.ackedThisWindow >= l.cwnd {
		l.ackedThisWindow = 0
		l.cwnd += l.cfg.AdditiveInc
	}
}

func (l *LossBased) OnLoss(now time.Time) {
	reduced := uint64(float64(l.cwnd) * l.cfg.LossMultiplier)
	if reduced < l.cfg.MinCwnd {
		reduced = l.cfg.MinCwnd
	}
	l.cwnd = reduced
	l.ackedThisWindow = 0
}

func (l *LossBased) OnNoResp(now time.Time) {
	l.cwnd = l.cfg.MinCwnd
	l.ackedThisWindow = 0
}

func (l *LossBased) OnTimeEscape(now time.Time) {}

func (l *LossBased) Rate() float64 { return 0 }
