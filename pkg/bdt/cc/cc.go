// Package cc implements pluggable congestion control for BDT streams
// (§4.7): a delay-based Ledbat controller and a loss-based AIMD fallback,
// both driven by the same Controller interface so a Stream's send side
// doesn't need to know which algorithm it's running.
package cc

import "time"

// Controller is the congestion-control strategy a Stream's send side
// drives. Stream invokes every callback while holding its send mutex,
// so implementations don't need their own locking.
type Controller interface {
	// OnSent records that size bytes went out at now.
	OnSent(size int, now time.Time)

	// OnAck records that acked bytes were newly acknowledged, with the
	// measured RTT for the acknowledged packet.
	OnAck(acked int, rtt time.Duration, now time.Time)

	// OnLoss records a detected packet loss.
	OnLoss(now time.Time)

	// OnNoResp records that no response arrived before RTO expired.
	OnNoResp(now time.Time)

	// OnEstimate feeds a fresh one-way-delay sample, used by delay-based
	// controllers (Ledbat) to track queuing delay; no-op for others.
	OnEstimate(rtt, rto, delay time.Duration, appLimited bool)

	// OnTimeEscape lets a controller roll any time-windowed state even
	// when no packet event occurred, driven by the stream's idle timer.
	OnTimeEscape(now time.Time)

	// Cwnd returns the current congestion window, in bytes.
	Cwnd() uint64

	// Rate returns an explicit pacing rate in bytes/sec, or 0 if the
	// controller has no opinion (cwnd-only pacing).
	Rate() float64
}
