// Package sentpacket tracks in-flight packets for one stream: it records
// what was sent and when, consumes ACKs to mark packets delivered or
// lost, and maintains the RTT estimate that sizes the retransmission
// timer.
package sentpacket

import "time"

const (
	rttAlpha = 0.125
	rttBeta  = 0.25

	// InitialRTO is the retransmission timeout assumed before any RTT
	// sample has been taken.
	InitialRTO = 200 * time.Millisecond
	minRTO     = InitialRTO
	maxRTO     = 60 * time.Second
)

// RTTEstimator is the standard Jacobson/Karels smoothed RTT and RTT
// variance estimator.
type RTTEstimator struct {
	srtt        time.Duration
	rttvar      time.Duration
	initialized bool
}

// NewRTTEstimator returns a fresh, unseeded estimator.
func NewRTTEstimator() *RTTEstimator {
	return &RTTEstimator{}
}

// Update folds a new RTT sample into the estimate.
func (e *RTTEstimator) Update(sample time.Duration) {
	if sample < 0 {
		return
	}
	if !e.initialized {
		e.srtt = sample
		e.rttvar = sample / 2
		e.initialized = true
		return
	}
	diff := e.srtt - sample
	if diff < 0 {
		diff = -diff
	}
	e.rttvar = e.rttvar + time.Duration(rttBeta*(float64(diff)-float64(e.rttvar)))
	e.srtt = e.srtt + time.Duration(rttAlpha*(float64(sample)-float64(e.srtt)))
}

// SRTT returns the current smoothed RTT, or zero if no sample has been
// taken yet.
func (e *RTTEstimator) SRTT() time.Duration { return e.srtt }

// RTO returns the retransmission timeout, srtt + 4*rttvar, clamped to
// [minRTO, maxRTO]. Before any sample is seen it returns minRTO.
func (e *RTTEstimator) RTO() time.Duration {
	if !e.initialized {
		return minRTO
	}
	rto := e.srtt + 4*e.rttvar
	if rto < minRTO {
		return minRTO
	}
	if rto > maxRTO {
		return maxRTO
	}
	return rto
}
