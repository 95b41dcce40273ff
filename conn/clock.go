package conn

import "time"

// Clock is the connection's free-running 32-bit microsecond counter,
// seeded at handshake completion. Every outbound Data and ACK carries its
// current value; since it wraps roughly every 71 minutes, comparisons
// between two clock values must use 32-bit serial-number arithmetic
// rather than plain less-than.
type Clock struct {
	epoch time.Time
}

// NewClock seeds a clock at t (normally handshake completion time).
func NewClock(t time.Time) Clock { return Clock{epoch: t} }

// Now returns the current microsecond count since the clock was seeded,
// truncated to 32 bits.
func (c Clock) Now(now time.Time) uint32 {
	return uint32(now.Sub(c.epoch).Microseconds())
}

// SerialLess reports whether a precedes b under 32-bit serial-number
// arithmetic (RFC 1982), correctly handling the wraparound case.
func SerialLess(a, b uint32) bool {
	return int32(a-b) < 0
}

// SerialDelta returns the signed microsecond distance from a to b,
// wraparound-correct, as a time.Duration.
func SerialDelta(a, b uint32) time.Duration {
	return time.Duration(int32(b-a)) * time.Microsecond
}
