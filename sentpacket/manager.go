package sentpacket

import (
	"sync"
	"time"
)

// SentPacket is one outstanding transmission attempt.
type SentPacket struct {
	Seq         uint32
	Data        []byte
	SentAt      time.Time
	RexmitCount uint8
	Acked       bool

	staleAckStreak uint8
}

// ObservedDelta is one ACK-reported (seq, one-way delta) sample, already
// converted from wire clock units to a duration by the caller.
type ObservedDelta struct {
	Seq   uint32
	Delta time.Duration
}

// AckBlock names a sequence the receiver has, independent of NES.
type AckBlock struct {
	Seq uint32
}

// lossStreakLimit is how many consecutive ACKs may pass a sequence by
// without naming it before it is declared lost.
const lossStreakLimit = 3

// Manager tracks in-flight packets for one stream and drives RTT
// estimation and loss detection from incoming ACKs.
type Manager struct {
	mu          sync.Mutex
	packets     map[uint32]*SentPacket
	order       []uint32 // ascending send order, for oldest-first scans
	rtt         *RTTEstimator
	reliable    bool
	rexmitLimit uint8
}

// NewManager creates a manager for one stream. reliable selects
// retransmit-until-acked semantics; when false (semi-reliable), packets
// are abandoned once their retransmission count reaches rexmitLimit.
func NewManager(reliable bool, rexmitLimit uint8) *Manager {
	return &Manager{
		packets:     make(map[uint32]*SentPacket),
		rtt:         NewRTTEstimator(),
		reliable:    reliable,
		rexmitLimit: rexmitLimit,
	}
}

// RTO returns the current retransmission timeout.
func (m *Manager) RTO() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rtt.RTO()
}

// OnSend records a freshly transmitted (or retransmitted) packet.
func (m *Manager) OnSend(seq uint32, data []byte, rexmitCount uint8, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.packets[seq]; !exists {
		m.order = append(m.order, seq)
	}
	m.packets[seq] = &SentPacket{
		Seq:         seq,
		Data:        data,
		SentAt:      now,
		RexmitCount: rexmitCount,
	}
}

// AckResult summarizes the effect of consuming one ACK.
type AckResult struct {
	Acked     []uint32
	Lost      []uint32
	Abandoned []uint32
}

// OnAck consumes one ACK's worth of information: every sequence below
// nes is implicitly acked, blocks name sequences at or above nes the
// receiver already has, and observed deltas feed RTT sampling (restricted
// to packets that were never retransmitted, since the wire format carries
// no per-attempt marker to disambiguate which transmission an ACK refers
// to — the strict form of Karn's algorithm available here).
func (m *Manager) OnAck(nes uint32, observed []ObservedDelta, blocks []AckBlock, now time.Time) AckResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res AckResult
	ackedSet := make(map[uint32]bool)

	for _, seq := range m.order {
		p, ok := m.packets[seq]
		if !ok || p.Acked {
			continue
		}
		if seqLess(seq, nes) {
			m.ackLocked(p, &res)
			ackedSet[seq] = true
		}
	}
	for _, b := range blocks {
		if p, ok := m.packets[b.Seq]; ok && !p.Acked {
			m.ackLocked(p, &res)
			ackedSet[b.Seq] = true
		}
	}

	for _, od := range observed {
		p, ok := m.packets[od.Seq]
		if !ok {
			continue
		}
		if p.RexmitCount != 0 {
			continue
		}
		sample := now.Sub(p.SentAt) - od.Delta
		if sample >= 0 {
			m.rtt.Update(sample)
		}
	}

	for _, seq := range m.order {
		p, ok := m.packets[seq]
		if !ok || p.Acked {
			continue
		}
		if ackedSet[seq] {
			continue
		}
		if seq != nes {
			continue
		}
		p.staleAckStreak++
		if p.staleAckStreak >= lossStreakLimit {
			res.Lost = append(res.Lost, seq)
		}
	}

	m.compact()
	return res
}

func (m *Manager) ackLocked(p *SentPacket, res *AckResult) {
	p.Acked = true
	p.staleAckStreak = 0
	res.Acked = append(res.Acked, p.Seq)
}

// OnRetransmitTimeout bumps the packet's retransmission count and returns
// whether the packet should be abandoned (semi-reliable mode once the
// count reaches rexmitLimit) rather than resent.
func (m *Manager) OnRetransmitTimeout(seq uint32) (abandon bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packets[seq]
	if !ok || p.Acked {
		return false
	}
	p.RexmitCount++
	if !m.reliable && p.RexmitCount >= m.rexmitLimit {
		delete(m.packets, seq)
		return true
	}
	return false
}

// Outstanding counts packets sent but not yet acknowledged, for flow
// control to compare against a stream's advertised window.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, seq := range m.order {
		if p, ok := m.packets[seq]; ok && !p.Acked {
			n++
		}
	}
	return n
}

// Expired returns, oldest first, the sequences still outstanding whose
// retransmission timeout has elapsed as of now. The caller is expected to
// follow up with OnRetransmitTimeout for each one.
func (m *Manager) Expired(now time.Time, rto time.Duration) []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uint32
	for _, seq := range m.order {
		p, ok := m.packets[seq]
		if !ok || p.Acked {
			continue
		}
		if now.Sub(p.SentAt) >= rto {
			out = append(out, seq)
		}
	}
	return out
}

// InFlight reports whether seq is still outstanding.
func (m *Manager) InFlight(seq uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packets[seq]
	return ok && !p.Acked
}

// Snapshot returns the current SentPacket for seq, for callers that need
// to read its retransmit count or data without holding the manager's
// lock across a retransmission decision.
func (m *Manager) Snapshot(seq uint32) (SentPacket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packets[seq]
	if !ok {
		return SentPacket{}, false
	}
	return *p, true
}

// compact drops acked and abandoned entries from the front of order once
// they are no longer referenced, bounding memory to the in-flight window.
func (m *Manager) compact() {
	i := 0
	for i < len(m.order) {
		seq := m.order[i]
		p, ok := m.packets[seq]
		if !ok {
			i++
			continue
		}
		if p.Acked {
			delete(m.packets, seq)
			i++
			continue
		}
		break
	}
	m.order = m.order[i:]
}

// seqLess compares two sequence numbers with wraparound, consistent with
// the connection-wide serial-number arithmetic.
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}
