package sentpacket

import (
	"testing"
	"time"
)

func TestOnAckImplicitAcksBelowNES(t *testing.T) {
	m := NewManager(true, 5)
	now := time.Now()
	m.OnSend(1, []byte("a"), 0, now)
	m.OnSend(2, []byte("b"), 0, now)
	m.OnSend(3, []byte("c"), 0, now)

	res := m.OnAck(3, nil, nil, now.Add(10*time.Millisecond))
	if len(res.Acked) != 2 {
		t.Fatalf("expected 2 implicit acks, got %d: %v", len(res.Acked), res.Acked)
	}
	if m.InFlight(1) || m.InFlight(2) {
		t.Errorf("expected seq 1 and 2 to no longer be in flight")
	}
	if !m.InFlight(3) {
		t.Errorf("expected seq 3 (== NES) to remain in flight")
	}
}

func TestOnAckBlockAcksAboveNES(t *testing.T) {
	m := NewManager(true, 5)
	now := time.Now()
	m.OnSend(5, []byte("a"), 0, now)
	m.OnSend(6, []byte("b"), 0, now)

	res := m.OnAck(5, nil, []AckBlock{{Seq: 6}}, now)
	if len(res.Acked) != 1 || res.Acked[0] != 6 {
		t.Fatalf("expected block to ack seq 6, got %v", res.Acked)
	}
}

func TestOnAckRTTSampleKarnEnforced(t *testing.T) {
	m := NewManager(true, 5)
	now := time.Now()
	m.OnSend(1, []byte("a"), 0, now)
	m.OnSend(2, []byte("b"), 3, now) // retransmitted packet, RexmitCount != 0

	later := now.Add(50 * time.Millisecond)
	m.OnAck(3, []ObservedDelta{
		{Seq: 1, Delta: 5 * time.Millisecond},
		{Seq: 2, Delta: 20 * time.Millisecond},
	}, nil, later)

	if m.rtt.SRTT() == 0 {
		t.Fatal("expected an RTT sample from the non-retransmitted packet")
	}
	// The retransmitted packet's sample (30ms) differs from the eligible
	// one (45ms), so srtt still equals the raw eligible sample
	// (first-sample seeding) only if the estimator saw exactly one update.
	want := later.Sub(now) - 5*time.Millisecond
	if m.rtt.SRTT() != want {
		t.Errorf("expected srtt %v from the single eligible sample, got %v", want, m.rtt.SRTT())
	}
}

func TestThreeConsecutiveStaleAcksDeclareLoss(t *testing.T) {
	m := NewManager(true, 5)
	now := time.Now()
	m.OnSend(1, []byte("a"), 0, now)
	m.OnSend(2, []byte("b"), 0, now)

	var last AckResult
	for i := 0; i < 3; i++ {
		last = m.OnAck(1, nil, nil, now)
	}
	if len(last.Lost) != 1 || last.Lost[0] != 1 {
		t.Fatalf("expected seq 1 to be declared lost after 3 stale ACKs, got %v", last.Lost)
	}
}

func TestSemiReliableAbandonsAtRexmitLimit(t *testing.T) {
	m := NewManager(false, 2)
	now := time.Now()
	m.OnSend(1, []byte("a"), 0, now)

	if abandon := m.OnRetransmitTimeout(1); abandon {
		t.Fatalf("should not abandon before reaching rexmitLimit")
	}
	if abandon := m.OnRetransmitTimeout(1); !abandon {
		t.Fatalf("expected abandonment once rexmitLimit reached")
	}
}

func TestReliableNeverAbandons(t *testing.T) {
	m := NewManager(true, 1)
	now := time.Now()
	m.OnSend(1, []byte("a"), 0, now)
	for i := 0; i < 10; i++ {
		if abandon := m.OnRetransmitTimeout(1); abandon {
			t.Fatalf("reliable mode must never abandon")
		}
	}
}

func TestOutstandingCountsOnlyUnacked(t *testing.T) {
	m := NewManager(true, 5)
	now := time.Now()
	m.OnSend(1, []byte("a"), 0, now)
	m.OnSend(2, []byte("b"), 0, now)
	m.OnSend(3, []byte("c"), 0, now)

	if n := m.Outstanding(); n != 3 {
		t.Fatalf("expected 3 outstanding, got %d", n)
	}
	m.OnAck(2, nil, nil, now)
	if n := m.Outstanding(); n != 2 {
		t.Fatalf("expected 2 outstanding after acking seq 1, got %d", n)
	}
}

func TestExpiredReturnsOldestFirstPastRTO(t *testing.T) {
	m := NewManager(true, 5)
	now := time.Now()
	m.OnSend(1, []byte("a"), 0, now)
	m.OnSend(2, []byte("b"), 0, now.Add(10*time.Millisecond))

	rto := 20 * time.Millisecond
	if got := m.Expired(now.Add(15*time.Millisecond), rto); len(got) != 0 {
		t.Fatalf("expected nothing expired yet, got %v", got)
	}
	got := m.Expired(now.Add(35*time.Millisecond), rto)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2] oldest first, got %v", got)
	}
}

func TestExpiredSkipsAcked(t *testing.T) {
	m := NewManager(true, 5)
	now := time.Now()
	m.OnSend(1, []byte("a"), 0, now)
	m.OnAck(2, nil, nil, now)

	if got := m.Expired(now.Add(time.Second), 10*time.Millisecond); len(got) != 0 {
		t.Fatalf("expected acked packet to be excluded, got %v", got)
	}
}
