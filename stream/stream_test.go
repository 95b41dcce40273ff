package stream

import (
	"testing"
	"time"

	"github.com/sliqtransport/sliq/wire"
)

func testConfig() Config {
	return Config{
		ID:             1,
		Priority:       0,
		Ordered:        true,
		Reliable:       true,
		RexmitLimit:    5,
		FECGroupSize:   1, // pure ARQ: simplest end-to-end path to exercise
		FECRounds:      3,
		FECTargetPrecv: 0.99,
	}
}

func TestSendProducesDataHeader(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	if err := s.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	headers, err := s.NextDataHeaders(1000, time.Now())
	if err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if len(headers) != 1 {
		t.Fatalf("expected 1 data header (k=1 group flushes immediately), got %d", len(headers))
	}
	if string(headers[0].Payload) != "hello" {
		t.Errorf("unexpected payload: %q", headers[0].Payload)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	s.Close()
	if err := s.Send([]byte("x")); err == nil {
		t.Errorf("expected Send after Close to fail")
	}
}

func TestRecvEmptyBeforeAnyData(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	if _, err := s.Recv(); err == nil {
		t.Errorf("expected ErrStreamEmpty on a fresh stream")
	}
}

func TestHandleDataDeliversInOrder(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	if err := s.HandleData(wire.DataHeader{StreamID: 1, Seq: 0, Payload: []byte("a")}); err != nil {
		t.Fatalf("HandleData: %v", err)
	}
	got, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(got) != "a" {
		t.Errorf("expected payload 'a', got %q", got)
	}
}

func TestFinTransitionsToHalfClosedRemote(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	if err := s.HandleData(wire.DataHeader{StreamID: 1, Seq: 0, Fin: true}); err != nil {
		t.Fatalf("HandleData: %v", err)
	}
	if got := s.State(); got != StateHalfClosedRemote {
		t.Errorf("expected HalfClosedRemote after FIN, got %v", got)
	}
}

func TestResetMakesStreamTerminal(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	sr := s.Reset(0)
	if sr.StreamID != 1 {
		t.Errorf("expected reset header to carry stream id 1, got %d", sr.StreamID)
	}
	if !s.State().Terminal() {
		t.Errorf("expected Reset to make the stream terminal")
	}
}

func TestBuildAckReflectsReceivedState(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	s.HandleData(wire.DataHeader{StreamID: 1, Seq: 0, Payload: []byte("a")})
	s.HandleData(wire.DataHeader{StreamID: 1, Seq: 2, Payload: []byte("c")})
	ack := s.BuildAck(42)
	if ack.NextExpSeq != 1 {
		t.Errorf("expected NES=1, got %d", ack.NextExpSeq)
	}
	if len(ack.Blocks) != 1 {
		t.Errorf("expected 1 isolated block for seq 2, got %d", len(ack.Blocks))
	}
}

func TestFECRoundWaitsForRTOBeforeAdvancing(t *testing.T) {
	cfg := testConfig()
	cfg.FECGroupSize = 2
	cfg.FECRounds = 3
	s := New(cfg, nil)
	s.Open()
	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send([]byte("b")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	now := time.Now()
	first, err := s.NextDataHeaders(0, now)
	if err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("expected the first round to produce shards")
	}

	// Calling again immediately, well inside the RTO, must not advance
	// the group to a second round.
	again, err := s.NextDataHeaders(0, now.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no new shards before RTO elapses, got %d", len(again))
	}

	// Once the RTO has elapsed, the round may advance.
	later, err := s.NextDataHeaders(0, now.Add(time.Second))
	if err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if len(later) == 0 {
		t.Fatalf("expected a new round of shards once RTO elapsed")
	}
}

func TestHandleAckRetransmitsStaleReliablePacket(t *testing.T) {
	s := New(testConfig(), nil)
	s.Open()
	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	now := time.Now()
	if _, err := s.NextDataHeaders(0, now); err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}

	// Three stale ACKs that never name seq 0 declare it lost; reliable
	// mode must requeue it for retransmission rather than abandon it.
	for i := 0; i < 3; i++ {
		s.HandleAck(wire.Ack{StreamID: 1, NextExpSeq: 0}, now, func(uint32, uint32) time.Duration { return 0 })
	}

	headers, err := s.NextDataHeaders(0, now)
	if err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if len(headers) != 1 || headers[0].Seq != 0 {
		t.Fatalf("expected seq 0 to be retransmitted, got %v", headers)
	}
	if headers[0].Rexmit == 0 {
		t.Errorf("expected retransmitted header to carry a nonzero rexmit count")
	}
}

func TestHandleAckAbandonsPastRexmitLimitAndMovesForward(t *testing.T) {
	cfg := testConfig()
	cfg.Reliable = false
	cfg.RexmitLimit = 1
	s := New(cfg, nil)
	s.Open()
	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send([]byte("b")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	now := time.Now()
	if _, err := s.NextDataHeaders(0, now); err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}

	for i := 0; i < 3; i++ {
		s.HandleAck(wire.Ack{StreamID: 1, NextExpSeq: 0}, now, func(uint32, uint32) time.Duration { return 0 })
	}

	later := now.Add(time.Second)
	headers, err := s.NextDataHeaders(0, later)
	if err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if len(headers) == 0 {
		t.Fatalf("expected seq 1 to still be sendable despite seq 0's abandonment")
	}
	if headers[0].MoveFwdSeq == nil || *headers[0].MoveFwdSeq != 1 {
		t.Fatalf("expected a move-forward barrier past abandoned seq 0, got %v", headers[0].MoveFwdSeq)
	}
}

func TestSendBlocksOnFullWindowWithoutAutoTune(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 1
	s := New(cfg, nil)
	s.Open()
	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := s.NextDataHeaders(0, time.Now()); err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if err := s.Send([]byte("b")); err == nil {
		t.Fatalf("expected Send to block once the window is full")
	}
}

func TestSendNeverBlocksWithAutoTune(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 1
	cfg.AutoTuneWindow = true
	s := New(cfg, nil)
	s.Open()
	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := s.NextDataHeaders(0, time.Now()); err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if err := s.Send([]byte("b")); err != nil {
		t.Fatalf("expected auto-tune to never block Send, got %v", err)
	}
}

func TestPersistHeaderSentOnWindowReopen(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 1
	s := New(cfg, nil)
	s.Open()
	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	now := time.Now()
	if _, err := s.NextDataHeaders(0, now); err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if err := s.Send([]byte("b")); err == nil {
		t.Fatalf("expected the window to be full")
	}

	s.HandleAck(wire.Ack{StreamID: 1, NextExpSeq: 1}, now, func(uint32, uint32) time.Duration { return 0 })
	if err := s.Send([]byte("b")); err != nil {
		t.Fatalf("expected Send to succeed once the window reopened: %v", err)
	}
	headers, err := s.NextDataHeaders(0, now)
	if err != nil {
		t.Fatalf("NextDataHeaders: %v", err)
	}
	if len(headers) != 1 || !headers[0].Persist {
		t.Fatalf("expected the reopening send to carry Persist, got %v", headers)
	}
}
