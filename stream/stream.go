// Package stream implements one SLIQ stream: the composition of the FEC
// engine, sent-packet manager and receive reassembly behind the
// send/recv/close/reset surface the application and Connection use.
package stream

import (
	"sync"
	"time"

	"github.com/sliqtransport/sliq/ccadapter"
	"github.com/sliqtransport/sliq/fec"
	"github.com/sliqtransport/sliq/pkg/sliqerr"
	"github.com/sliqtransport/sliq/reassembly"
	"github.com/sliqtransport/sliq/sentpacket"
	"github.com/sliqtransport/sliq/wire"
)

// State is the stream's lifecycle position.
type State uint8

const (
	StateCreated State = iota
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
	StateReset
)

func (s State) Terminal() bool { return s == StateClosed || s == StateReset }

// Config parameterizes one stream, taken from its Stream-Create header.
type Config struct {
	ID             uint8
	Priority       uint8
	Ordered        bool
	Reliable       bool
	RexmitLimit    uint8
	FECGroupSize   int
	FECRounds      int
	FECTargetPrecv float64
	InitSeq        uint32

	// WindowSize bounds how many packets may be outstanding (sent, not yet
	// acked) at once. Zero means unbounded. AutoTuneWindow, when true,
	// treats WindowSize as a starting point that Send never blocks on;
	// when false, Send returns ErrFlowControlBlocked once the window
	// fills.
	WindowSize     uint32
	AutoTuneWindow bool
}

// groupRef tracks everything Stream needs to drive and account for one
// active FEC group, independent of fec.Engine's own bookkeeping (which
// only tracks the group by its original submission sequence).
type groupRef struct {
	group     *fec.Group
	seqToType map[uint32]wire.FecType
	srcAcked  int
	codedAcked int

	// lastRoundAt is when NextRoundShards was last called for this group;
	// a round only advances once the stream's measured RTO has elapsed
	// since then, so round progression tracks real ACK feedback instead
	// of however often the caller happens to invoke NextDataHeaders.
	lastRoundAt time.Time
}

// Stream is one bidirectional SLIQ stream.
type Stream struct {
	mu sync.Mutex

	cfg   Config
	state State

	nextSeq uint32
	fec     *fec.Engine
	sent    *sentpacket.Manager
	recv    *reassembly.Reassembly
	cc      ccadapter.Algorithm

	activeGroups map[uint16]*groupRef
	seqToGroup   map[uint32]uint16

	finSent     bool
	finRecvSeq  *uint32
	pendingFin  bool
	recvQueue   [][]byte

	pendingRexmit []uint32
	outMoveFwd    *uint32
	windowBlocked bool

	recvCount   uint32
	lastRecvSeq uint32
}

// New creates a stream in the Created state. cc may be nil, in which case
// every send is permitted immediately (equivalent to ccadapter's none
// algorithm).
func New(cfg Config, cc ccadapter.Algorithm) *Stream {
	if cc == nil {
		cc = ccadapter.New(ccadapter.TypeNone, 0)
	}
	k := cfg.FECGroupSize
	if k < 1 {
		k = 1
	}
	n := cfg.FECRounds
	if n < 1 {
		n = 1
	}
	return &Stream{
		cfg:          cfg,
		state:        StateCreated,
		nextSeq:      cfg.InitSeq,
		fec:          fec.NewEngine(k, n, cfg.FECTargetPrecv),
		sent:         sentpacket.NewManager(cfg.Reliable, cfg.RexmitLimit),
		recv:         reassembly.New(cfg.InitSeq, cfg.Ordered),
		cc:           cc,
		activeGroups: make(map[uint16]*groupRef),
		seqToGroup:   make(map[uint32]uint16),
	}
}

// Open transitions a freshly created stream to Open, once both ends have
// exchanged Stream-Create.
func (s *Stream) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCreated {
		s.state = StateOpen
	}
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Priority returns the stream's packing priority (lower sends first),
// fixed at creation time.
func (s *Stream) Priority() uint8 { return s.cfg.Priority }

// Send enqueues payload for transmission.
func (s *Stream) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || s.state == StateHalfClosedLocal {
		return sliqerr.ErrStreamClosed
	}
	if s.finSent || s.pendingFin {
		return sliqerr.ErrStreamClosed
	}
	if s.cfg.WindowSize > 0 && !s.cfg.AutoTuneWindow {
		if uint32(s.sent.Outstanding()) >= s.cfg.WindowSize {
			s.windowBlocked = true
			return sliqerr.ErrFlowControlBlocked
		}
	}
	// Wire sequence numbers are assigned per shard in NextDataHeaders; the
	// sequence handed to the FEC engine here is only its own bookkeeping.
	if g := s.fec.Submit(s.nextSeq, payload); g != nil {
		s.registerGroup(g)
	}
	return nil
}

// Close marks the stream for a FIN once its buffered data drains.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return sliqerr.ErrStreamClosed
	}
	s.pendingFin = true
	if g := s.fec.Flush(); g != nil {
		s.registerGroup(g)
	}
	return nil
}

// Recv returns the next delivered payload, or ErrStreamEmpty if none is
// ready, or ErrStreamClosed once both a FIN has been received and every
// buffered payload has been drained.
func (s *Stream) Recv() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recvQueue) == 0 {
		if s.state == StateHalfClosedRemote || s.state == StateClosed {
			return nil, sliqerr.ErrStreamClosed
		}
		return nil, sliqerr.ErrStreamEmpty
	}
	payload := s.recvQueue[0]
	s.recvQueue = s.recvQueue[1:]
	return payload, nil
}

func (s *Stream) registerGroup(g *fec.Group) {
	ref := &groupRef{group: g, seqToType: make(map[uint32]wire.FecType)}
	s.activeGroups[g.ID] = ref
}

// NextDataHeaders first resends the packets queued for retransmission
// (under their original sequence numbers and current retransmission
// counts), then asks the stream's active FEC groups (oldest first) for
// their next round of shards and wraps each into a Data header assigned a
// fresh sequence number, a retransmission count of zero, and the given
// clock value. now is used to seed the sent-packet manager's RTT clock.
func (s *Stream) NextDataHeaders(clockNow uint32, now time.Time) ([]wire.DataHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []wire.DataHeader
	outstandingBefore := s.sent.Outstanding()

	rto := s.sent.RTO()
	for _, seq := range s.pendingRexmit {
		snap, ok := s.sent.Snapshot(seq)
		if !ok {
			continue
		}
		h := wire.DataHeader{
			StreamID: s.cfg.ID,
			Seq:      seq,
			Ts:       clockNow,
			Rexmit:   snap.RexmitCount,
			Payload:  snap.Data,
		}
		out = append(out, h)
		s.sent.OnSend(seq, snap.Data, snap.RexmitCount, now)
	}
	s.pendingRexmit = nil

	ids := make([]uint16, 0, len(s.activeGroups))
	for id := range s.activeGroups {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	for _, id := range ids {
		ref := s.activeGroups[id]
		if !ref.lastRoundAt.IsZero() && now.Sub(ref.lastRoundAt) < rto {
			continue // wait for the round's ACK feedback before advancing
		}
		shards, err := ref.group.NextRoundShards()
		if err != nil {
			return nil, err
		}
		ref.lastRoundAt = now
		for _, sh := range shards {
			seq := s.nextSeq
			s.nextSeq++
			ref.seqToType[seq] = sh.Type
			s.seqToGroup[seq] = id

			h := wire.DataHeader{
				StreamID: s.cfg.ID,
				Seq:      seq,
				Ts:       clockNow,
				Payload:  sh.Data,
				Fec: &wire.FecFields{
					Type:   sh.Type,
					Index:  sh.Index,
					NumSrc: uint8(ref.group.K),
					Round:  uint8(ref.group.Round()),
					Group:  id,
				},
			}
			out = append(out, h)
			s.sent.OnSend(seq, sh.Data, 0, now)
		}
		if ref.group.Retired() {
			delete(s.activeGroups, id)
		}
	}

	if len(out) == 0 && s.pendingFin && !s.finSent {
		seq := s.nextSeq
		s.nextSeq++
		out = append(out, wire.DataHeader{
			StreamID: s.cfg.ID,
			Seq:      seq,
			Ts:       clockNow,
			Fin:      true,
		})
		s.sent.OnSend(seq, nil, 0, now)
		s.finSent = true
		if s.state == StateOpen {
			s.state = StateHalfClosedLocal
		} else if s.state == StateHalfClosedRemote {
			s.state = StateClosed
		}
	}

	if len(out) > 0 {
		if s.windowBlocked && (s.cfg.WindowSize == 0 || uint32(outstandingBefore) < s.cfg.WindowSize) {
			out[0].Persist = true
			s.windowBlocked = false
		}
		if s.outMoveFwd != nil {
			out[0].MoveFwdSeq = s.outMoveFwd
			s.outMoveFwd = nil
		}
	}
	return out, nil
}

// HandleData processes one arriving Data header for this stream.
func (s *Stream) HandleData(h wire.DataHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.MoveFwdSeq != nil {
		s.recv.SetMoveForwardBarrier(*h.MoveFwdSeq)
	}

	if groupID, numSrc, shard, ok := fec.ShardFromHeader(h); ok {
		recovered, baseSeq, baseOk, err := s.fec.Receive(groupID, numSrc, shard)
		if err != nil {
			return err
		}
		if recovered != nil {
			if !baseOk {
				// Reconstructed purely from coded shards with no source
				// shard ever seen: the original sequence numbers cannot
				// be recovered, so the payloads are unplaceable.
				return nil
			}
			for i, data := range recovered {
				s.deliverLocked(baseSeq+uint32(i), h.Ts, data)
			}
			return nil
		}
		if shard.Type != wire.FecSource {
			return nil // coded packet buffered inside the group, nothing to deliver yet
		}
	}

	s.deliverLocked(h.Seq, h.Ts, h.Payload)

	if h.Fin {
		v := h.Seq
		s.finRecvSeq = &v
		if s.state == StateOpen {
			s.state = StateHalfClosedRemote
		} else if s.state == StateHalfClosedLocal {
			s.state = StateClosed
		}
	}
	return nil
}

func (s *Stream) deliverLocked(seq, ts uint32, data []byte) {
	s.recvCount++
	s.lastRecvSeq = seq
	deliveries, accepted := s.recv.Receive(seq, ts, data)
	if !accepted {
		return
	}
	for _, d := range deliveries {
		s.recvQueue = append(s.recvQueue, d.Data)
	}
}

// RecvStats reports the running count of Data packets received on this
// stream and the most recent sequence number seen, for the
// Received-Packet-Count diagnostic supplement.
func (s *Stream) RecvStats() (count uint32, lastSeq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvCount, s.lastRecvSeq
}

// BuildAck synthesizes the next outgoing ACK for this stream.
func (s *Stream) BuildAck(clockNow uint32) wire.Ack {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs := s.recv.Observed()
	observedTimes := make([]wire.ObservedTime, len(obs))
	for i, o := range obs {
		observedTimes[i] = wire.ObservedTime{Seq: o.Seq, Ts: o.Ts}
	}
	blocks := s.recv.Blocks(!s.cfg.Reliable && s.finRecvSeq != nil)
	wireBlocks := make([]wire.AckBlock, len(blocks))
	for i, b := range blocks {
		wireBlocks[i] = wire.AckBlock{Type: b.Type, Offset: b.Offset}
	}
	return wire.Ack{
		StreamID:      s.cfg.ID,
		NextExpSeq:    s.recv.NextExpected(),
		Ts:            clockNow,
		ObservedTimes: observedTimes,
		Blocks:        wireBlocks,
	}
}

// HandleAck consumes a peer ACK for this stream, updating the sent-packet
// manager and the owning FEC groups' conditional retransmission state.
func (s *Stream) HandleAck(a wire.Ack, now time.Time, deltaOf func(seq uint32, ts uint32) time.Duration) sentpacket.AckResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	observed := make([]sentpacket.ObservedDelta, len(a.ObservedTimes))
	for i, ot := range a.ObservedTimes {
		observed[i] = sentpacket.ObservedDelta{Seq: ot.Seq, Delta: deltaOf(ot.Seq, ot.Ts)}
	}
	blocks := make([]sentpacket.AckBlock, len(a.Blocks))
	for i, b := range a.Blocks {
		blocks[i] = sentpacket.AckBlock{Seq: a.NextExpSeq + uint32(b.Offset)}
	}

	res := s.sent.OnAck(a.NextExpSeq, observed, blocks, now)
	for _, seq := range res.Acked {
		s.creditGroup(seq)
	}
	for _, seq := range res.Lost {
		s.handleLostLocked(seq)
	}
	s.reapRetiredGroups()
	return res
}

// RetransmitExpired scans for packets whose retransmission timeout has
// elapsed without having been declared lost by ACK feedback yet (the case
// where acks have simply stopped arriving), and feeds them through the
// same retransmit-or-abandon path as an ACK-detected loss.
func (s *Stream) RetransmitExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rto := s.sent.RTO()
	for _, seq := range s.sent.Expired(now, rto) {
		s.handleLostLocked(seq)
	}
}

// handleLostLocked decides, for one sequence number the sent-packet
// manager considers lost, whether it should be queued for retransmission
// (reliable mode, or semi-reliable still under its retransmit limit) or
// abandoned (semi-reliable past its limit, per §4.4) — in which case the
// stream's move-forward barrier advances past it so the receiver isn't
// left waiting for a packet that will never arrive.
func (s *Stream) handleLostLocked(seq uint32) {
	if s.sent.OnRetransmitTimeout(seq) {
		v := seq + 1
		if s.outMoveFwd == nil || seqLess(*s.outMoveFwd, v) {
			s.outMoveFwd = &v
		}
		return
	}
	s.pendingRexmit = append(s.pendingRexmit, seq)
}

// seqLess compares two wire sequence numbers with wraparound, consistent
// with the rest of the core's serial-number arithmetic.
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}

func (s *Stream) creditGroup(seq uint32) {
	id, ok := s.seqToGroup[seq]
	if !ok {
		return
	}
	ref, ok := s.activeGroups[id]
	if !ok {
		return
	}
	switch ref.seqToType[seq] {
	case wire.FecSource:
		ref.srcAcked++
	case wire.FecEncoded:
		ref.codedAcked++
	}
	ref.group.ObserveAck(ref.srcAcked, ref.codedAcked)
}

func (s *Stream) reapRetiredGroups() {
	for id, ref := range s.activeGroups {
		if ref.group.Retired() {
			delete(s.activeGroups, id)
		}
	}
}

// Reset immediately abandons the stream in both directions and returns
// the Stream-Reset header to send.
func (s *Stream) Reset(code sliqerr.StreamResetCode) wire.StreamReset {
	s.mu.Lock()
	defer s.mu.Unlock()
	finalSeq := s.nextSeq
	s.state = StateReset
	s.activeGroups = make(map[uint16]*groupRef)
	s.sent = sentpacket.NewManager(s.cfg.Reliable, s.cfg.RexmitLimit)
	s.pendingRexmit = nil
	return wire.StreamReset{
		StreamID:  s.cfg.ID,
		FinalSeq:  finalSeq,
		ErrorCode: code,
	}
}

// HandleReset applies a peer-initiated Stream-Reset: any of this
// endpoint's unacknowledged sent packets for the stream are abandoned
// silently.
func (s *Stream) HandleReset(sr wire.StreamReset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReset
	s.activeGroups = make(map[uint16]*groupRef)
	s.sent = sentpacket.NewManager(s.cfg.Reliable, s.cfg.RexmitLimit)
	s.pendingRexmit = nil
}
