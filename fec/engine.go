package fec

import "github.com/sliqtransport/sliq/wire"

// pendingPacket is a buffered outbound source packet awaiting its group.
type pendingPacket struct {
	seq  uint32
	data []byte
}

// Engine is the per-stream FEC state described by the group-partitioning
// and conditional-retransmission scheme: it buffers outbound packets into
// groups of K, drives each group's FEC table lookups round by round, and
// reassembles groups on the receive side.
type Engine struct {
	K       int
	N       int
	TgtPrcv float64
	per     float64

	nextGroupID uint16
	pending     []pendingPacket
	sendGroups  map[uint16]*Group
	recvGroups  map[uint16]*Group

	// seqToGroup lets the sender locate a group from an ACKed sequence
	// number without scanning every active group.
	seqToGroup map[uint32]uint16
	groupRange map[uint16][2]uint32
}

// NewEngine creates an FEC engine for one stream. With k == 1 each group
// holds a single source packet; it is sent without parity whenever n
// reaches the ARQ cutover (see DofToSend), and otherwise the table lookup
// may add coded packets for it like for any other group.
func NewEngine(k, n int, tgtPrcv float64) *Engine {
	if k < 1 {
		k = 1
	}
	return &Engine{
		K:          k,
		N:          n,
		TgtPrcv:    tgtPrcv,
		per:        0.10,
		sendGroups: make(map[uint16]*Group),
		recvGroups: make(map[uint16]*Group),
		seqToGroup: make(map[uint32]uint16),
		groupRange: make(map[uint16][2]uint32),
	}
}

// SetLossEstimate updates the loss rate used for subsequent table
// lookups, typically fed by the congestion controller's loss tracker.
func (e *Engine) SetLossEstimate(per float64) { e.per = per }

// Submit buffers one outbound source packet. Once K packets have
// accumulated it forms a new send group and returns it; otherwise it
// returns nil.
func (e *Engine) Submit(seq uint32, data []byte) *Group {
	e.pending = append(e.pending, pendingPacket{seq: seq, data: data})
	if len(e.pending) < e.K {
		return nil
	}
	return e.flushGroup()
}

// Flush forces out a partial group (fewer than K source packets) from
// whatever is currently buffered, for use when a stream is closing or has
// been idle long enough that waiting further would miss its delivery
// target. Returns nil if nothing is pending.
func (e *Engine) Flush() *Group {
	if len(e.pending) == 0 {
		return nil
	}
	return e.flushGroup()
}

func (e *Engine) flushGroup() *Group {
	source := make([][]byte, len(e.pending))
	lo, hi := e.pending[0].seq, e.pending[0].seq
	for i, p := range e.pending {
		source[i] = p.data
		if p.seq < lo {
			lo = p.seq
		}
		if p.seq > hi {
			hi = p.seq
		}
	}
	id := e.nextGroupID
	e.nextGroupID++
	g := NewSendGroup(id, source, e.N, e.per, e.TgtPrcv)
	e.sendGroups[id] = g
	e.groupRange[id] = [2]uint32{lo, hi}
	for _, p := range e.pending {
		e.seqToGroup[p.seq] = id
	}
	e.pending = e.pending[:0]
	return g
}

// ObserveAck feeds the sender-side group tracking the receiver's known
// source/coded receipt counts for the group that owns seq.
func (e *Engine) ObserveAck(seq uint32, srcRcvd, codedRcvd int) {
	id, ok := e.seqToGroup[seq]
	if !ok {
		return
	}
	if g, ok := e.sendGroups[id]; ok {
		g.ObserveAck(srcRcvd, codedRcvd)
		if g.Retired() {
			e.reapSendGroup(id)
		}
	}
}

// MoveForwardBarrier retires any send group whose entire sequence range
// lies behind barrier, per the group-lifetime rule that a move-forward
// past a group's range retires it.
func (e *Engine) MoveForwardBarrier(barrier uint32) []*Group {
	var retired []*Group
	for id, rng := range e.groupRange {
		if rng[1] < barrier {
			if g, ok := e.sendGroups[id]; ok {
				g.MoveForward()
				retired = append(retired, g)
				e.reapSendGroup(id)
			}
		}
	}
	return retired
}

func (e *Engine) reapSendGroup(id uint16) {
	rng, ok := e.groupRange[id]
	if !ok {
		return
	}
	delete(e.sendGroups, id)
	delete(e.groupRange, id)
	for seq := rng[0]; seq <= rng[1]; seq++ {
		delete(e.seqToGroup, seq)
	}
}

// SendGroup returns an active send-side group by id, if any.
func (e *Engine) SendGroup(id uint16) (*Group, bool) {
	g, ok := e.sendGroups[id]
	return g, ok
}

// Receive feeds one arriving shard into its group, creating the group's
// receive-side tracker on first sight. It returns the reconstructed
// source shards once the group becomes decodable, along with the stream
// sequence number of the first recovered shard (baseOk is false if no
// source shard ever arrived to anchor the group's sequence range, in
// which case the recovered payloads cannot be placed in the stream).
func (e *Engine) Receive(groupID uint16, numSrc int, s Shard) (recovered [][]byte, baseSeq uint32, baseOk bool, err error) {
	g, ok := e.recvGroups[groupID]
	if !ok {
		g = NewReceiveGroup(groupID, numSrc, e.N, e.per, e.TgtPrcv)
		e.recvGroups[groupID] = g
	}
	recovered, err = g.ReceiveShard(s)
	if err != nil {
		return nil, 0, false, err
	}
	if recovered != nil {
		delete(e.recvGroups, groupID)
		baseSeq, baseOk = g.BaseSeq()
	}
	return recovered, baseSeq, baseOk, nil
}

// ShardFromHeader extracts a Shard descriptor from a decoded Data header
// carrying FEC fields, and reports whether the header was FEC-tagged at
// all.
func ShardFromHeader(h wire.DataHeader) (groupID uint16, numSrc int, shard Shard, ok bool) {
	if h.Fec == nil {
		return 0, 0, Shard{}, false
	}
	return h.Fec.Group, int(h.Fec.NumSrc), Shard{
		Type:  h.Fec.Type,
		Index: h.Fec.Index,
		Data:  h.Payload,
		Seq:   h.Seq,
	}, true
}
