// Package reassembly implements per-stream receive-side ordering: tracking
// which sequence numbers have arrived, coalescing contiguous runs, and
// synthesizing the ACK blocks that summarize the out-of-order set.
package reassembly

import "sort"

// Delivery is one packet ready to be handed to the application, in the
// order Reassembly decides to release it.
type Delivery struct {
	Seq  uint32
	Data []byte
}

// Reassembly tracks one stream's receive-side ordering state.
type Reassembly struct {
	ordered   bool
	nextExp   uint32
	barrier   uint32
	outOfOrder map[uint32][]byte
	observed   []observedArrival // most-recent-first, capped at 7
}

type observedArrival struct {
	seq uint32
	ts  uint32
}

// New creates a Reassembly tracker starting at initial sequence number
// start. ordered selects in-order delivery; when false, packets are
// delivered to the application as they complete reassembly, without
// waiting for predecessors.
func New(start uint32, ordered bool) *Reassembly {
	return &Reassembly{
		ordered:    ordered,
		nextExp:    start,
		barrier:    start,
		outOfOrder: make(map[uint32][]byte),
	}
}

// Receive processes one arriving packet. It returns the deliveries this
// arrival unlocks (possibly more than one, if it completes a coalesced
// run) and whether the packet was accepted at all (false for
// duplicate/obsolete arrivals behind the barrier or next-expected mark).
func (r *Reassembly) Receive(seq uint32, ts uint32, data []byte) ([]Delivery, bool) {
	if seqLess(seq, r.barrier) || seqLess(seq, r.nextExp) {
		return nil, false
	}

	r.recordObserved(seq, ts)

	if seq == r.nextExp {
		r.outOfOrder[seq] = data
		run := r.drainRun()
		if !r.ordered {
			run = []Delivery{{Seq: seq, Data: data}}
		}
		return run, true
	}

	if _, dup := r.outOfOrder[seq]; dup {
		return nil, true
	}
	r.outOfOrder[seq] = data
	if !r.ordered {
		return []Delivery{{Seq: seq, Data: data}}, true
	}
	return nil, true
}

// drainRun advances nextExp across the contiguous run starting there and
// returns the run as deliveries (ordered streams only; unordered streams
// deliver immediately in Receive and never accumulate a pending run).
func (r *Reassembly) drainRun() []Delivery {
	var run []Delivery
	for {
		data, ok := r.outOfOrder[r.nextExp]
		if !ok {
			break
		}
		if r.ordered {
			run = append(run, Delivery{Seq: r.nextExp, Data: data})
		}
		delete(r.outOfOrder, r.nextExp)
		r.nextExp++
	}
	return run
}

// NextExpected returns the smallest sequence number not yet delivered,
// used as the ACK's NextExpectedSeq.
func (r *Reassembly) NextExpected() uint32 { return r.nextExp }

// SetMoveForwardBarrier advances the barrier, as when the sender abandons
// a semi-reliable range: any buffered sequences behind it are discarded
// and, if the barrier now covers nextExp, nextExp jumps forward to match.
func (r *Reassembly) SetMoveForwardBarrier(barrier uint32) {
	if seqLess(barrier, r.barrier) {
		return
	}
	r.barrier = barrier
	for seq := range r.outOfOrder {
		if seqLess(seq, barrier) {
			delete(r.outOfOrder, seq)
		}
	}
	if seqLess(r.nextExp, barrier) {
		r.nextExp = barrier
		r.drainRun()
	}
}

func (r *Reassembly) recordObserved(seq, ts uint32) {
	r.observed = append([]observedArrival{{seq: seq, ts: ts}}, r.observed...)
	if len(r.observed) > 7 {
		r.observed = r.observed[:7]
	}
}

// ObservedTime is one entry for the next outgoing ACK's observed-time
// list, most-recent-first.
type ObservedTime struct {
	Seq uint32
	Ts  uint32
}

// Observed returns up to 7 most recent observed-packet-time records for
// the next ACK.
func (r *Reassembly) Observed() []ObservedTime {
	out := make([]ObservedTime, len(r.observed))
	for i, o := range r.observed {
		out[i] = ObservedTime{Seq: o.seq, Ts: o.ts}
	}
	return out
}

// AckBlock mirrors wire.AckBlock without importing the wire package, to
// keep this package's dependency surface narrow.
type AckBlock struct {
	Type   uint8
	Offset uint16
}

// Blocks synthesizes the ACK block run describing the out-of-order set
// held above NextExpected. Sequences behind the move-forward barrier are
// always excluded (nothing behind it is tracked), and when
// suppressPastBarrier is set no blocks are produced at all. Stream sets
// it for a semi-reliable stream once the peer's FIN has arrived; it is
// not tied to whether a move-forward has been received.
func (r *Reassembly) Blocks(suppressPastBarrier bool) []AckBlock {
	if suppressPastBarrier || len(r.outOfOrder) == 0 {
		return nil
	}
	seqs := make([]uint32, 0, len(r.outOfOrder))
	for seq := range r.outOfOrder {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqLess(seqs[i], seqs[j]) })

	var blocks []AckBlock
	i := 0
	for i < len(seqs) {
		start := i
		for i+1 < len(seqs) && seqs[i+1] == seqs[i]+1 {
			i++
		}
		if i == start {
			blocks = append(blocks, AckBlock{Type: 0, Offset: offset(seqs[start], r.nextExp)})
		} else {
			blocks = append(blocks, AckBlock{Type: 1, Offset: offset(seqs[start], r.nextExp)})
			blocks = append(blocks, AckBlock{Type: 1, Offset: offset(seqs[i], r.nextExp)})
		}
		i++
	}
	return blocks
}

func offset(seq, base uint32) uint16 {
	d := seq - base
	if d > 0x7fff {
		d = 0x7fff
	}
	return uint16(d)
}

func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}
