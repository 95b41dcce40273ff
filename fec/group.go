package fec

import (
	"github.com/sliqtransport/sliq/internal/bitset"
	"github.com/sliqtransport/sliq/wire"
)

// maxCodedPerGroup bounds how many parity shards a group's Vandermonde
// matrix is generated for, independent of how many rounds actually end up
// sending any of them. Fixing this up front lets both sender and receiver
// agree on the codec shape (k, maxCodedPerGroup) without extra signaling;
// klauspost/reedsolomon's parity shards depend on the total parity count
// passed to New, so coded shards generated under different shapes are not
// mutually consistent.
const maxCodedPerGroup = 24

// Shard is one packet belonging to a group. Index is the packet's position
// within the group's degree-of-freedom sequence: 0..k-1 for source
// shards, k..k+maxCodedPerGroup-1 for coded shards. Seq is the packet's
// stream-wide wire sequence number, needed on the receive side to recover
// the original sequence numbers of source shards reconstructed purely
// from coded shards.
type Shard struct {
	Type  wire.FecType
	Index uint8
	Data  []byte
	Seq   uint32
}

// Group tracks one FEC group's lifetime on both the send and receive side.
type Group struct {
	ID      uint16
	K       int
	N       int
	Per     float64
	TgtPrcv float64

	round     int
	source    [][]byte
	coded     [][]byte // lazily generated, length maxCodedPerGroup once computed
	codedSent int

	srcRcvd     int
	codedRcvd   int
	received    *bitset.Bitset
	codedShards map[uint8][]byte
	retired     bool

	// baseSeq is the stream sequence number of source index 0, learned
	// from the first source shard to arrive (base = seq - index, true for
	// any source shard since round 1 assigns them contiguously).
	baseSeq    uint32
	haveBase   bool
}

// BaseSeq returns the group's source-index-0 sequence number and whether
// it has been learned yet. It is unknown until at least one source shard
// has arrived; a group fully reconstructed from coded shards alone never
// learns it, and its recovered source payloads cannot be placed back into
// the stream's sequence space.
func (g *Group) BaseSeq() (uint32, bool) { return g.baseSeq, g.haveBase }

// NewSendGroup starts a send-side group with its full complement of k
// source shards already known, per the systematic-coding requirement that
// all source packets precede any coded packet.
func NewSendGroup(id uint16, source [][]byte, n int, per, tgtPrcv float64) *Group {
	return &Group{
		ID:       id,
		K:        len(source),
		N:        n,
		Per:      per,
		TgtPrcv:  tgtPrcv,
		source:   source,
		received: bitset.New(uint32(len(source))),
	}
}

// NewReceiveGroup starts a receive-side group whose source shards arrive
// incrementally.
func NewReceiveGroup(id uint16, k, n int, per, tgtPrcv float64) *Group {
	return &Group{
		ID:          id,
		K:           k,
		N:           n,
		Per:         per,
		TgtPrcv:     tgtPrcv,
		source:      make([][]byte, k),
		received:    bitset.New(uint32(k)),
		codedShards: make(map[uint8][]byte),
	}
}

// Retired reports whether the group has finished its lifecycle.
func (g *Group) Retired() bool { return g.retired }

// Round returns the current 1-based round number.
func (g *Group) Round() int { return g.round }

// NextRoundShards computes the shards to transmit for the next round: on
// round 1 this is all k source shards followed by the table-selected
// number of coded shards; on later rounds it is only the incremental
// coded shards the table calls for. Returns nil once the group is
// retired or past its final round.
func (g *Group) NextRoundShards() ([]Shard, error) {
	if g.retired {
		return nil, nil
	}
	g.round++
	if g.round > g.N {
		g.retired = true
		return nil, nil
	}

	dof := DofToSend(g.K, g.Per, g.round, g.N, g.TgtPrcv, g.srcRcvd, g.codedRcvd)
	needCoded := dof
	if g.round == 1 {
		// Round 1 also sends every source shard, which covers the missing
		// source count of the degrees of freedom.
		needCoded = dof - (g.K - g.srcRcvd)
	}
	if needCoded < 0 {
		needCoded = 0
	}
	if g.codedSent+needCoded > maxCodedPerGroup {
		needCoded = maxCodedPerGroup - g.codedSent
	}

	var shards []Shard
	if g.round == 1 {
		for i, data := range g.source {
			shards = append(shards, Shard{Type: wire.FecSource, Index: uint8(i), Data: data})
		}
	}
	if needCoded > 0 {
		if err := g.ensureCoded(); err != nil {
			return nil, err
		}
		for i := 0; i < needCoded; i++ {
			idx := g.codedSent
			shards = append(shards, Shard{
				Type:  wire.FecEncoded,
				Index: uint8(g.K + idx),
				Data:  g.coded[idx],
			})
			g.codedSent++
		}
	}
	return shards, nil
}

func (g *Group) ensureCoded() error {
	if g.coded != nil {
		return nil
	}
	coded, err := encodeCoded(g.source, maxCodedPerGroup)
	if err != nil {
		return err
	}
	g.coded = coded
	return nil
}

// ObserveAck updates the sender's belief about how many source and coded
// shards of this group the receiver holds, per the latest ACK data.
func (g *Group) ObserveAck(srcRcvd, codedRcvd int) {
	if srcRcvd > g.srcRcvd {
		g.srcRcvd = srcRcvd
	}
	if codedRcvd > g.codedRcvd {
		g.codedRcvd = codedRcvd
	}
	if g.srcRcvd >= g.K {
		g.retired = true
	}
}

// MoveForward retires the group early because a move-forward barrier has
// advanced past its sequence range.
func (g *Group) MoveForward() {
	g.retired = true
}

// ReceiveShard records an arriving shard on the receive side. It returns
// the recovered k source shards once src_rcvd + coded_rcvd >= k; until
// then it returns (nil, nil).
func (g *Group) ReceiveShard(s Shard) ([][]byte, error) {
	switch s.Type {
	case wire.FecSource:
		if int(s.Index) < g.K && g.source[s.Index] == nil {
			g.source[s.Index] = s.Data
			g.received.Set(uint32(s.Index), true)
			g.srcRcvd++
			if !g.haveBase {
				g.baseSeq = s.Seq - uint32(s.Index)
				g.haveBase = true
			}
		}
	case wire.FecEncoded:
		offset := s.Index - uint8(g.K)
		if _, ok := g.codedShards[offset]; !ok {
			g.codedShards[offset] = s.Data
			g.codedRcvd++
		}
	}
	if g.srcRcvd >= g.K {
		g.retired = true
		return g.source, nil
	}
	if g.srcRcvd+g.codedRcvd < g.K {
		return nil, nil
	}
	if err := g.reconstruct(); err != nil {
		return nil, err
	}
	g.retired = true
	return g.source, nil
}

func (g *Group) reconstruct() error {
	shards := make([][]byte, g.K+maxCodedPerGroup)
	present := make([]bool, g.K+maxCodedPerGroup)
	for i := 0; i < g.K; i++ {
		if g.source[i] != nil {
			shards[i] = g.source[i]
			present[i] = true
		}
	}
	for offset, data := range g.codedShards {
		shards[g.K+int(offset)] = data
		present[g.K+int(offset)] = true
	}
	if err := reconstructSources(g.K, maxCodedPerGroup, shards, present); err != nil {
		return err
	}
	for idx := 0; idx < g.K; idx++ {
		if g.source[idx] == nil {
			g.source[idx] = shards[idx]
		}
	}
	return nil
}
