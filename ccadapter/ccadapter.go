// Package ccadapter defines the narrow interface the core uses to ask a
// congestion-control algorithm whether it may send, and dispatches to one
// of a small set of concrete algorithms chosen once per connection.
package ccadapter

import "time"

// PacketEvent is what the core reports to the algorithm on every Data
// send and every ACK: enough to drive rate/window-based decisions without
// the algorithm needing to reach back into the stream or connection.
type PacketEvent struct {
	StreamID    uint8
	Seq         uint32
	Size        int
	RexmitCount uint8
	SendTime    time.Time
	RecvTime    time.Time
	AckTime     time.Time
	RTT         time.Duration
	Lost        bool
}

// Decision is the algorithm's answer to "may I send N bytes now?"
type Decision struct {
	Permitted bool
	PaceAfter time.Duration
}

// Algorithm is the interface every congestion controller implements. The
// core never type-switches on a concrete algorithm; all algorithm-
// specific behavior lives behind this interface.
type Algorithm interface {
	// Type returns the wire CC type code this algorithm implements.
	Type() uint8

	// OnSend is called just before a Data packet is transmitted.
	OnSend(ev PacketEvent) Decision

	// OnAck is called for every acknowledged or declared-lost packet.
	OnAck(ev PacketEvent)

	// CCSyncPayload returns the 4-byte params field to place in the next
	// outgoing CC-Sync header, and whether one should be sent at all.
	CCSyncPayload() (params uint32, send bool)

	// OnCCSync delivers a peer's CC-Sync params verbatim.
	OnCCSync(params uint32)

	// OnPktTrain delivers a peer's CC-Pkt-Train probe verbatim.
	OnPktTrain(trainID uint32, pktInTrain, pktsInTrain uint16, payload []byte)
}

// CC type codes from the wire handshake's algorithm list.
const (
	TypeNone           uint8 = 0
	TypeCubicBytes     uint8 = 1
	TypeRenoBytes      uint8 = 2
	TypeTCPCubic       uint8 = 3
	TypeCopaConstDelta uint8 = 4
	TypeCopaM          uint8 = 5
	TypeCopa2          uint8 = 6
	TypeCopa3          uint8 = 7
	TypeFixedRate      uint8 = 15
)

// New constructs the algorithm named by ccType. params configures
// FixedRate (bytes/sec); other types ignore it today, since designing
// their control laws is explicitly out of scope here — they exist as
// addressable stand-ins a handshake can negotiate and later replace.
func New(ccType uint8, params uint32) Algorithm {
	switch ccType {
	case TypeFixedRate:
		return newFixedRate(params)
	case TypeCubicBytes, TypeTCPCubic:
		return newStub(ccType)
	case TypeRenoBytes:
		return newStub(ccType)
	case TypeCopaConstDelta, TypeCopaM, TypeCopa2, TypeCopa3:
		return newStub(ccType)
	default:
		return newNone()
	}
}
