package wire

import "github.com/sliqtransport/sliq/pkg/sliqerr"

// ObservedTime is one (seq, timestamp) pair reported in an ACK, used by
// the Sent-Packet Manager's RTT sampling. It carries no retransmission
// count.
type ObservedTime struct {
	Seq     uint32
	Ts      uint32
}

// AckBlock is a compressed out-of-order sequence marker: a 15-bit offset
// from the ACK's NextExpectedSeq, plus a type bit (0 = single sequence,
// 1 = range endpoint; two consecutive type-1 blocks delimit a range).
type AckBlock struct {
	Type   uint8 // 0 or 1
	Offset uint16
}

func (b AckBlock) encode() uint16 {
	v := b.Offset & ackBlockOffsetMask
	if b.Type != 0 {
		v |= ackBlockTypeBit
	}
	return v
}

func decodeAckBlock(v uint16) AckBlock {
	t := uint8(0)
	if v&ackBlockTypeBit != 0 {
		t = 1
	}
	return AckBlock{Type: t, Offset: v & ackBlockOffsetMask}
}

// Ack is the ACK header (type 33): chainable, carries the receiver's
// next-expected sequence number, up to 7 recent observed-packet times, and
// a run of ACK blocks describing out-of-order sequences.
type Ack struct {
	StreamID      uint8
	NextExpSeq    uint32
	Ts            uint32
	TsDelta       uint32
	ObservedTimes []ObservedTime
	Blocks        []AckBlock
}

func (h Ack) headerType() HeaderType { return TypeAck }

func (h Ack) encode(w *writer) error {
	if len(h.ObservedTimes) > 7 {
		return sliqerr.ErrInconsistentCounts
	}
	if len(h.Blocks) > 31 {
		return sliqerr.ErrInconsistentCounts
	}
	w.writeByte(byte(TypeAck))
	w.writeByte(0) // flags, unused
	w.writeByte(h.StreamID)
	optAbo := (uint8(len(h.ObservedTimes)) << ackNoptShift) & ackNoptMask
	optAbo |= uint8(len(h.Blocks)) & ackNaboMask
	w.writeByte(optAbo)
	w.writeUint32(h.NextExpSeq)
	w.writeUint32(h.Ts)
	w.writeUint32(h.TsDelta)
	for _, ot := range h.ObservedTimes {
		w.writeUint32(ot.Seq)
		w.writeUint32(ot.Ts)
	}
	for _, b := range h.Blocks {
		w.writeUint16(b.encode())
	}
	return nil
}

func decodeAck(r *reader) (Ack, error) {
	if _, err := r.readByte(); err != nil { // flags
		return Ack{}, err
	}
	streamID, err := r.readByte()
	if err != nil {
		return Ack{}, err
	}
	optAbo, err := r.readByte()
	if err != nil {
		return Ack{}, err
	}
	nopt := (optAbo & ackNoptMask) >> ackNoptShift
	nabo := optAbo & ackNaboMask
	nextExp, err := r.readUint32()
	if err != nil {
		return Ack{}, err
	}
	ts, err := r.readUint32()
	if err != nil {
		return Ack{}, err
	}
	tsDelta, err := r.readUint32()
	if err != nil {
		return Ack{}, err
	}
	need := int(nopt)*AObsPktTimeHdrLen + int(nabo)*AAckBlockHdrLen
	if r.remaining() < need {
		return Ack{}, sliqerr.ErrInconsistentCounts
	}
	obs := make([]ObservedTime, 0, nopt)
	for i := 0; i < int(nopt); i++ {
		seq, err := r.readUint32()
		if err != nil {
			return Ack{}, err
		}
		ts, err := r.readUint32()
		if err != nil {
			return Ack{}, err
		}
		obs = append(obs, ObservedTime{Seq: seq, Ts: ts})
	}
	blocks := make([]AckBlock, 0, nabo)
	for i := 0; i < int(nabo); i++ {
		v, err := r.readUint16()
		if err != nil {
			return Ack{}, err
		}
		blocks = append(blocks, decodeAckBlock(v))
	}
	return Ack{
		StreamID:      streamID,
		NextExpSeq:    nextExp,
		Ts:            ts,
		TsDelta:       tsDelta,
		ObservedTimes: obs,
		Blocks:        blocks,
	}, nil
}

const (
	ABaseHdrLen       = 16
	AObsPktTimeHdrLen = 8
	AAckBlockHdrLen   = 2
)
