package wire

import "github.com/sliqtransport/sliq/pkg/sliqerr"

// StreamCreate is the Stream-Create header (type 3): negotiates a stream's
// id, priority, delivery/reliability modes, initial window and sequence
// number, and FEC target.
type StreamCreate struct {
	Ack              bool
	DeliveryTimeMode bool // false: TgtDelivery is rounds, true: milliseconds
	AutoTuneWindow   bool // true: InitWinSize is a starting point, not a hard cap
	StreamID         uint8
	Priority         uint8
	InitWinSize      uint32
	InitSeq          uint32
	Delivery         DeliveryMode
	Reliability      ReliabilityMode
	RexmitLimit      uint8
	TgtDelivery      uint16
	TgtRecvProb      uint16 // units of 0.0001
}

func (h StreamCreate) headerType() HeaderType { return TypeStreamCreate }

func (h StreamCreate) encode(w *writer) error {
	w.writeByte(byte(TypeStreamCreate))
	var flags uint8
	if h.Ack {
		flags |= scAckFlag
	}
	if h.DeliveryTimeMode {
		flags |= scDelTimeFlag
	}
	if h.AutoTuneWindow {
		flags |= scAutoTuneFlag
	}
	w.writeByte(flags)
	w.writeByte(h.StreamID)
	w.writeByte(h.Priority)
	w.writeUint32(h.InitWinSize)
	w.writeUint32(h.InitSeq)
	delRel := (uint8(h.Delivery) << scDelModeShift & scDelModeMask) | (uint8(h.Reliability) & scRelModeMask)
	w.writeByte(delRel)
	w.writeByte(h.RexmitLimit)
	w.writeUint16(h.TgtDelivery)
	w.writeUint16(h.TgtRecvProb)
	w.writeUint16(0) // unused
	return nil
}

func decodeStreamCreate(r *reader) (StreamCreate, error) {
	flags, err := r.readByte()
	if err != nil {
		return StreamCreate{}, err
	}
	streamID, err := r.readByte()
	if err != nil {
		return StreamCreate{}, err
	}
	priority, err := r.readByte()
	if err != nil {
		return StreamCreate{}, err
	}
	initWin, err := r.readUint32()
	if err != nil {
		return StreamCreate{}, err
	}
	initSeq, err := r.readUint32()
	if err != nil {
		return StreamCreate{}, err
	}
	delRel, err := r.readByte()
	if err != nil {
		return StreamCreate{}, err
	}
	rexmitLimit, err := r.readByte()
	if err != nil {
		return StreamCreate{}, err
	}
	tgtDelivery, err := r.readUint16()
	if err != nil {
		return StreamCreate{}, err
	}
	tgtRecvProb, err := r.readUint16()
	if err != nil {
		return StreamCreate{}, err
	}
	if _, err := r.readUint16(); err != nil { // unused
		return StreamCreate{}, err
	}
	return StreamCreate{
		Ack:              flags&scAckFlag != 0,
		DeliveryTimeMode: flags&scDelTimeFlag != 0,
		AutoTuneWindow:   flags&scAutoTuneFlag != 0,
		StreamID:         streamID,
		Priority:         priority,
		InitWinSize:      initWin,
		InitSeq:          initSeq,
		Delivery:         DeliveryMode((delRel & scDelModeMask) >> scDelModeShift),
		Reliability:      ReliabilityMode(delRel & scRelModeMask),
		RexmitLimit:      rexmitLimit,
		TgtDelivery:      tgtDelivery,
		TgtRecvProb:      tgtRecvProb,
	}, nil
}

// TgtRecvProbFloat converts the wire field (units of 0.0001) to a probability.
func TgtRecvProbFloat(v uint16) float64 { return float64(v) * 0.0001 }

// EncodeTgtRecvProb converts a probability back to the wire field, clamping
// to the representable range.
func EncodeTgtRecvProb(p float64) uint16 {
	if p < 0 {
		p = 0
	}
	if p > 6.5535 {
		p = 6.5535
	}
	return uint16(p / 0.0001)
}

// StreamReset is the Stream-Reset header (type 4): tears down one stream in
// both directions, carrying the final sequence number and an error code.
type StreamReset struct {
	StreamID    uint8
	ErrorCode   sliqerr.StreamResetCode
	FinalSeq    uint32
}

func (h StreamReset) headerType() HeaderType { return TypeStreamReset }

func (h StreamReset) encode(w *writer) error {
	w.writeByte(byte(TypeStreamReset))
	w.writeByte(0) // flags, unused
	w.writeByte(h.StreamID)
	w.writeByte(byte(h.ErrorCode))
	w.writeUint32(h.FinalSeq)
	return nil
}

func decodeStreamReset(r *reader) (StreamReset, error) {
	if _, err := r.readByte(); err != nil { // flags
		return StreamReset{}, err
	}
	streamID, err := r.readByte()
	if err != nil {
		return StreamReset{}, err
	}
	errCode, err := r.readByte()
	if err != nil {
		return StreamReset{}, err
	}
	finalSeq, err := r.readUint32()
	if err != nil {
		return StreamReset{}, err
	}
	return StreamReset{StreamID: streamID, ErrorCode: sliqerr.StreamResetCode(errCode), FinalSeq: finalSeq}, nil
}

const (
	SCHdrLen = 20
	SRHdrLen = 8
)
