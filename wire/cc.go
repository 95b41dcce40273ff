package wire

// CCSync is the CC-Synchronization header (type 34): carries
// algorithm-specific state between endpoints. The core never interprets
// Params; it is relayed verbatim to the registered CC algorithm.
type CCSync struct {
	CCID   uint8
	SeqNum uint16
	Params uint32
}

func (h CCSync) headerType() HeaderType { return TypeCCSync }

func (h CCSync) encode(w *writer) error {
	w.writeByte(byte(TypeCCSync))
	w.writeByte(h.CCID)
	w.writeUint16(h.SeqNum)
	w.writeUint32(h.Params)
	return nil
}

func decodeCCSync(r *reader) (CCSync, error) {
	ccID, err := r.readByte()
	if err != nil {
		return CCSync{}, err
	}
	seqNum, err := r.readUint16()
	if err != nil {
		return CCSync{}, err
	}
	params, err := r.readUint32()
	if err != nil {
		return CCSync{}, err
	}
	return CCSync{CCID: ccID, SeqNum: seqNum, Params: params}, nil
}

// RcvdPktCount is the Received-Packet-Count header (type 35): reports a
// stream's count of data packets received, keyed to a specific packet
// sequence number on that stream.
type RcvdPktCount struct {
	StreamID uint8
	Rexmit   uint8
	PktSeq   uint32
	RcvdCount uint32
}

func (h RcvdPktCount) headerType() HeaderType { return TypeRcvdPktCount }

func (h RcvdPktCount) encode(w *writer) error {
	w.writeByte(byte(TypeRcvdPktCount))
	w.writeByte(0) // flags, unused
	w.writeByte(h.StreamID)
	w.writeByte(h.Rexmit)
	w.writeUint32(h.PktSeq)
	w.writeUint32(h.RcvdCount)
	return nil
}

func decodeRcvdPktCount(r *reader) (RcvdPktCount, error) {
	if _, err := r.readByte(); err != nil { // flags
		return RcvdPktCount{}, err
	}
	streamID, err := r.readByte()
	if err != nil {
		return RcvdPktCount{}, err
	}
	rexmit, err := r.readByte()
	if err != nil {
		return RcvdPktCount{}, err
	}
	pktSeq, err := r.readUint32()
	if err != nil {
		return RcvdPktCount{}, err
	}
	rcvdCount, err := r.readUint32()
	if err != nil {
		return RcvdPktCount{}, err
	}
	return RcvdPktCount{StreamID: streamID, Rexmit: rexmit, PktSeq: pktSeq, RcvdCount: rcvdCount}, nil
}

// CCPktTrain is the CC-Pkt-Train header (type 40): bandwidth-probe packet
// trains, carrying an opaque payload to the end of the datagram. The
// Connection passes its Seq and payload to the registered CC algorithm;
// CCID and PktType are not forwarded.
type CCPktTrain struct {
	CCID    uint8
	PktType uint8
	Seq     uint8
	IRT     uint32
	Ts      uint32
	TsDelta uint32
	Payload []byte
}

func (h CCPktTrain) headerType() HeaderType { return TypeCCPktTrain }

func (h CCPktTrain) encode(w *writer) error {
	w.writeByte(byte(TypeCCPktTrain))
	w.writeByte(h.CCID)
	w.writeByte(h.PktType)
	w.writeByte(h.Seq)
	w.writeUint32(h.IRT)
	w.writeUint32(h.Ts)
	w.writeUint32(h.TsDelta)
	w.writeBytes(h.Payload)
	return nil
}

func decodeCCPktTrain(r *reader) (CCPktTrain, error) {
	ccID, err := r.readByte()
	if err != nil {
		return CCPktTrain{}, err
	}
	pktType, err := r.readByte()
	if err != nil {
		return CCPktTrain{}, err
	}
	seq, err := r.readByte()
	if err != nil {
		return CCPktTrain{}, err
	}
	irt, err := r.readUint32()
	if err != nil {
		return CCPktTrain{}, err
	}
	ts, err := r.readUint32()
	if err != nil {
		return CCPktTrain{}, err
	}
	tsDelta, err := r.readUint32()
	if err != nil {
		return CCPktTrain{}, err
	}
	payload, err := r.readBytes(r.remaining())
	if err != nil {
		return CCPktTrain{}, err
	}
	return CCPktTrain{CCID: ccID, PktType: pktType, Seq: seq, IRT: irt, Ts: ts, TsDelta: tsDelta, Payload: payload}, nil
}

const (
	SYHdrLen = 8
	RCHdrLen = 12
	PTHdrLen = 16
)
