package wire

import "github.com/sliqtransport/sliq/pkg/sliqerr"

// CCAlgEntry is one proposed or accepted congestion-control algorithm
// inside a Connection-Handshake header.
type CCAlgEntry struct {
	Type          CCType
	Deterministic bool
	Pacing        bool
	Params        uint32
}

func (e CCAlgEntry) encode(w *writer) {
	w.writeByte(byte(e.Type))
	var flags uint8
	if e.Deterministic {
		flags |= chDetermFlag
	}
	if e.Pacing {
		flags |= chPacingFlag
	}
	w.writeByte(flags)
	w.writeUint16(0) // reserved
	w.writeUint32(e.Params)
}

func decodeCCAlgEntry(r *reader) (CCAlgEntry, error) {
	t, err := r.readByte()
	if err != nil {
		return CCAlgEntry{}, err
	}
	flags, err := r.readByte()
	if err != nil {
		return CCAlgEntry{}, err
	}
	if _, err := r.readUint16(); err != nil { // reserved
		return CCAlgEntry{}, err
	}
	params, err := r.readUint32()
	if err != nil {
		return CCAlgEntry{}, err
	}
	return CCAlgEntry{
		Type:          CCType(t),
		Deterministic: flags&chDetermFlag != 0,
		Pacing:        flags&chPacingFlag != 0,
		Params:        params,
	}, nil
}

// ConnHandshake is the Client-Hello / Server-Hello / Client-Confirm / Reject
// header (type 0); the MsgTag field distinguishes the four roles.
type ConnHandshake struct {
	MsgTag  uint16
	Ts      uint32
	EchoTs  uint32
	CCAlgs  []CCAlgEntry
}

func (h ConnHandshake) headerType() HeaderType { return TypeConnHandshake }

func (h ConnHandshake) encode(w *writer) error {
	if len(h.CCAlgs) > MaxCCAlgorithms {
		return sliqerr.ErrInconsistentCounts
	}
	w.writeByte(byte(TypeConnHandshake))
	w.writeByte(byte(len(h.CCAlgs)))
	w.writeUint16(h.MsgTag)
	w.writeUint32(h.Ts)
	w.writeUint32(h.EchoTs)
	for _, e := range h.CCAlgs {
		e.encode(w)
	}
	return nil
}

func decodeConnHandshake(r *reader) (ConnHandshake, error) {
	numCC, err := r.readByte()
	if err != nil {
		return ConnHandshake{}, err
	}
	msgTag, err := r.readUint16()
	if err != nil {
		return ConnHandshake{}, err
	}
	ts, err := r.readUint32()
	if err != nil {
		return ConnHandshake{}, err
	}
	echoTs, err := r.readUint32()
	if err != nil {
		return ConnHandshake{}, err
	}
	if r.remaining() < int(numCC)*CHCCAlgHdrLen {
		return ConnHandshake{}, sliqerr.ErrInconsistentCounts
	}
	algs := make([]CCAlgEntry, 0, numCC)
	for i := 0; i < int(numCC); i++ {
		e, err := decodeCCAlgEntry(r)
		if err != nil {
			return ConnHandshake{}, err
		}
		algs = append(algs, e)
	}
	return ConnHandshake{MsgTag: msgTag, Ts: ts, EchoTs: echoTs, CCAlgs: algs}, nil
}

// ConnReset is the Connection-Reset header (type 1): sent on unrecoverable
// errors, requiring no response.
type ConnReset struct {
	Error sliqerr.ConnResetCode
}

func (h ConnReset) headerType() HeaderType { return TypeConnReset }

func (h ConnReset) encode(w *writer) error {
	w.writeByte(byte(TypeConnReset))
	w.writeByte(0) // flags, unused
	w.writeUint16(uint16(h.Error))
	return nil
}

func decodeConnReset(r *reader) (ConnReset, error) {
	if _, err := r.readByte(); err != nil { // flags
		return ConnReset{}, err
	}
	errCode, err := r.readUint16()
	if err != nil {
		return ConnReset{}, err
	}
	return ConnReset{Error: sliqerr.ConnResetCode(errCode)}, nil
}

// ConnClose is the Connection-Close header (type 2): graceful teardown,
// echoed back by the peer with Ack set.
type ConnClose struct {
	Ack    bool
	Reason sliqerr.ConnCloseReason
}

func (h ConnClose) headerType() HeaderType { return TypeConnClose }

func (h ConnClose) encode(w *writer) error {
	w.writeByte(byte(TypeConnClose))
	var flags uint8
	if h.Ack {
		flags |= ccAckFlag
	}
	w.writeByte(flags)
	w.writeUint16(uint16(h.Reason))
	return nil
}

func decodeConnClose(r *reader) (ConnClose, error) {
	flags, err := r.readByte()
	if err != nil {
		return ConnClose{}, err
	}
	reason, err := r.readUint16()
	if err != nil {
		return ConnClose{}, err
	}
	return ConnClose{Ack: flags&ccAckFlag != 0, Reason: sliqerr.ConnCloseReason(reason)}, nil
}

// Fixed header-length constants, named after the original dissector's
// #define table (CH_BASE_HDR_LEN etc.) for cross-reference.
const (
	CHBaseHdrLen  = 12
	CHCCAlgHdrLen = 8
	CRHdrLen      = 4
	CCHdrLen      = 4
)
