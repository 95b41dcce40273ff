package wire

import "github.com/sliqtransport/sliq/pkg/sliqerr"

// Header is implemented by every SLIQ header type. headerType identifies
// the wire tag; encode appends the header's bytes to w.
type Header interface {
	headerType() HeaderType
	encode(w *writer) error
}

// ParseDatagram parses a UDP payload into its ordered sequence of headers.
// A frame too short for the header its type byte names, including any
// non-empty frame under 4 bytes, fails with ErrMalformedFrame; the
// Connection drops any datagram that fails to parse.
func ParseDatagram(data []byte) ([]Header, error) {
	r := newReader(data)
	var headers []Header
	sawTerminal := false

	for r.remaining() > 0 {
		if sawTerminal {
			return nil, sliqerr.ErrTerminalNotLast
		}
		typeByte := data[r.offset]
		t := HeaderType(typeByte)
		// consume the type byte; per-type decoders read the rest.
		if _, err := r.readByte(); err != nil {
			return nil, err
		}

		var (
			h   Header
			err error
		)
		switch t {
		case TypeConnHandshake:
			h, err = decodeConnHandshake(r)
		case TypeConnReset:
			h, err = decodeConnReset(r)
		case TypeConnClose:
			h, err = decodeConnClose(r)
		case TypeStreamCreate:
			h, err = decodeStreamCreate(r)
		case TypeStreamReset:
			h, err = decodeStreamReset(r)
		case TypeData:
			h, err = decodeDataHeader(r)
		case TypeAck:
			h, err = decodeAck(r)
		case TypeCCSync:
			h, err = decodeCCSync(r)
		case TypeRcvdPktCount:
			h, err = decodeRcvdPktCount(r)
		case TypeCCPktTrain:
			h, err = decodeCCPktTrain(r)
		default:
			return nil, &sliqerr.CodecError{Offset: r.offset - 1, Type: uint8(t), Err: sliqerr.ErrUnknownHeader}
		}
		if err != nil {
			return nil, &sliqerr.CodecError{Offset: r.offset, Type: uint8(t), Err: err}
		}
		headers = append(headers, h)
		if t.isTerminal() {
			sawTerminal = true
		}
	}
	return headers, nil
}

// EmitDatagram concatenates headers into a single UDP payload, enforcing
// that a terminal header (if present) is last.
func EmitDatagram(headers []Header) ([]byte, error) {
	w := newWriter()
	for i, h := range headers {
		if i < len(headers)-1 && h.headerType().isTerminal() {
			return nil, sliqerr.ErrTerminalNotLast
		}
		if err := h.encode(w); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}
