package wire

import (
	"encoding/binary"

	"github.com/sliqtransport/sliq/pkg/sliqerr"
)

// reader is a forward-only cursor over a datagram's bytes, generalizing the
// BitStream pattern to SLIQ's fixed network-byte-order fields.
type reader struct {
	data   []byte
	offset int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.offset
}

func (r *reader) readByte() (byte, error) {
	if r.offset >= len(r.data) {
		return 0, sliqerr.ErrMalformedFrame
	}
	b := r.data[r.offset]
	r.offset++
	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, sliqerr.ErrMalformedFrame
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *reader) readUint16() (uint16, error) {
	b, err := r.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) readUint32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// writer accumulates a single datagram's worth of header bytes.
type writer struct {
	data []byte
}

func newWriter() *writer {
	return &writer{data: make([]byte, 0, 64)}
}

func (w *writer) writeByte(b byte) {
	w.data = append(w.data, b)
}

func (w *writer) writeBytes(b []byte) {
	w.data = append(w.data, b...)
}

func (w *writer) writeUint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.data = append(w.data, buf[:]...)
}

func (w *writer) writeUint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.data = append(w.data, buf[:]...)
}

func (w *writer) bytes() []byte {
	return w.data
}
