package transport

import (
	"io"
	"net"
	"sync"
)

// LossModel decides, given the zero-based send sequence number on one
// side of a pair, whether that send should be dropped. Returning the
// same decision for the same seq makes test scenarios reproducible.
type LossModel func(seq int) bool

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type datagram struct {
	data []byte
	from net.Addr
}

// MemConn is an in-memory PacketConn, one end of a loopback pipe created
// by NewMemPacketConnPair. It lets tests drive the connection and stream
// state machines without a real UDP socket. Apart from the loss model, a
// send is dropped only when the peer already has 256 datagrams queued.
type MemConn struct {
	addr      memAddr
	peer      *MemConn
	in        chan datagram
	lossModel LossModel

	mu     sync.Mutex
	seq    int
	closed bool
}

// NewMemPacketConnPair creates two connected MemConns. lossModel (may be
// nil) is applied identically to sends from either side.
func NewMemPacketConnPair(lossModel LossModel) (a, b *MemConn) {
	a = &MemConn{addr: "mem-a", in: make(chan datagram, 256), lossModel: lossModel}
	b = &MemConn{addr: "mem-b", in: make(chan datagram, 256), lossModel: lossModel}
	a.peer = b
	b.peer = a
	return a, b
}

func (c *MemConn) ReadFrom(p []byte) (int, net.Addr, error) {
	dg, ok := <-c.in
	if !ok {
		return 0, nil, io.EOF
	}
	n := copy(p, dg.data)
	return n, dg.from, nil
}

func (c *MemConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	c.mu.Lock()
	seq := c.seq
	c.seq++
	drop := c.lossModel != nil && c.lossModel(seq)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	if drop {
		return len(p), nil
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case c.peer.in <- datagram{data: cp, from: c.addr}:
	default:
	}
	return len(p), nil
}

func (c *MemConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.in)
	return nil
}

func (c *MemConn) LocalAddr() net.Addr { return c.addr }
