// Package pool implements the fixed-size buffer arena each Connection
// uses for inbound and outbound datagram bytes, so the hot receive/send
// path doesn't allocate a new slice per packet.
package pool

import (
	"sync"
	"sync/atomic"
)

// BufferSize is the default UDP buffer size, comfortably above any
// realistic path MTU.
const BufferSize = 2048

// headRoom is reserved at the front of every buffer for a caller that
// needs to prepend bytes after the payload has already been written.
const headRoom = 32

// Buffer is one arena slot handed out by Pool.Get. Data starts zero-length
// with headRoom bytes of capacity reserved ahead of it (Data[:cap(Data)]
// after a Prepend-style use still fits within the underlying array).
type Buffer struct {
	Data []byte

	pool     *Pool
	full     []byte
	released atomic.Bool
}

// Prepend returns only the reserved head room in front of Data, for a
// caller that wants to write a header before the payload already
// accumulated in Data.
func (b *Buffer) Prepend() []byte { return b.full[:headRoom] }

// Release returns the buffer to its pool. Calling Release twice on the
// same Buffer panics rather than silently corrupting the free list.
func (b *Buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		panic("pool: double release of packet buffer")
	}
	b.Data = nil
	b.pool.p.Put(b)
}

// Pool is a sync.Pool-backed arena of fixed-size buffers. Safe for
// concurrent use; a Connection typically owns one Pool for its lifetime.
type Pool struct {
	p sync.Pool
}

// New creates a Pool of buffers sized BufferSize+headRoom.
func New() *Pool {
	pool := &Pool{}
	pool.p.New = func() interface{} {
		full := make([]byte, BufferSize+headRoom)
		return &Buffer{full: full, pool: pool}
	}
	return pool
}

// Get returns a zero-length buffer ready for writing, with headRoom bytes
// reserved ahead of it.
func (pool *Pool) Get() *Buffer {
	b := pool.p.Get().(*Buffer)
	b.released.Store(false)
	b.Data = b.full[headRoom:headRoom]
	return b
}
