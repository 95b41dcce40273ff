package conn

import (
	"net"
	"sync"

	"github.com/sliqtransport/sliq/pool"
	"github.com/sliqtransport/sliq/transport"
)

// Listener accepts inbound datagrams on a shared transport.PacketConn and
// demultiplexes them to one Connection per remote address, creating a
// new server-role Connection on first contact from an unseen peer.
type Listener struct {
	pc  transport.PacketConn
	cfg Config
	buf *pool.Pool

	mu    sync.Mutex
	conns map[string]*Connection

	accept chan *Connection
	closed chan struct{}
}

// Listen opens a UDP socket at addr and returns a Listener that will
// spawn a server-role Connection, delivered via Accept, for each new
// remote peer.
func Listen(addr string, cfg Config) (*Listener, error) {
	pc, err := transport.ListenUDP(addr)
	if err != nil {
		return nil, err
	}
	return newListener(pc, cfg), nil
}

func newListener(pc transport.PacketConn, cfg Config) *Listener {
	cfg.IsServer = true
	l := &Listener{
		pc:     pc,
		cfg:    cfg,
		buf:    pool.New(),
		conns:  make(map[string]*Connection),
		accept: make(chan *Connection, 16),
		closed: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *Listener) readLoop() {
	for {
		b := l.buf.Get()
		b.Data = b.Data[:cap(b.Data)]
		n, addr, err := l.pc.ReadFrom(b.Data)
		if err != nil {
			b.Release()
			select {
			case <-l.closed:
				return
			default:
				continue
			}
		}
		data := make([]byte, n)
		copy(data, b.Data[:n])
		b.Release()

		c := l.connectionFor(addr)
		c.HandleDatagram(data)
	}
}

func (l *Listener) connectionFor(addr net.Addr) *Connection {
	key := addr.String()
	l.mu.Lock()
	c, ok := l.conns[key]
	if !ok {
		c = NewServer(l.pc, addr, l.cfg)
		l.conns[key] = c
		l.mu.Unlock()
		select {
		case l.accept <- c:
		default:
		}
		return c
	}
	l.mu.Unlock()
	return c
}

// Accept returns the next inbound Connection, blocking until a new peer
// sends its Client-Hello.
func (l *Listener) Accept() *Connection {
	return <-l.accept
}

// Close stops the read loop and the underlying socket.
func (l *Listener) Close() error {
	close(l.closed)
	return l.pc.Close()
}

// Dial opens a UDP socket and returns a client-role Connection to addr.
func Dial(addr string, cfg Config) (*Connection, error) {
	remote, err := transport.ResolveAddr(addr)
	if err != nil {
		return nil, err
	}
	pc, err := transport.ListenUDP(":0")
	if err != nil {
		return nil, err
	}
	c := NewClient(pc, remote, cfg)
	go clientReadLoop(c, pc)
	return c, nil
}

func clientReadLoop(c *Connection, pc transport.PacketConn) {
	buf := make([]byte, pool.BufferSize)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		c.HandleDatagram(data)
	}
}
