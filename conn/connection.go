// Package conn implements the Connection: the handshake, the per-
// connection clock, a priority-ordered outbound packing loop that checks
// each datagram against the path MTU, and the single-threaded cooperative executor every other
// public method funnels through.
package conn

import (
	"fmt"
	"net"
	"time"

	"github.com/sliqtransport/sliq/ccadapter"
	"github.com/sliqtransport/sliq/pkg/logx"
	"github.com/sliqtransport/sliq/pkg/metrics"
	"github.com/sliqtransport/sliq/pkg/sliqerr"
	"github.com/sliqtransport/sliq/pool"
	"github.com/sliqtransport/sliq/sentpacket"
	"github.com/sliqtransport/sliq/stream"
	"github.com/sliqtransport/sliq/transport"
	"github.com/sliqtransport/sliq/wire"
)

// PathMTU is the default datagram size budget for one outbound packing
// pass, conservative enough to avoid IP fragmentation on typical paths.
const PathMTU = 1200

// DefaultIdleTimeout closes a connection that exchanges nothing for this
// long.
const DefaultIdleTimeout = 30 * time.Second

// periodicCheckInterval is how often the loop's timer wheel wakes a
// connection to sweep for expired retransmission timers, pack pending
// data, and check for idleness, independent of whatever cadence the
// embedder calls Pack on.
const periodicCheckInterval = 50 * time.Millisecond

// Config parameterizes one Connection.
type Config struct {
	IsServer    bool
	OfferedCC   []wire.CCAlgEntry // client role
	SupportedCC map[uint8]bool    // server role
	IdleTimeout time.Duration
	PathMTU     int
	Metrics     *metrics.Collectors
	Unknown     UnknownInnerHandler
}

// Connection owns one peer relationship: the handshake, every stream
// multiplexed over it, and the priority-ordered packing loop. All
// mutation happens on its internal loop goroutine; public methods are
// safe to call from any goroutine.
type Connection struct {
	cfg    Config
	pc     transport.PacketConn
	remote net.Addr
	pool   *pool.Pool
	loop   *loop
	demux  *demux

	clock          Clock
	hs             *Handshake
	cc             ccadapter.Algorithm
	streams        map[uint8]*stream.Stream
	priorityOrder  []uint8
	recvPktCount   uint32
	lastActivity   time.Time
	closed         bool
	closeReason    error
	deliveries     chan delivery
	diagSentAt     map[uint8]time.Time
}

type delivery struct {
	streamID uint8
	payload  []byte
}

func newConnection(pc transport.PacketConn, remote net.Addr, cfg Config) *Connection {
	if cfg.PathMTU == 0 {
		cfg.PathMTU = PathMTU
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	c := &Connection{
		cfg:          cfg,
		pc:           pc,
		remote:       remote,
		pool:         pool.New(),
		loop:         newLoop(),
		demux:        newDemux(cfg.Unknown),
		streams:      make(map[uint8]*stream.Stream),
		lastActivity: time.Now(),
		deliveries:   make(chan delivery, 256),
	}
	go c.loop.run()
	c.loop.Schedule(time.Now().Add(periodicCheckInterval), c.runPeriodicChecks)
	return c
}

// runPeriodicChecks is the timer-wheel-driven heartbeat: it closes the
// connection once it has been idle past IdleTimeout, otherwise retries
// any stream's expired-but-unacked packets and packs a send opportunity,
// then reschedules itself. This keeps retransmission and idle teardown
// working even if the embedder never calls Pack on its own.
func (c *Connection) runPeriodicChecks() {
	if c.closed {
		return
	}
	if time.Since(c.lastActivity) >= c.cfg.IdleTimeout {
		c.closed = true
		c.closeReason = sliqerr.ErrIdleTimeout
		return
	}
	now := time.Now()
	for _, s := range c.streams {
		s.RetransmitExpired(now)
	}
	c.packLocked()
	c.loop.Schedule(now.Add(periodicCheckInterval), c.runPeriodicChecks)
}

// NewClient creates a client-role Connection and immediately sends
// Client-Hello.
func NewClient(pc transport.PacketConn, remote net.Addr, cfg Config) *Connection {
	cfg.IsServer = false
	c := newConnection(pc, remote, cfg)
	c.hs = NewClientHandshake(cfg.OfferedCC)
	c.clock = NewClock(time.Now())
	c.loop.Go(func() { c.sendHandshake(c.hs.ClientHello(c.clock.Now(time.Now()))) })
	return c
}

// NewServer creates a server-role Connection that waits for Client-Hello.
func NewServer(pc transport.PacketConn, remote net.Addr, cfg Config) *Connection {
	cfg.IsServer = true
	c := newConnection(pc, remote, cfg)
	c.hs = NewServerHandshake(cfg.SupportedCC)
	c.clock = NewClock(time.Now())
	return c
}

func (c *Connection) sendHandshake(h wire.ConnHandshake) {
	c.writeDatagram([]wire.Header{h})
}

func (c *Connection) writeDatagram(headers []wire.Header) {
	data, err := wire.EmitDatagram(headers)
	if err != nil {
		logx.Error("conn: emit datagram: %v", err)
		return
	}
	if _, err := c.pc.WriteTo(data, c.remote); err != nil {
		logx.Warn("conn: write to %v: %v", c.remote, err)
	}
}

// Confirmed reports whether the handshake has completed.
func (c *Connection) Confirmed() bool {
	return Call(c.loop, func() bool { return c.hs.Confirmed() })
}

// CreateStream negotiates a new stream and returns its handle. It fails
// with ErrHandshakeRejected's sibling condition (stream-create refused)
// until the handshake is confirmed.
type createStreamResult struct {
	stream *stream.Stream
	err    error
}

func (c *Connection) CreateStream(cfg stream.Config) (*stream.Stream, error) {
	res := Call(c.loop, func() createStreamResult {
		if !c.hs.Confirmed() {
			return createStreamResult{err: fmt.Errorf("sliq: stream-create refused before handshake confirmed")}
		}
		if _, exists := c.streams[cfg.ID]; exists {
			return createStreamResult{err: fmt.Errorf("sliq: stream %d already exists", cfg.ID)}
		}
		s := stream.New(cfg, c.cc)
		s.Open()
		c.streams[cfg.ID] = s
		c.rebuildPriorityOrder()
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.StreamsOpen.Inc()
		}
		sc := wire.StreamCreate{
			StreamID:       cfg.ID,
			Priority:       cfg.Priority,
			InitSeq:        cfg.InitSeq,
			Delivery:       deliveryMode(cfg.Ordered),
			Reliability:    reliabilityMode(cfg.Reliable),
			RexmitLimit:    cfg.RexmitLimit,
			TgtRecvProb:    wire.EncodeTgtRecvProb(cfg.FECTargetPrecv),
			TgtDelivery:    uint16(cfg.FECRounds),
			InitWinSize:    cfg.WindowSize,
			AutoTuneWindow: cfg.AutoTuneWindow,
		}
		c.writeDatagram([]wire.Header{sc})
		return createStreamResult{stream: s}
	})
	return res.stream, res.err
}

// groupSizeFromReliability picks a default FEC group size for a
// peer-created stream: pure-FEC reliability groups shards in batches,
// everything else (best-effort, ARQ) sends one packet per round.
func groupSizeFromReliability(r wire.ReliabilityMode) int {
	if r == wire.ReliabilitySemiReliableFEC {
		return 8
	}
	return 1
}

func deliveryMode(ordered bool) wire.DeliveryMode {
	if ordered {
		return wire.DeliveryOrdered
	}
	return wire.DeliveryUnordered
}

func reliabilityMode(reliable bool) wire.ReliabilityMode {
	if reliable {
		return wire.ReliabilityReliableARQ
	}
	return wire.ReliabilitySemiReliableFEC
}

func (c *Connection) rebuildPriorityOrder() {
	order := make([]uint8, 0, len(c.streams))
	for id := range c.streams {
		order = append(order, id)
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && c.streams[order[j]].Priority() < c.streams[order[j-1]].Priority(); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	c.priorityOrder = order
}

// HandleDatagram parses and dispatches one inbound datagram. Malformed
// datagrams are dropped and counted, never surfaced to the caller.
func (c *Connection) HandleDatagram(data []byte) {
	c.loop.Go(func() { c.handleDatagramLocked(data) })
}

func (c *Connection) handleDatagramLocked(data []byte) {
	headers, err := wire.ParseDatagram(data)
	if err != nil {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.MalformedFrames.Inc()
		}
		logx.Debug("conn: malformed datagram: %v", err)
		return
	}
	c.lastActivity = time.Now()
	c.recvPktCount++
	for _, h := range headers {
		c.handleHeader(h)
	}
}

func (c *Connection) handleHeader(h wire.Header) {
	now := time.Now()
	nowUs := c.clock.Now(now)
	switch v := h.(type) {
	case wire.ConnHandshake:
		c.handleHandshakeMsg(v, nowUs)
	case wire.ConnReset:
		c.closed = true
		c.closeReason = &sliqerr.ConnResetError{Code: v.Error}
	case wire.ConnClose:
		if !v.Ack {
			c.writeDatagram([]wire.Header{wire.ConnClose{Ack: true, Reason: v.Reason}})
		}
		c.closed = true
	case wire.StreamCreate:
		c.handleStreamCreate(v)
	case wire.StreamReset:
		if s, ok := c.streams[v.StreamID]; ok {
			s.HandleReset(v)
		}
	case wire.DataHeader:
		c.handleData(v, now)
	case wire.Ack:
		if s, ok := c.streams[v.StreamID]; ok {
			// The reassembly layer doesn't surface a distinct
			// receiver-side hold time between receipt and ACK emission
			// (ACKs are built on the packing pass that sends them), so
			// zero is used as the processing-delay correction rather
			// than inventing a value with no wire-carried basis.
			res := s.HandleAck(v, now, func(seq, ts uint32) time.Duration { return 0 })
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.PacketsAcked.Add(float64(len(res.Acked)))
				c.cfg.Metrics.PacketsAbandoned.Add(float64(len(res.Abandoned)))
			}
		}
	case wire.CCSync:
		if c.cc != nil {
			c.cc.OnCCSync(v.Params)
		}
	case wire.RcvdPktCount:
		logx.Debug("conn: peer received-packet-count stream=%d seq=%d count=%d", v.StreamID, v.PktSeq, v.RcvdCount)
	case wire.CCPktTrain:
		if c.cc != nil {
			c.cc.OnPktTrain(uint32(v.Seq), 0, 0, v.Payload)
		}
	}
}

func (c *Connection) handleHandshakeMsg(v wire.ConnHandshake, nowUs uint32) {
	switch v.MsgTag {
	case wire.ClientHelloTag:
		if !c.cfg.IsServer {
			return
		}
		reply := c.hs.HandleClientHello(v, nowUs)
		c.writeDatagram([]wire.Header{reply})
	case wire.ServerHelloTag:
		if c.cfg.IsServer {
			return
		}
		if !c.hs.HandleServerHello(v) {
			c.closed = true
			c.closeReason = sliqerr.ErrHandshakeRejected
			return
		}
		c.cc = c.hs.SelectedAlgorithm()
		c.writeDatagram([]wire.Header{c.hs.ClientConfirm(nowUs, v.Ts)})
	case wire.ClientConfirmTag:
		if !c.cfg.IsServer {
			return
		}
		if c.hs.HandleClientConfirm(v) {
			c.cc = c.hs.SelectedAlgorithm()
		}
	case wire.RejectTag:
		c.hs.HandleReject()
		c.closed = true
		c.closeReason = sliqerr.ErrHandshakeRejected
	}
}

func (c *Connection) handleStreamCreate(v wire.StreamCreate) {
	if _, exists := c.streams[v.StreamID]; exists {
		return
	}
	rounds := int(v.TgtDelivery)
	if v.DeliveryTimeMode {
		// TgtDelivery is a delivery-time budget in milliseconds rather than
		// a round count; approximate a round count from the RTO estimate a
		// freshly created stream starts with, refined as real samples
		// arrive.
		rounds = int(time.Duration(v.TgtDelivery) * time.Millisecond / sentpacket.InitialRTO)
	}
	if rounds < 1 {
		rounds = 1
	}
	cfg := stream.Config{
		ID:             v.StreamID,
		Priority:       v.Priority,
		Ordered:        v.Delivery == wire.DeliveryOrdered,
		Reliable:       v.Reliability == wire.ReliabilityReliableARQ,
		RexmitLimit:    v.RexmitLimit,
		FECGroupSize:   groupSizeFromReliability(v.Reliability),
		FECRounds:      rounds,
		FECTargetPrecv: wire.TgtRecvProbFloat(v.TgtRecvProb),
		InitSeq:        v.InitSeq,
		WindowSize:     v.InitWinSize,
		AutoTuneWindow: v.AutoTuneWindow,
	}
	s := stream.New(cfg, c.cc)
	s.Open()
	c.streams[v.StreamID] = s
	c.rebuildPriorityOrder()
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.StreamsOpen.Inc()
	}
}

func (c *Connection) handleData(v wire.DataHeader, now time.Time) {
	s, ok := c.streams[v.StreamID]
	if !ok {
		return
	}
	if err := s.HandleData(v); err != nil {
		logx.Debug("conn: stream %d handle data: %v", v.StreamID, err)
		return
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.StreamReceivedPkts.Inc()
	}
	for {
		payload, err := s.Recv()
		if err != nil {
			break
		}
		if c.demux.Deliver(v.StreamID, payload) {
			continue
		}
		select {
		case c.deliveries <- delivery{streamID: v.StreamID, payload: payload}:
		default:
		}
	}
}

// Pack asks every open stream, in priority order, for its next
// transmittable headers and writes one datagram per Data header, with the
// stream's ACK chained ahead of the first. A stream with no Data to send
// sends no ACK either. A datagram larger than the path MTU is logged, not
// split. Intended to be called from the embedder's send-opportunity loop
// (a ticker, or a CC-driven pacing callback).
func (c *Connection) Pack() {
	c.loop.Go(c.packLocked)
}

func (c *Connection) packLocked() {
	if c.closed || !c.hs.Confirmed() {
		return
	}
	now := time.Now()
	nowUs := c.clock.Now(now)

	headers := c.emitRcvdPktCount(now, nil)
	if len(headers) > 0 {
		if data, err := wire.EmitDatagram(headers); err != nil {
			logx.Warn("conn: emit received-packet-count datagram: %v", err)
		} else if _, err := c.pc.WriteTo(data, c.remote); err != nil {
			logx.Warn("conn: write received-packet-count: %v", err)
		}
	}

	for _, id := range c.priorityOrder {
		s := c.streams[id]
		var headers []wire.Header
		ack := s.BuildAck(nowUs)
		headers = append(headers, ack)
		dataHeaders, err := s.NextDataHeaders(nowUs, now)
		if err != nil {
			logx.Warn("conn: stream %d next data headers: %v", id, err)
			continue
		}
		budget := c.cfg.PathMTU
		if len(dataHeaders) == 0 {
			continue // nothing but an empty ACK; not worth a datagram
		}
		for _, dh := range dataHeaders {
			// Data is terminal, so each Data header gets its own datagram;
			// the ACK rides ahead of the first one only.
			headers = append(headers, dh)
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.PacketsSent.Inc()
			}
			data, err := wire.EmitDatagram(headers)
			headers = headers[:0]
			if err != nil {
				logx.Warn("conn: emit datagram for stream %d: %v", id, err)
				continue
			}
			if len(data) > budget {
				logx.Debug("conn: packed datagram %d bytes exceeds path MTU %d", len(data), budget)
			}
			if _, err := c.pc.WriteTo(data, c.remote); err != nil {
				logx.Warn("conn: write: %v", err)
			}
		}
	}
}

// Recv returns the next application-visible delivered payload and the
// stream it arrived on, blocking until one is available. Closing the
// connection does not unblock it, and ok is always true.
func (c *Connection) Recv() (uint8, []byte, bool) {
	d, ok := <-c.deliveries
	return d.streamID, d.payload, ok
}

// Close sends Connection-Close and marks the connection closed locally.
func (c *Connection) Close(reason sliqerr.ConnCloseReason) {
	c.loop.Go(func() {
		if c.closed {
			return
		}
		c.writeDatagram([]wire.Header{wire.ConnClose{Reason: reason}})
		c.closed = true
	})
}

// Reset sends Connection-Reset, which requires no response, and marks the
// connection closed immediately.
func (c *Connection) Reset(code sliqerr.ConnResetCode) {
	c.loop.Go(func() {
		if c.closed {
			return
		}
		c.writeDatagram([]wire.Header{wire.ConnReset{Error: code}})
		c.closed = true
	})
}

// Stop tears down the connection's loop goroutine without sending
// anything further on the wire.
func (c *Connection) Stop() {
	c.loop.Stop()
}

// IdleFor reports how long the connection has gone without receiving
// anything, for the embedder's idle-timeout check.
func (c *Connection) IdleFor() time.Duration {
	return Call(c.loop, func() time.Duration { return time.Since(c.lastActivity) })
}
