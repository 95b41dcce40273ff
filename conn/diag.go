package conn

import (
	"time"

	"github.com/sliqtransport/sliq/wire"
)

// diagInterval bounds how often the Received-Packet-Count supplement goes
// out per stream: opportunistic, not reliable, so there is no harm in
// missing a cycle under load.
const diagInterval = time.Second

// emitRcvdPktCount appends a Received-Packet-Count header for every
// stream that has received at least one packet in total and whose
// interval has elapsed, carrying the stream's running count. A stream is
// reported again each interval even if nothing new has arrived. The peer
// only logs the header.
func (c *Connection) emitRcvdPktCount(now time.Time, headers []wire.Header) []wire.Header {
	for id, s := range c.streams {
		count, lastSeq := s.RecvStats()
		if count == 0 {
			continue
		}
		last, ok := c.diagSentAt[id]
		if ok && now.Sub(last) < diagInterval {
			continue
		}
		if c.diagSentAt == nil {
			c.diagSentAt = make(map[uint8]time.Time)
		}
		c.diagSentAt[id] = now
		headers = append(headers, wire.RcvdPktCount{
			StreamID:  id,
			PktSeq:    lastSeq,
			RcvdCount: count,
		})
	}
	return headers
}
