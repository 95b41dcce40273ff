package conn

// UnknownInnerHandler is invoked for a delivered payload on a stream with
// a reserved inner-protocol role (3, 5, 7) whose first byte doesn't match
// any inner type this module interprets. Stream 7's RRM-like inner type
// is left open-ended: such payloads are passed through opaquely rather
// than rejected, since a strict core should not need to understand every
// control-plane sub-protocol layered over a stream to move its bytes
// correctly.
type UnknownInnerHandler func(streamID uint8, innerType byte, payload []byte)

// reservedInnerStreams are stream ids set aside for inner control-plane
// protocols layered over ordinary Data delivery, rather than opaque
// application payloads.
var reservedInnerStreams = map[uint8]bool{3: true, 5: true, 7: true}

// demux routes delivered stream payloads: ordinary application streams go
// straight to the caller via Connection.Recv, reserved inner-protocol
// streams whose payload this module doesn't interpret are routed to
// unknown instead.
type demux struct {
	unknown UnknownInnerHandler
}

func newDemux(unknown UnknownInnerHandler) *demux {
	if unknown == nil {
		unknown = func(uint8, byte, []byte) {}
	}
	return &demux{unknown: unknown}
}

// Deliver reports whether payload was handled as a reserved inner
// protocol (in which case the caller should not also surface it as
// ordinary stream data).
func (d *demux) Deliver(streamID uint8, payload []byte) bool {
	if !reservedInnerStreams[streamID] {
		return false
	}
	var innerType byte
	if len(payload) > 0 {
		innerType = payload[0]
	}
	d.unknown(streamID, innerType, payload)
	return true
}
