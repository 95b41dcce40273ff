package conn

import (
	"github.com/sliqtransport/sliq/ccadapter"
	"github.com/sliqtransport/sliq/wire"
)

// HandshakeState is the connection's position in the four-message
// Client-Hello/Server-Hello/Client-Confirm/Reject exchange.
type HandshakeState uint8

const (
	HandshakeIdle HandshakeState = iota
	HandshakeSentHello
	HandshakeAwaitingConfirm
	HandshakeConfirmed
	HandshakeRejected
)

// Handshake drives one connection's handshake state machine from either
// role. Until Confirmed() is true the owning Connection refuses
// stream-create requests.
type Handshake struct {
	isServer bool
	state    HandshakeState

	offered  []wire.CCAlgEntry
	selected []wire.CCAlgEntry
	supported map[uint8]bool
}

// NewClientHandshake starts a client-side handshake proposing offered, in
// preference order, up to wire.MaxCCAlgorithms entries.
func NewClientHandshake(offered []wire.CCAlgEntry) *Handshake {
	if len(offered) > wire.MaxCCAlgorithms {
		offered = offered[:wire.MaxCCAlgorithms]
	}
	return &Handshake{offered: offered}
}

// NewServerHandshake starts a server-side handshake that will accept any
// proposed algorithm type present in supported.
func NewServerHandshake(supported map[uint8]bool) *Handshake {
	return &Handshake{isServer: true, supported: supported}
}

// State returns the handshake's current state.
func (h *Handshake) State() HandshakeState { return h.state }

// Confirmed reports whether the handshake has completed successfully.
func (h *Handshake) Confirmed() bool { return h.state == HandshakeConfirmed }

// ClientHello builds the Client-Hello header and transitions to
// HandshakeSentHello.
func (h *Handshake) ClientHello(nowUs uint32) wire.ConnHandshake {
	h.state = HandshakeSentHello
	return wire.ConnHandshake{
		MsgTag: wire.ClientHelloTag,
		Ts:     nowUs,
		EchoTs: 0,
		CCAlgs: h.offered,
	}
}

// HandleServerHello consumes a Server-Hello. An empty selection means the
// server rejected every proposed algorithm; the connection should treat
// this the same as an explicit Reject.
func (h *Handshake) HandleServerHello(msg wire.ConnHandshake) bool {
	if h.isServer || h.state != HandshakeSentHello || msg.MsgTag != wire.ServerHelloTag {
		return false
	}
	if len(msg.CCAlgs) == 0 {
		h.state = HandshakeRejected
		return false
	}
	h.selected = msg.CCAlgs
	h.state = HandshakeAwaitingConfirm
	return true
}

// ClientConfirm builds the Client-Confirm header and completes the
// handshake.
func (h *Handshake) ClientConfirm(nowUs, echoUs uint32) wire.ConnHandshake {
	h.state = HandshakeConfirmed
	return wire.ConnHandshake{
		MsgTag: wire.ClientConfirmTag,
		Ts:     nowUs,
		EchoTs: echoUs,
	}
}

// HandleClientHello consumes a Client-Hello on the server side and
// returns either a Server-Hello (selecting the subset of offered
// algorithms this server supports, preserving order) or a Reject if none
// are supported.
func (h *Handshake) HandleClientHello(msg wire.ConnHandshake, nowUs uint32) wire.ConnHandshake {
	offers := make([]ccadapter.Offer, len(msg.CCAlgs))
	for i, e := range msg.CCAlgs {
		offers[i] = ccadapter.Offer{Type: uint8(e.Type), Params: e.Params}
	}
	selected := ccadapter.SelectServer(offers, h.supported)
	if len(selected) == 0 {
		h.state = HandshakeRejected
		return wire.ConnHandshake{MsgTag: wire.RejectTag, Ts: nowUs, EchoTs: msg.Ts}
	}
	h.selected = make([]wire.CCAlgEntry, len(selected))
	for i, o := range selected {
		h.selected[i] = wire.CCAlgEntry{Type: wire.CCType(o.Type), Params: o.Params}
	}
	h.state = HandshakeAwaitingConfirm
	return wire.ConnHandshake{
		MsgTag: wire.ServerHelloTag,
		Ts:     nowUs,
		EchoTs: msg.Ts,
		CCAlgs: h.selected,
	}
}

// HandleClientConfirm consumes a Client-Confirm on the server side.
func (h *Handshake) HandleClientConfirm(msg wire.ConnHandshake) bool {
	if !h.isServer || h.state != HandshakeAwaitingConfirm || msg.MsgTag != wire.ClientConfirmTag {
		return false
	}
	h.state = HandshakeConfirmed
	return true
}

// HandleReject consumes an explicit Reject from either role.
func (h *Handshake) HandleReject() {
	h.state = HandshakeRejected
}

// SelectedAlgorithm builds the negotiated CC algorithm, or ccadapter.New's
// None fallback if nothing was selected yet.
func (h *Handshake) SelectedAlgorithm() ccadapter.Algorithm {
	offers := make([]ccadapter.Offer, len(h.selected))
	for i, e := range h.selected {
		offers[i] = ccadapter.Offer{Type: uint8(e.Type), Params: e.Params}
	}
	return ccadapter.Build(offers)
}
