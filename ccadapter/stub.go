package ccadapter

// stub is a minimal, always-permitting placeholder for the loss/delay-
// reactive algorithms (Cubic, Reno, Copa and their variants). Designing
// their control laws is out of scope; stub exists so a connection can
// negotiate one of these types during handshake and the adapter still
// has somewhere to route CC-Sync/CC-Pkt-Train traffic without the core
// needing to know the negotiation failed to produce a real controller.
type stub struct {
	ccType uint8
}

func newStub(ccType uint8) *stub { return &stub{ccType: ccType} }

func (s *stub) Type() uint8 { return s.ccType }

func (s *stub) OnSend(ev PacketEvent) Decision { return Decision{Permitted: true} }

func (s *stub) OnAck(ev PacketEvent) {}

func (s *stub) CCSyncPayload() (uint32, bool) { return 0, false }

func (s *stub) OnCCSync(params uint32) {}

func (s *stub) OnPktTrain(trainID uint32, pktInTrain, pktsInTrain uint16, payload []byte) {}
