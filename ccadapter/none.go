package ccadapter

// none implements Algorithm with no pacing or window limits at all: every
// send is immediately permitted. Used for loopback/testing connections
// that opt out of congestion control entirely.
type none struct{}

func newNone() *none { return &none{} }

func (n *none) Type() uint8 { return TypeNone }

func (n *none) OnSend(ev PacketEvent) Decision { return Decision{Permitted: true} }

func (n *none) OnAck(ev PacketEvent) {}

func (n *none) CCSyncPayload() (uint32, bool) { return 0, false }

func (n *none) OnCCSync(params uint32) {}

func (n *none) OnPktTrain(trainID uint32, pktInTrain, pktsInTrain uint16, payload []byte) {}
