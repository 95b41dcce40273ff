// Package wire implements the bit-exact SLIQ header codec: parsing and
// emitting the ten header types that make up a SLIQ UDP payload.
package wire

// HeaderType is the one-byte type tag leading every SLIQ header.
type HeaderType uint8

const (
	TypeConnHandshake  HeaderType = 0
	TypeConnReset      HeaderType = 1
	TypeConnClose      HeaderType = 2
	TypeStreamCreate   HeaderType = 3
	TypeStreamReset    HeaderType = 4
	TypeData           HeaderType = 32
	TypeAck            HeaderType = 33
	TypeCCSync         HeaderType = 34
	TypeRcvdPktCount   HeaderType = 35
	TypeCCPktTrain     HeaderType = 40
)

func (t HeaderType) String() string {
	switch t {
	case TypeConnHandshake:
		return "ConnectionHandshake"
	case TypeConnReset:
		return "ConnectionReset"
	case TypeConnClose:
		return "ConnectionClose"
	case TypeStreamCreate:
		return "StreamCreate"
	case TypeStreamReset:
		return "StreamReset"
	case TypeData:
		return "Data"
	case TypeAck:
		return "Ack"
	case TypeCCSync:
		return "CCSync"
	case TypeRcvdPktCount:
		return "ReceivedPacketCount"
	case TypeCCPktTrain:
		return "CCPktTrain"
	default:
		return "Unknown"
	}
}

// isTerminal reports whether a header type must be the last one in a
// datagram. Connection-level headers and Data are terminal; ACK, CC-Sync
// and Received-Packet-Count are chainable.
func (t HeaderType) isTerminal() bool {
	switch t {
	case TypeConnHandshake, TypeConnReset, TypeConnClose, TypeStreamCreate, TypeStreamReset, TypeData, TypeCCPktTrain:
		return true
	default:
		return false
	}
}

// Handshake message tags, carried in the Connection-Handshake MsgTag field.
const (
	ClientHelloTag   uint16 = 0x4843
	ServerHelloTag   uint16 = 0x4853
	ClientConfirmTag uint16 = 0x4343
	RejectTag        uint16 = 0x4A52
)

// CCType enumerates the reserved congestion-control algorithm codes
// negotiated during the handshake. The algorithms themselves live outside
// this module; SLIQ only carries the tag.
type CCType uint8

const (
	CCNone           CCType = 0
	CCCubicBytes     CCType = 1
	CCRenoBytes      CCType = 2
	CCTCPCubic       CCType = 3
	CCCopaConstDelta CCType = 4
	CCCopaM          CCType = 5
	CCCopa2          CCType = 6
	CCCopa3          CCType = 7
	CCFixedRate      CCType = 15
)

// Connection-Handshake CC algorithm entry flags.
const (
	chDetermFlag uint8 = 0x02
	chPacingFlag uint8 = 0x01
)

// Connection-Close flags.
const (
	ccAckFlag uint8 = 0x01
)

// Data header flags (byte 1). Bit positions fixed to the parser/dissector
// layout resolved from the original source, not the compressed mnemonic in
// the table.
const (
	dFinFlag        uint8 = 0x01
	dPersistFlag    uint8 = 0x02
	dMoveFwdFlag    uint8 = 0x10
	dFecFlag        uint8 = 0x20
	dEncPktLenFlag  uint8 = 0x40
)

// Stream-Create flags (byte 1).
const (
	scAckFlag      uint8 = 0x01
	scDelTimeFlag  uint8 = 0x02
	scAutoTuneFlag uint8 = 0x04
)

// Stream-Create delivery/reliability nibble byte.
const (
	scDelModeShift = 4
	scDelModeMask  = 0xf0
	scRelModeMask  = 0x0f
)

// DeliveryMode is the ordering contract of a stream.
type DeliveryMode uint8

const (
	DeliveryUnordered DeliveryMode = 0
	DeliveryOrdered   DeliveryMode = 1
)

// ReliabilityMode is the retransmission contract of a stream.
type ReliabilityMode uint8

const (
	ReliabilityBestEffort      ReliabilityMode = 0
	ReliabilitySemiReliableARQ ReliabilityMode = 1
	ReliabilitySemiReliableFEC ReliabilityMode = 2
	ReliabilityReliableARQ     ReliabilityMode = 4
)

// ACK header nopt/nabo packing (byte 3).
const (
	ackNoptShift = 5
	ackNoptMask  = 0xe0
	ackNaboMask  = 0x1f
)

// ACK block type_offset packing.
const (
	ackBlockTypeBit    uint16 = 0x8000
	ackBlockOffsetMask uint16 = 0x7fff
)

// FecType distinguishes a Data packet's payload role inside its group.
type FecType uint8

const (
	FecSource  FecType = 0
	FecEncoded FecType = 1
)

// Data header FEC sub-header packing (first uint16 of the 4-byte field).
const (
	dFecTypeBit  uint16 = 0x8000
	dFecIdxMask  uint16 = 0x3f00
	dFecIdxShift        = 8
)

// MaxCCAlgorithms is the handshake's per-direction limit on proposed or
// accepted congestion-control algorithms.
const MaxCCAlgorithms = 16
