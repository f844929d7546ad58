// Package serialv1 implements the "Serial V1" framing used by the Linux
// IEEE 802.15.4 serial MAC driver family (e.g. RedBee Econotag), as
// described by http://sourceforge.net/apps/trac/linux-zigbee/wiki/SerialV1.
//
// A command record on the wire is:
//
//	preamble (2 bytes, 'z' 'b') | opcode (1 byte) | payload (opcode-specific)
//
// A response record OR's the opcode with RespMask and is followed by a
// status byte (StatusSuccess) and any opcode-specific reply payload.
package serialv1

// Preamble bytes. The driver always writes these two bytes before an
// opcode; PTY input that doesn't start with them is garbage and is
// dropped byte-by-byte until the parser resynchronizes.
const (
	Preamble1 = 'z'
	Preamble2 = 'b'
)

// RespMask distinguishes a response (or device-initiated RX_BLOCK) from
// a request: the opcode is OR'd with this bit.
const RespMask = 0x80

// StatusSuccess is the only status value ever emitted; this shim never
// fails a command.
const StatusSuccess = 0x00

// Opcode is one of the host->device command codes from the Serial V1
// opcode table. RX_BLOCK is device-initiated only and never arrives as a
// request.
type Opcode byte

const (
	OpOpen          Opcode = 0x01
	OpClose         Opcode = 0x02
	OpSetChannel    Opcode = 0x04
	OpED            Opcode = 0x05
	OpCCA           Opcode = 0x06
	OpSetState      Opcode = 0x07
	OpTXBlock       Opcode = 0x09
	OpRXBlock       Opcode = 0x0B
	OpGetAddr       Opcode = 0x0D
	OpSetPANID      Opcode = 0x0F
	OpSetShortAddr  Opcode = 0x10
	OpSetLongAddr   Opcode = 0x11
)

// IEEE 802.15.4 address/frame sizing
const (
	LongAddrLen  = 8
	ShortAddrLen = 2
	// MaxFrameLen is the IEEE 802.15.4 MTU: the largest payload TX_BLOCK
	// or RX_BLOCK ever carries.
	MaxFrameLen = 127
	// MaxRecordLen is the largest a command or response record is ever
	// allowed to be on the wire: MaxFrameLen plus framing overhead.
	MaxRecordLen = 132
)

// fixedPayloadLen returns the number of payload bytes that follow the
// opcode for commands whose length is known up front from the opcode
// alone. TX_BLOCK's payload length is carried in the payload itself
// (a length-prefix byte) and is handled specially by the parser, not
// here.
func fixedPayloadLen(op Opcode) int {
	switch op {
	case OpSetChannel:
		return 1
	case OpSetPANID:
		return 2
	case OpSetShortAddr:
		return 2
	case OpSetLongAddr:
		return LongAddrLen
	default:
		// OPEN, CLOSE, ED, CCA, SET_STATE, GET_ADDR, and any unknown
		// opcode carry no request payload. TX_BLOCK is special-cased by
		// the parser before this function is consulted.
		return 0
	}
}
