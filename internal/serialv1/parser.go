package serialv1

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

type state int

const (
	stateIdle state = iota
	stateGotZ
	stateReady
	stateReadLen     // TX_BLOCK only: waiting for the one-byte length prefix
	stateReadPayload // accumulating `remaining` more payload bytes for `op`
)

// Transmitter is the effect a TX_BLOCK command has: hand the frame to
// the UDP peer channel. Kept as a narrow interface so the parser doesn't
// need to know about sockets.
type Transmitter interface {
	Send(frame []byte) error
}

// Parser is the byte-at-a-time Serial V1 command decoder. Feed it one
// byte at a time from the PTY master; it dispatches completed commands
// itself, writing any response record to out and handing TX_BLOCK
// payloads to tx.
//
// Mirrors the shape of samoyed's kiss_rec_byte: an explicit state
// enum, one incoming byte advances exactly one step, and the struct
// holds the partially-read command between calls; after a PTY hang-up
// the caller discards it with Reset.
type Parser struct {
	state     state
	op        Opcode
	remaining int
	payload   []byte

	device *DeviceState
	out    io.Writer
	tx     Transmitter
	log    *log.Logger
}

// NewParser builds a Parser bound to the given device state, response
// sink, and transmit effect. The device state is retained across PTY
// re-acquisition by the caller simply not replacing *device.
func NewParser(device *DeviceState, out io.Writer, tx Transmitter, logger *log.Logger) *Parser {
	return &Parser{device: device, out: out, tx: tx, log: logger}
}

// Reset returns the parser to its initial IDLE state, discarding any
// partially-read command. Used when the PTY is re-acquired mid-command,
// so a hang-up never leaves a stale partial command to be mistaken for
// the tail of the next one.
func (p *Parser) Reset() {
	p.state = stateIdle
	p.op = 0
	p.remaining = 0
	p.payload = nil
}

// Feed processes one byte read from the PTY master. It returns an error
// only for a response-record write failure or a transmit failure;
// protocol desynchronization (garbage before the preamble) is never an
// error.
func (p *Parser) Feed(b byte) error {
	switch p.state {
	case stateIdle:
		if b == Preamble1 {
			p.state = stateGotZ
		}
		// Else: drop the byte silently and stay in IDLE.

	case stateGotZ:
		if b == Preamble2 {
			p.state = stateReady
		} else {
			// A stray 'z' does NOT re-arm GOT_Z here; the byte is simply
			// dropped and we fall back to IDLE, matching the original
			// parse_cmd's sequential read_one_byte() calls with no
			// pushback.
			p.state = stateIdle
		}

	case stateReady:
		p.op = Opcode(b)
		return p.beginPayload()

	case stateReadLen:
		p.remaining = int(b)
		p.payload = make([]byte, 0, p.remaining)
		if p.remaining == 0 {
			return p.dispatch()
		}
		p.state = stateReadPayload

	case stateReadPayload:
		p.payload = append(p.payload, b)
		p.remaining--
		if p.remaining == 0 {
			return p.dispatch()
		}
	}

	return nil
}

// beginPayload decides, from the freshly-read opcode, whether there's a
// fixed-length payload to collect, a TX_BLOCK length prefix to read
// first, or nothing at all (in which case the command dispatches
// immediately).
func (p *Parser) beginPayload() error {
	if p.op == OpTXBlock {
		p.state = stateReadLen
		return nil
	}

	n := fixedPayloadLen(p.op)
	if n == 0 {
		return p.dispatch()
	}

	p.remaining = n
	p.payload = make([]byte, 0, n)
	p.state = stateReadPayload
	return nil
}

// dispatch runs the effect handler for a fully-read command, then
// returns the parser to IDLE.
func (p *Parser) dispatch() error {
	op, payload := p.op, p.payload
	p.Reset()

	switch op {
	case OpSetPANID:
		p.device.SetPANID(payload[0], payload[1])
		return writeResponse(p.out, op, nil)

	case OpSetShortAddr:
		p.device.SetShortAddr(payload[0], payload[1])
		return writeResponse(p.out, op, nil)

	case OpSetLongAddr:
		var addr [LongAddrLen]byte
		copy(addr[:], payload)
		p.device.SetLongAddr(addr)
		return writeResponse(p.out, op, nil)

	case OpGetAddr:
		addr := p.device.LongAddr
		return writeResponse(p.out, op, addr[:])

	case OpTXBlock:
		if p.log != nil {
			p.log.Debug("TX_BLOCK", "bytes", len(payload))
		}
		if err := p.tx.Send(payload); err != nil {
			return fmt.Errorf("serialv1: TX_BLOCK send: %w", err)
		}
		return writeResponse(p.out, op, nil)

	case OpSetChannel:
		// The channel byte (payload[0]) is read and discarded; the
		// channel is not stored anywhere.
		return writeResponse(p.out, op, nil)

	default:
		// OPEN, CLOSE, ED, CCA, SET_STATE, and any unrecognized opcode
		// just get a success response with no state change.
		return writeResponse(p.out, op, nil)
	}
}
