// Package shim wires the PTY, the Serial V1 parser, the UDP peer channel,
// and the event loop into the fakeserial binary's run loop, and handles
// the PTY-hangup-resets-parser flow.
//
// Grounded on original_source/fakeserial.c's main(): allocate the serial
// side, set up the UDP client, then loop servicing both.
package shim

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/ieee154bridge/internal/eventloop"
	"github.com/doismellburning/ieee154bridge/internal/ptyio"
	"github.com/doismellburning/ieee154bridge/internal/serialv1"
	"github.com/doismellburning/ieee154bridge/internal/udppeer"
)

// Config holds everything needed to start a fakeserial shim.
type Config struct {
	DevicePath string
	BaudRate   int

	LocalUDPPort int
	RemoteHost   string
	RemoteUDPPort int
}

// Shim owns the PTY, the UDP peer, the parser, and the event loop, for
// the lifetime of one run.
type Shim struct {
	pty    *ptyio.Endpoint
	peer   *udppeer.Peer
	device *serialv1.DeviceState
	parser *serialv1.Parser
	loop   *eventloop.Loop
	log    *log.Logger
}

// New allocates the PTY and the UDP peer channel and wires them to a
// fresh parser and event loop. Either step failing is fatal; there is no
// retry.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Shim, error) {
	if logger == nil {
		// A nil *log.Logger stored in the interface-typed logger
		// parameters below would not compare equal to nil there.
		logger = log.New(io.Discard)
	}

	pty, err := ptyio.Open(cfg.DevicePath, cfg.BaudRate, logger)
	if err != nil {
		return nil, fmt.Errorf("shim: opening pty: %w", err)
	}

	peer, err := udppeer.Connect(ctx, cfg.RemoteHost, cfg.RemoteUDPPort, cfg.LocalUDPPort, logger)
	if err != nil {
		pty.Close()
		return nil, fmt.Errorf("shim: setting up udp peer: %w", err)
	}

	device := new(serialv1.DeviceState)
	parser := serialv1.NewParser(device, pty, peer, logger)

	s := &Shim{pty: pty, peer: peer, device: device, parser: parser, log: logger}

	s.loop = eventloop.New(pty, peer, s.onPTYByte, s.onPTYHangup, s.onUDPFrame, logger)
	return s, nil
}

// Run drives the event loop until it returns an error (normally only on
// an unrecoverable socket or parser error; PTY hang-ups are handled
// internally and never stop the loop).
func (s *Shim) Run() error {
	return s.loop.Run()
}

// Close releases the PTY and UDP socket.
func (s *Shim) Close() {
	s.pty.Close()
	s.peer.Close()
}

func (s *Shim) onPTYByte(b byte) error {
	return s.parser.Feed(b)
}

// onPTYHangup resets the parser so a partially-read command from before
// the hang-up is never mistaken for the tail of the next one. Device
// state (PAN id, addresses) is untouched, since *device is shared by
// reference and never replaced.
func (s *Shim) onPTYHangup() {
	if s.log != nil {
		s.log.Warn("pty hung up, reacquiring")
	}
	s.parser.Reset()
}

// onUDPFrame turns an inbound UDP datagram into a device-initiated
// RX_BLOCK record written to the PTY: a UDP datagram is treated as a
// received 802.15.4 MAC frame.
func (s *Shim) onUDPFrame(frame []byte) error {
	const lqi = 0 // not modeled by the reflector, always reported as 0.
	if len(frame) > serialv1.MaxFrameLen {
		if s.log != nil {
			s.log.Warn("dropping oversized inbound frame", "bytes", len(frame))
		}
		return nil
	}
	return serialv1.WriteRXBlock(s.pty, lqi, frame)
}
