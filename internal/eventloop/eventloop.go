// Package eventloop drives the shim's single-threaded duplex I/O: wait
// for either the PTY master or the UDP socket to have data, then service
// whichever (or both) woke us, UDP first.
//
// Grounded on original_source/fakeserial.c's main loop (FD_SET both
// serialfd and udpsock, select with no timeout, FD_ISSET(udpsock) serviced
// before FD_ISSET(serialfd)) and on doismellburning/samoyed's src/kiss.go
// comment block about needing a select() before reading the PTY master
// ("/* TODO KG Check how this all works with Go IO and the pty lib
// used.. */") — this package is that select, implemented with
// golang.org/x/sys/unix.Select instead of left as a TODO.
package eventloop

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/doismellburning/ieee154bridge/internal/ptyio"
)

type loggerFuncs interface {
	Warn(msg interface{}, kv ...interface{})
}

// PTY is the subset of ptyio.Endpoint the loop needs.
type PTY interface {
	Fd() int
	Read(p []byte) (int, error)
	Reacquire(log interface {
		Info(msg interface{}, kv ...interface{})
		Warn(msg interface{}, kv ...interface{})
		Error(msg interface{}, kv ...interface{})
		Fatal(msg interface{}, kv ...interface{})
	})
}

// UDP is the subset of udppeer.Peer the loop needs.
type UDP interface {
	Fd() int
	Recv(buf []byte) (int, error)
}

// Loop ties a PTY and a UDP peer together: on each wake it reads whichever
// fd(s) are ready and hands the bytes to the supplied callbacks.
type Loop struct {
	pty PTY
	udp UDP

	onPTYByte   func(byte) error
	onPTYHangup func()
	onUDPFrame  func([]byte) error

	log loggerFuncs
}

// New builds a Loop. onPTYByte is called once per byte read from the PTY
// (the Serial V1 parser feeds byte-at-a-time); onPTYHangup
// is called when the PTY reports a hang-up so the caller can reacquire it
// and reset parser state; onUDPFrame is called once per UDP datagram with
// its full payload.
func New(pty PTY, udp UDP, onPTYByte func(byte) error, onPTYHangup func(), onUDPFrame func([]byte) error, log loggerFuncs) *Loop {
	return &Loop{pty: pty, udp: udp, onPTYByte: onPTYByte, onPTYHangup: onPTYHangup, onUDPFrame: onUDPFrame, log: log}
}

// RunOnce blocks in select(2) until either fd is ready, then services UDP
// before the PTY, matching fakeserial.c's FD_ISSET ordering.
func (l *Loop) RunOnce() error {
	ptyFd := l.pty.Fd()
	udpFd := l.udp.Fd()

	nfds := ptyFd
	if udpFd > nfds {
		nfds = udpFd
	}

	readSet := &unix.FdSet{}
	fdSet(readSet, ptyFd)
	fdSet(readSet, udpFd)

	n, err := unix.Select(nfds+1, readSet, nil, nil, nil)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("eventloop: select: %w", err)
	}
	if n <= 0 {
		return nil
	}

	if fdIsSet(readSet, udpFd) {
		if err := l.serviceUDP(); err != nil {
			return err
		}
	}

	if fdIsSet(readSet, ptyFd) {
		if err := l.servicePTY(); err != nil {
			return err
		}
	}

	return nil
}

// Run calls RunOnce forever until it returns an error.
func (l *Loop) Run() error {
	for {
		if err := l.RunOnce(); err != nil {
			return err
		}
	}
}

const udpRecvBufSize = 2048

func (l *Loop) serviceUDP() error {
	buf := make([]byte, udpRecvBufSize)
	n, err := l.udp.Recv(buf)
	if err != nil {
		return fmt.Errorf("eventloop: udp recv: %w", err)
	}
	return l.onUDPFrame(buf[:n])
}

// servicePTY reads and dispatches one byte at a time, matching samoyed's
// kisspt_get()-style byte reader; a hang-up re-arms the PTY
// and lets the caller reset any partially-parsed command.
func (l *Loop) servicePTY() error {
	buf := make([]byte, 1)
	n, err := l.pty.Read(buf)
	if err != nil {
		if !errors.Is(err, ptyio.ErrHangup) {
			return fmt.Errorf("eventloop: fatal pty error: %w", err)
		}
		l.onPTYHangup()
		l.pty.Reacquire(ptyLogAdapter{l.log})
		return nil
	}
	if n == 0 {
		return nil
	}
	if err := l.onPTYByte(buf[0]); err != nil {
		return fmt.Errorf("eventloop: pty byte handling: %w", err)
	}
	return nil
}

// ptyLogAdapter lets eventloop pass its narrower Warn-only loggerFuncs
// through to PTY.Reacquire's wider interface. Only Warn is forwarded;
// Info, Error and Fatal calls (such as the PTY's "ready" Info line after
// a reacquire) are discarded.
type ptyLogAdapter struct{ log loggerFuncs }

func (a ptyLogAdapter) Info(msg interface{}, kv ...interface{})  {}
func (a ptyLogAdapter) Warn(msg interface{}, kv ...interface{}) {
	if a.log != nil {
		a.log.Warn(msg, kv...)
	}
}
func (a ptyLogAdapter) Error(msg interface{}, kv ...interface{}) {}
func (a ptyLogAdapter) Fatal(msg interface{}, kv ...interface{}) {}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
