// Package ptyio allocates and maintains the pseudo-terminal the Serial
// V1 shim exposes as a fake IEEE 802.15.4 radio, including hang-up
// recovery.
//
// Grounded on doismellburning/samoyed's src/kiss.go
// (kisspt_open_pt/kisspt_get: the symlink-and-raw-mode setup and the
// reopen-after-hangup loop), using github.com/creack/pty for the
// allocation itself and golang.org/x/sys/unix for the termios attributes
// creack/pty doesn't set, following the Termios field layout the
// Daedaluz-goserial library uses for the same ioctls.
package ptyio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// SupportedBauds are the only baud rates the Serial V1 driver family is
// ever configured for. Any other rate is a fatal configuration error.
var SupportedBauds = map[int]uint32{
	115200:  unix.B115200,
	921600:  unix.B921600,
}

// Endpoint owns the master side of the PTY plus the symlink published at
// DevicePath, re-creating both whenever the kernel driver hangs up.
type Endpoint struct {
	DevicePath string
	BaudRate   int

	master *os.File
}

// loggerFuncs is satisfied by *rflog.Logger (a *charmbracelet/log.Logger)
// without this package importing that type directly. It is an alias so
// that Reacquire's parameter type is identical to the interface literal
// in eventloop.PTY.
type loggerFuncs = interface {
	Info(msg interface{}, kv ...interface{})
	Warn(msg interface{}, kv ...interface{})
	Error(msg interface{}, kv ...interface{})
	Fatal(msg interface{}, kv ...interface{})
}

// Open allocates the PTY, applies terminal attributes, removes any stale
// entry at devicePath, and symlinks it to the slave. baud must be one of
// SupportedBauds; anything else is a fatal configuration error.
func Open(devicePath string, baud int, log loggerFuncs) (*Endpoint, error) {
	speed, ok := SupportedBauds[baud]
	if !ok {
		return nil, fmt.Errorf("ptyio: unsupported baud rate %d (supported: 115200, 921600)", baud)
	}

	e := &Endpoint{DevicePath: devicePath, BaudRate: baud}
	if err := e.openOnce(speed, log); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Endpoint) openOnce(speed uint32, log loggerFuncs) error {
	master, slave, err := pty.Open()
	if err != nil {
		return fmt.Errorf("ptyio: allocating pseudo-terminal: %w", err)
	}
	slaveName := slave.Name()
	slave.Close()

	if err := configureRaw(master, speed); err != nil {
		master.Close()
		return fmt.Errorf("ptyio: configuring terminal attributes: %w", err)
	}

	if err := os.Remove(e.DevicePath); err != nil && !os.IsNotExist(err) {
		master.Close()
		return fmt.Errorf("ptyio: removing stale device path %s: %w", e.DevicePath, err)
	}

	if err := os.Symlink(slaveName, e.DevicePath); err != nil {
		master.Close()
		return fmt.Errorf("ptyio: symlinking %s -> %s: %w", e.DevicePath, slaveName, err)
	}

	e.master = master
	if log != nil {
		log.Info("pseudo-terminal ready", "device", e.DevicePath, "pts", slaveName, "baud", e.BaudRate)
	}
	return nil
}

// configureRaw puts the terminal in raw 8N1 mode: input flags are just
// IGNBRK; output and local flags (echo, canonical mode, output
// processing) are cleared; control flags CLOCAL, CREAD, CS8 with no
// parity and one stop bit; VMIN=1, VTIME=5; and the requested speed.
func configureRaw(f *os.File, speed uint32) error {
	fd := int(f.Fd())

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("TCGETS: %w", err)
	}

	t.Iflag = unix.IGNBRK
	t.Oflag = 0
	t.Lflag = 0
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	t.Cflag |= unix.CLOCAL | unix.CREAD | unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 5

	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed & unix.CBAUD
	t.Ispeed = speed
	t.Ospeed = speed

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("TCSETS: %w", err)
	}
	return nil
}

// Fd returns the master file descriptor, for use by the event loop's
// readiness wait.
func (e *Endpoint) Fd() int {
	return int(e.master.Fd())
}

// Read reads from the master. A zero-length read or an I/O error
// (EIO, raised when the kernel driver closes its end) is reported as
// ErrHangup so the caller can reacquire the PTY; any other error is
// fatal.
func (e *Endpoint) Read(p []byte) (int, error) {
	n, err := e.master.Read(p)
	if err != nil {
		if errors.Is(err, unix.EIO) || errors.Is(err, io.EOF) {
			return n, ErrHangup
		}
		return n, err
	}
	if n == 0 {
		return n, ErrHangup
	}
	return n, nil
}

// Write writes to the master (used for response and RX_BLOCK records).
func (e *Endpoint) Write(p []byte) (int, error) {
	return e.master.Write(p)
}

// ErrHangup is returned by Read when the kernel driver has closed its
// end of the PTY; callers should call Reacquire.
var ErrHangup = errors.New("ptyio: pty hang-up, driver closed its end")

// Reacquire closes the current master and re-runs the whole PTY setup
// (new master/slave pair, attributes, symlink) until it succeeds. Device
// state owned by the caller (PAN id, addresses) is untouched — only the
// PTY plumbing is torn down and rebuilt.
func (e *Endpoint) Reacquire(log loggerFuncs) {
	if e.master != nil {
		e.master.Close()
		e.master = nil
	}

	speed := SupportedBauds[e.BaudRate]
	for {
		if err := e.openOnce(speed, log); err == nil {
			return
		} else if log != nil {
			log.Warn("pty reacquire failed, retrying", "err", err)
		}
	}
}

// Close releases the master fd and removes the published symlink.
func (e *Endpoint) Close() error {
	if e.master != nil {
		e.master.Close()
	}
	return os.Remove(e.DevicePath)
}
