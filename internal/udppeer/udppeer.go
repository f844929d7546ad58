// Package udppeer implements the shim's single UDP destination: the
// connect-then-disconnect-then-bind dance used to pick a local address
// of the right family before rebinding to a fixed local port, and the
// send/receive primitives the event loop drives.
//
// Grounded on doismellburning/samoyed's src/waypoint.go (net.Dial("udp",
// ...)) and src/audio.go (net.ListenUDP) for the general net.* idiom, generalized
// to the resolve/connect/disconnect/rebind sequence of
// original_source/fakeserial.c's client_setup().
package udppeer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// sendBufferBytes is the SO_SNDBUF size the original sets on the UDP
// socket (fakeserial.c: "sendbuff = 2048").
const sendBufferBytes = 2048

type loggerFuncs interface {
	Info(msg interface{}, kv ...interface{})
	Warn(msg interface{}, kv ...interface{})
}

// Peer is the shim's single remembered UDP destination; the shim only
// ever holds one at a time.
type Peer struct {
	conn *net.UDPConn
	dest *net.UDPAddr
	fd   int
}

// Connect resolves destHost, and for each candidate address tries to
// connect a probe socket (to confirm the route and learn the address
// family), disconnects it, and rebinds an unconnected socket to the
// wildcard address of that family at localPort with SO_REUSEADDR and a
// 2048-byte send buffer. The first candidate that completes the whole
// sequence wins; failure to do this for every candidate is fatal.
func Connect(ctx context.Context, destHost string, destPort, localPort int, log loggerFuncs) (*Peer, error) {
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, destHost)
	if err != nil {
		return nil, fmt.Errorf("udppeer: resolving %s: %w", destHost, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("udppeer: no addresses found for %s", destHost)
	}

	var lastErr error
	for _, ip := range ips {
		network := "udp4"
		if ip.IP.To4() == nil {
			network = "udp6"
		}

		dest := &net.UDPAddr{IP: ip.IP, Port: destPort}

		probe, dialErr := net.DialUDP(network, nil, dest)
		if dialErr != nil {
			lastErr = dialErr
			if log != nil {
				log.Warn("udppeer: candidate unreachable, trying next", "addr", dest.String(), "err", dialErr)
			}
			continue
		}
		probe.Close() // "un-connect": we only needed this to confirm the route and family.

		lc := net.ListenConfig{Control: setSockOpts}
		pc, listenErr := lc.ListenPacket(ctx, network, wildcardAddr(network, localPort))
		if listenErr != nil {
			lastErr = listenErr
			continue
		}

		conn := pc.(*net.UDPConn)
		fd, fdErr := connFd(conn)
		if fdErr != nil {
			conn.Close()
			lastErr = fdErr
			continue
		}

		if log != nil {
			log.Info("udp peer channel ready", "dest", dest.String(), "local", conn.LocalAddr().String())
		}
		return &Peer{conn: conn, dest: dest, fd: fd}, nil
	}

	return nil, fmt.Errorf("udppeer: could not set up a socket for any resolved address of %s: %w", destHost, lastErr)
}

func wildcardAddr(network string, port int) string {
	host := "0.0.0.0"
	if network == "udp6" {
		host = "::"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func setSockOpts(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sendBufferBytes)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func connFd(conn *net.UDPConn) (int, error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	err = rc.Control(func(f uintptr) { fd = int(f) })
	return fd, err
}

// Fd returns the underlying socket descriptor, for use by the event
// loop's readiness wait.
func (p *Peer) Fd() int {
	return p.fd
}

// Send sendto's frame to the one remembered destination.
func (p *Peer) Send(frame []byte) error {
	_, err := p.conn.WriteToUDP(frame, p.dest)
	return err
}

// Recv reads one datagram into buf, returning its length. A received
// 802.15.4 MAC frame is never larger than 127 bytes, but buf is sized
// by the caller.
func (p *Peer) Recv(buf []byte) (int, error) {
	n, _, err := p.conn.ReadFromUDP(buf)
	return n, err
}

// Close releases the socket.
func (p *Peer) Close() error {
	return p.conn.Close()
}
