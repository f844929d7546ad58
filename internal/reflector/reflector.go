// Package reflector implements the broker side: an add-only set of UDP
// peers and a read-and-fan-out-except-sender loop.
//
// Grounded on original_source/udp-broker.c's client_list/list_find/list_add
// and its main loop, adapted from a singly-linked list keyed by
// memcmp(sockaddr) (which in the original actually compares list-node
// pointers, not address bytes, since list_find's memcmp target is `p` not
// `&p->addr` — a bug this package does not reproduce) to a map keyed by the
// address's string form, the idiomatic Go equivalent of comparing the raw
// address bytes.
package reflector

import (
	"bytes"
	"fmt"
	"net"
)

type loggerFuncs interface {
	Info(msg interface{}, kv ...interface{})
	Warn(msg interface{}, kv ...interface{})
}

// Capture is satisfied by *pcap.Writer; the broker holds one optionally.
type Capture interface {
	WritePacket(tsSec, tsUsec uint32, payload []byte) error
}

// Clock lets tests control the timestamps written to a Capture without
// touching the wall clock.
type Clock func() (sec, usec uint32)

// PeerSet is the add-only registry of addresses the broker has seen,
// keyed by the UDP address's string form — fixes the original's
// address-identity bug by comparing address bytes, not list positions.
type PeerSet struct {
	byAddr map[string]*net.UDPAddr
	order  []*net.UDPAddr
}

// NewPeerSet returns an empty registry.
func NewPeerSet() *PeerSet {
	return &PeerSet{byAddr: make(map[string]*net.UDPAddr)}
}

// Register adds addr if it hasn't been seen before, returning whether it
// was newly added.
func (s *PeerSet) Register(addr *net.UDPAddr) bool {
	key := addr.String()
	if _, ok := s.byAddr[key]; ok {
		return false
	}
	s.byAddr[key] = addr
	s.order = append(s.order, addr)
	return true
}

// All returns every registered peer, in registration order.
func (s *PeerSet) All() []*net.UDPAddr {
	return s.order
}

// Conn is the subset of net.PacketConn the broker drives.
type Conn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// Broker owns the peer set, the socket, an optional capture journal, and
// forwards each datagram it receives to every other registered peer.
type Broker struct {
	conn    Conn
	peers   *PeerSet
	capture Capture
	clock   Clock
	log     loggerFuncs
	bufSize int
}

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithCapture attaches a pcap journal; every received datagram is
// appended to it, whether or not there is another peer to forward it to.
func WithCapture(c Capture, clock Clock) Option {
	return func(b *Broker) {
		b.capture = c
		b.clock = clock
	}
}

// WithLogger attaches a structured logger.
func WithLogger(log loggerFuncs) Option {
	return func(b *Broker) { b.log = log }
}

// bufferSize is the original's BUFSIZE; generous relative to a Serial V1
// frame's 127-byte ceiling since the broker is protocol-agnostic and
// simply reflects whatever datagram arrives.
const bufferSize = 2048

// New builds a Broker around an already-bound socket.
func New(conn Conn, opts ...Option) *Broker {
	b := &Broker{conn: conn, peers: NewPeerSet(), bufSize: bufferSize}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ServeOnce reads one datagram, registers its sender if new, and forwards
// it to every other registered peer, best-effort: a failed send to one
// peer is logged and ignored, never fatal.
func (b *Broker) ServeOnce() error {
	buf := make([]byte, b.bufSize)
	n, sender, err := b.conn.ReadFromUDP(buf)
	if err != nil {
		return fmt.Errorf("reflector: reading datagram: %w", err)
	}
	payload := buf[:n]

	if b.peers.Register(sender) && b.log != nil {
		b.log.Info("registered new peer", "addr", sender.String())
	}

	if b.capture != nil {
		sec, usec := b.clock()
		if err := b.capture.WritePacket(sec, usec, payload); err != nil && b.log != nil {
			b.log.Warn("capture write failed", "err", err)
		}
	}

	for _, peer := range b.peers.All() {
		if sameAddr(peer, sender) {
			continue
		}
		if _, err := b.conn.WriteToUDP(payload, peer); err != nil && b.log != nil {
			b.log.Warn("forward failed, ignoring", "peer", peer.String(), "err", err)
		}
	}

	return nil
}

// Serve loops ServeOnce forever; it only returns on a socket error.
func (b *Broker) Serve() error {
	for {
		if err := b.ServeOnce(); err != nil {
			return err
		}
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && bytes.Equal(a.IP, b.IP)
}
