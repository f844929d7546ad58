// Package pcap writes the broker's optional capture journal: a classic
// libpcap file, one record per datagram the broker receives.
//
// Grounded on doismellburning/samoyed's src/agwpe.go (AGWPEHeader/(*AGWPEMessage).Write:
// fixed-layout struct written with a single encoding/binary.Write, with the
// variable-length payload appended by a raw Write) — the same shape, applied
// to the pcap global and per-packet headers instead of an AGW frame.
package pcap

import (
	"encoding/binary"
	"fmt"
	"io"
)

// magic is written as explicit little-endian bytes rather than via
// binary.Write+LittleEndian, so the file's byte-order marker is correct
// regardless of the host's native endianness.
var magic = [4]byte{0xD4, 0xC3, 0xB2, 0xA1}

const (
	versionMajor = 2
	versionMinor = 4

	// snapLen is the Serial V1 MAC frame ceiling (MaxFrameLen).
	snapLen = 127

	// linkType 230 is LINKTYPE_IEEE802_15_4_NOFCS: 802.15.4 frames as
	// carried by this shim, which never include a trailing FCS.
	linkType = 230
)

type globalHeader struct {
	VersionMajor uint16
	VersionMinor uint16
	ThisZone     int32
	SigFigs      uint32
	SnapLen      uint32
	LinkType     uint32
}

type packetHeader struct {
	TsSec   uint32
	TsUsec  uint32
	CapLen  uint32
	OrigLen uint32
}

// Writer appends capture records to an underlying file.
type Writer struct {
	w io.Writer
}

// Create writes the global header to w and returns a Writer ready to
// accept packets. The caller owns closing/truncating the underlying file.
func Create(w io.Writer) (*Writer, error) {
	if _, err := w.Write(magic[:]); err != nil {
		return nil, fmt.Errorf("pcap: writing magic: %w", err)
	}

	hdr := globalHeader{
		VersionMajor: versionMajor,
		VersionMinor: versionMinor,
		SnapLen:      snapLen,
		LinkType:     linkType,
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("pcap: writing global header: %w", err)
	}

	return &Writer{w: w}, nil
}

// WritePacket appends one capture record: a 16-byte per-packet header
// followed by payload verbatim (truncated to snapLen if longer, per
// normal pcap semantics; a Serial V1 frame never actually exceeds it).
func (pw *Writer) WritePacket(tsSec, tsUsec uint32, payload []byte) error {
	captured := payload
	if len(captured) > snapLen {
		captured = captured[:snapLen]
	}

	hdr := packetHeader{
		TsSec:   tsSec,
		TsUsec:  tsUsec,
		CapLen:  uint32(len(captured)),
		OrigLen: uint32(len(payload)),
	}
	if err := binary.Write(pw.w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("pcap: writing packet header: %w", err)
	}

	if _, err := pw.w.Write(captured); err != nil {
		return fmt.Errorf("pcap: writing packet payload: %w", err)
	}
	return nil
}
