package serialv1

import (
	"encoding/binary"
	"fmt"
	"io"
)

// writeResponse writes a response record: preamble, opcode|RespMask,
// status, and any opcode-specific payload, as a single Write call.
//
// The build-then-write-once shape mirrors how samoyed's AGWPEHeader
// gets laid out and written in one call; here the header is fixed-size
// and the payload, if any, is variable, so they're assembled into one
// byte slice before the single Write.
func writeResponse(w io.Writer, op Opcode, payload []byte) error {
	buf := make([]byte, 0, 4+len(payload))
	buf = append(buf, Preamble1, Preamble2, byte(op)|RespMask, StatusSuccess)
	buf = append(buf, payload...)

	if len(buf) > MaxRecordLen {
		return fmt.Errorf("serialv1: response for opcode %#x would be %d bytes, exceeds MaxRecordLen %d", op, len(buf), MaxRecordLen)
	}

	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("serialv1: short write of response for opcode %#x: wrote %d of %d bytes", op, n, len(buf))
	}
	return nil
}

// WriteRXBlock writes a device-initiated RX_BLOCK record carrying a
// received radio frame: preamble, RX_BLOCK|RespMask, LQI, length,
// payload. Unlike other responses this has no preceding request: the
// 0x80-tagged opcode here is the device announcing an inbound frame on
// its own initiative.
func WriteRXBlock(w io.Writer, lqi byte, payload []byte) error {
	if len(payload) > MaxFrameLen {
		return fmt.Errorf("serialv1: RX_BLOCK payload of %d bytes exceeds MaxFrameLen %d", len(payload), MaxFrameLen)
	}

	buf := make([]byte, 0, 5+len(payload))
	buf = append(buf, Preamble1, Preamble2, byte(OpRXBlock)|RespMask, lqi, byte(len(payload)))
	buf = append(buf, payload...)

	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("serialv1: short write of RX_BLOCK: wrote %d of %d bytes", n, len(buf))
	}
	return nil
}

// panIDBigEndian is a small helper kept separate from DeviceState.SetPANID
// so the wire's big-endian byte order stays visible at the call site
// that reads it back out for GET-style probes in tests.
func panIDBigEndian(id uint16) [2]byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], id)
	return b
}
