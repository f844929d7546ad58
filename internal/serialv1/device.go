package serialv1

// DeviceState holds the PAN identifier, short address, and long address
// the shim reports back to the kernel driver. It is mutated only by the
// corresponding SET_* commands and is never transmitted on the UDP side.
//
// Zero value is the all-zero initial state.
type DeviceState struct {
	PANID      uint16
	ShortAddr  [ShortAddrLen]byte
	LongAddr   [LongAddrLen]byte
}

// SetPANID stores a PAN id from the two big-endian bytes of a
// SET_PANID command: the PAN id is (byte0 << 8) | byte1.
func (d *DeviceState) SetPANID(hi, lo byte) {
	d.PANID = uint16(hi)<<8 | uint16(lo)
}

// SetShortAddr stores a short address from a SET_SHORTADDR command. The
// wire order is little-endian but the *second* byte read lands at index
// 0: the short address ends up stored as {byte1, byte0}.
func (d *DeviceState) SetShortAddr(byte0, byte1 byte) {
	d.ShortAddr[0] = byte1
	d.ShortAddr[1] = byte0
}

// SetLongAddr stores a long address verbatim from a SET_LONGADDR
// command's 8-byte payload.
func (d *DeviceState) SetLongAddr(addr [LongAddrLen]byte) {
	d.LongAddr = addr
}
