package serialv1

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransmitter records every frame handed to it by a TX_BLOCK
// command, standing in for the UDP peer channel.
type fakeTransmitter struct {
	sent [][]byte
	err  error
}

func (f *fakeTransmitter) Send(frame []byte) error {
	cp := append([]byte(nil), frame...)
	f.sent = append(f.sent, cp)
	return f.err
}

func feedAll(t *testing.T, p *Parser, bytes []byte) {
	t.Helper()
	for _, b := range bytes {
		require.NoError(t, p.Feed(b))
	}
}

func TestSetPANID(t *testing.T) {
	var out bytes.Buffer
	device := new(DeviceState)
	p := NewParser(device, &out, new(fakeTransmitter), nil)

	feedAll(t, p, []byte{'z', 'b', byte(OpSetPANID), 0x12, 0x34})

	assert.Equal(t, []byte{'z', 'b', 0x8F, 0x00}, out.Bytes())
	assert.Equal(t, uint16(0x1234), device.PANID)
}

func TestSetShortAddr(t *testing.T) {
	var out bytes.Buffer
	device := new(DeviceState)
	p := NewParser(device, &out, new(fakeTransmitter), nil)

	feedAll(t, p, []byte{'z', 'b', byte(OpSetShortAddr), 0xAA, 0xBB})

	assert.Equal(t, []byte{'z', 'b', 0x90, 0x00}, out.Bytes())
	assert.Equal(t, [ShortAddrLen]byte{0xBB, 0xAA}, device.ShortAddr)
}

func TestSetLongAddrThenGetAddr(t *testing.T) {
	var out bytes.Buffer
	device := new(DeviceState)
	p := NewParser(device, &out, new(fakeTransmitter), nil)

	feedAll(t, p, []byte{'z', 'b', byte(OpSetLongAddr), 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
	assert.Equal(t, []byte{'z', 'b', 0x91, 0x00}, out.Bytes())
	out.Reset()

	feedAll(t, p, []byte{'z', 'b', byte(OpGetAddr)})
	assert.Equal(t, []byte{'z', 'b', 0x8D, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, out.Bytes())
	assert.Len(t, out.Bytes(), 12, "GET_ADDR response must be exactly 12 bytes")
}

func TestTXBlock(t *testing.T) {
	var out bytes.Buffer
	device := new(DeviceState)
	tx := new(fakeTransmitter)
	p := NewParser(device, &out, tx, nil)

	feedAll(t, p, []byte{'z', 'b', byte(OpTXBlock), 0x03, 0xDE, 0xAD, 0xBE})

	assert.Equal(t, []byte{'z', 'b', 0x89, 0x00}, out.Bytes())
	require.Len(t, tx.sent, 1)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE}, tx.sent[0])
}

func TestTXBlockSendFailurePropagatesAndSkipsResponse(t *testing.T) {
	var out bytes.Buffer
	device := new(DeviceState)
	wantErr := errors.New("udp send failed")
	tx := &fakeTransmitter{err: wantErr}
	p := NewParser(device, &out, tx, nil)

	err := p.Feed('z')
	require.NoError(t, err)
	err = p.Feed('b')
	require.NoError(t, err)
	err = p.Feed(byte(OpTXBlock))
	require.NoError(t, err)
	err = p.Feed(0x01)
	require.NoError(t, err)
	err = p.Feed(0xAA)

	require.ErrorIs(t, err, wantErr)
	assert.Empty(t, out.Bytes(), "no success response should be written when the send failed")
}

func TestTXBlockZeroLength(t *testing.T) {
	var out bytes.Buffer
	tx := new(fakeTransmitter)
	p := NewParser(new(DeviceState), &out, tx, nil)

	feedAll(t, p, []byte{'z', 'b', byte(OpTXBlock), 0x00})

	assert.Equal(t, []byte{'z', 'b', 0x89, 0x00}, out.Bytes())
	require.Len(t, tx.sent, 1)
	assert.Empty(t, tx.sent[0])
}

func TestTXBlockMaxLength(t *testing.T) {
	var out bytes.Buffer
	tx := new(fakeTransmitter)
	p := NewParser(new(DeviceState), &out, tx, nil)

	frame := bytes.Repeat([]byte{0x7E}, MaxFrameLen)
	cmd := append([]byte{'z', 'b', byte(OpTXBlock), MaxFrameLen}, frame...)
	feedAll(t, p, cmd)

	require.Len(t, tx.sent, 1)
	assert.Equal(t, frame, tx.sent[0])
}

func TestPermissiveOpcodes(t *testing.T) {
	for _, op := range []Opcode{OpOpen, OpClose, OpED, OpCCA, OpSetState} {
		var out bytes.Buffer
		p := NewParser(new(DeviceState), &out, new(fakeTransmitter), nil)

		feedAll(t, p, []byte{'z', 'b', byte(op)})

		assert.Equal(t, []byte{'z', 'b', byte(op) | RespMask, 0x00}, out.Bytes())
	}
}

func TestSetChannelDiscardsPayload(t *testing.T) {
	var out bytes.Buffer
	device := new(DeviceState)
	p := NewParser(device, &out, new(fakeTransmitter), nil)

	feedAll(t, p, []byte{'z', 'b', byte(OpSetChannel), 0x0B})

	assert.Equal(t, []byte{'z', 'b', byte(OpSetChannel) | RespMask, 0x00}, out.Bytes())
}

func TestUnknownOpcodeIsPermissive(t *testing.T) {
	var out bytes.Buffer
	p := NewParser(new(DeviceState), &out, new(fakeTransmitter), nil)

	feedAll(t, p, []byte{'z', 'b', 0x7F})

	assert.Equal(t, []byte{'z', 'b', 0x7F | RespMask, 0x00}, out.Bytes())
}

func TestGarbageBeforePreambleNeverProducesAResponse(t *testing.T) {
	var out bytes.Buffer
	p := NewParser(new(DeviceState), &out, new(fakeTransmitter), nil)

	feedAll(t, p, []byte{0x00, 0xFF, 0x41, 0x42, 'z', 'b', byte(OpOpen)})

	assert.Equal(t, []byte{'z', 'b', byte(OpOpen) | RespMask, 0x00}, out.Bytes())
}

func TestStrayZThenNonBThenValidPreamble(t *testing.T) {
	var out bytes.Buffer
	p := NewParser(new(DeviceState), &out, new(fakeTransmitter), nil)

	// 'z' 'x' resyncs to IDLE (not back to GOT_Z), so the following
	// 'z' 'b' pair is what starts the real command.
	feedAll(t, p, []byte{'z', 'x', 'z', 'b', byte(OpOpen)})

	assert.Equal(t, []byte{'z', 'b', byte(OpOpen) | RespMask, 0x00}, out.Bytes())
}

func TestResetClearsPartialCommand(t *testing.T) {
	var out bytes.Buffer
	p := NewParser(new(DeviceState), &out, new(fakeTransmitter), nil)

	// Midway through a SET_PANID command...
	feedAll(t, p, []byte{'z', 'b', byte(OpSetPANID), 0x12})

	p.Reset()

	// ...a hang-up happens and the driver starts a fresh command; it must
	// not be misinterpreted as the tail of the old one.
	feedAll(t, p, []byte{'z', 'b', byte(OpOpen)})

	assert.Equal(t, []byte{'z', 'b', byte(OpOpen) | RespMask, 0x00}, out.Bytes())
}

func TestPANIDRoundTripsThroughBigEndianProbe(t *testing.T) {
	device := new(DeviceState)
	device.SetPANID(0x12, 0x34)

	probe := panIDBigEndian(device.PANID)
	assert.Equal(t, [2]byte{0x12, 0x34}, probe)
}
