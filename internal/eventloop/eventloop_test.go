package eventloop

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/ieee154bridge/internal/ptyio"
)

type fakeLogger struct{}

func (fakeLogger) Warn(msg interface{}, kv ...interface{}) {}

// pipePTY wraps an os.Pipe as a PTY for RunOnce tests; its Reacquire just
// records that it was called.
type pipePTY struct {
	r, w       *os.File
	reacquired int
}

func newPipePTY(t *testing.T) *pipePTY {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	return &pipePTY{r: r, w: w}
}

func (p *pipePTY) Fd() int { return int(p.r.Fd()) }
func (p *pipePTY) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if errors.Is(err, io.EOF) {
		return n, ptyio.ErrHangup
	}
	return n, err
}
func (p *pipePTY) Reacquire(log interface {
	Info(msg interface{}, kv ...interface{})
	Warn(msg interface{}, kv ...interface{})
	Error(msg interface{}, kv ...interface{})
	Fatal(msg interface{}, kv ...interface{})
}) {
	p.reacquired++
}

type fakeUDP struct {
	r, w *os.File
}

func newFakeUDP(t *testing.T) *fakeUDP {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	return &fakeUDP{r: r, w: w}
}

func (u *fakeUDP) Fd() int { return int(u.r.Fd()) }
func (u *fakeUDP) Recv(buf []byte) (int, error) {
	return u.r.Read(buf)
}

func TestRunOnceDeliversPTYByte(t *testing.T) {
	pty := newPipePTY(t)
	defer pty.r.Close()
	defer pty.w.Close()
	udp := newFakeUDP(t)
	defer udp.r.Close()
	defer udp.w.Close()

	var got []byte
	loop := New(pty, udp,
		func(b byte) error { got = append(got, b); return nil },
		func() {},
		func([]byte) error { return nil },
		fakeLogger{},
	)

	_, err := pty.w.Write([]byte{0x42})
	require.NoError(t, err)

	require.NoError(t, loop.RunOnce())
	assert.Equal(t, []byte{0x42}, got)
}

func TestRunOnceDeliversUDPFrame(t *testing.T) {
	pty := newPipePTY(t)
	defer pty.r.Close()
	defer pty.w.Close()
	udp := newFakeUDP(t)
	defer udp.r.Close()
	defer udp.w.Close()

	var got []byte
	loop := New(pty, udp,
		func(b byte) error { return nil },
		func() {},
		func(frame []byte) error { got = append([]byte(nil), frame...); return nil },
		fakeLogger{},
	)

	_, err := udp.w.Write([]byte{0xAA, 0xBB})
	require.NoError(t, err)

	require.NoError(t, loop.RunOnce())
	assert.Equal(t, []byte{0xAA, 0xBB}, got)
}

func TestRunOncePrefersUDPOverPTYWhenBothReady(t *testing.T) {
	pty := newPipePTY(t)
	defer pty.r.Close()
	defer pty.w.Close()
	udp := newFakeUDP(t)
	defer udp.r.Close()
	defer udp.w.Close()

	var order []string
	loop := New(pty, udp,
		func(b byte) error { order = append(order, "pty"); return nil },
		func() {},
		func(frame []byte) error { order = append(order, "udp"); return nil },
		fakeLogger{},
	)

	_, err := pty.w.Write([]byte{0x01})
	require.NoError(t, err)
	_, err = udp.w.Write([]byte{0x02})
	require.NoError(t, err)

	require.NoError(t, loop.RunOnce())
	assert.Equal(t, []string{"udp", "pty"}, order)
}

func TestServicePTYHangupTriggersReacquire(t *testing.T) {
	pty := newPipePTY(t)
	defer pty.w.Close()
	udp := newFakeUDP(t)
	defer udp.r.Close()
	defer udp.w.Close()

	hungUp := false
	loop := New(pty, udp,
		func(b byte) error { return nil },
		func() { hungUp = true },
		func([]byte) error { return nil },
		fakeLogger{},
	)

	pty.w.Close() // closing the write end makes the read end report EOF

	require.NoError(t, loop.RunOnce())
	assert.True(t, hungUp)
	assert.Equal(t, 1, pty.reacquired)
}

func TestRunOnceReturnsErrorOnUnhandledOnUDPFrameError(t *testing.T) {
	pty := newPipePTY(t)
	defer pty.r.Close()
	defer pty.w.Close()
	udp := newFakeUDP(t)
	defer udp.r.Close()
	defer udp.w.Close()

	wantErr := errors.New("boom")
	loop := New(pty, udp,
		func(b byte) error { return nil },
		func() {},
		func([]byte) error { return wantErr },
		fakeLogger{},
	)

	_, err := udp.w.Write([]byte{0x01})
	require.NoError(t, err)

	err = loop.RunOnce()
	assert.ErrorIs(t, err, wantErr)
}

func TestRunOnceReturnsErrorOnUnhandledOnPTYByteError(t *testing.T) {
	pty := newPipePTY(t)
	defer pty.r.Close()
	defer pty.w.Close()
	udp := newFakeUDP(t)
	defer udp.r.Close()
	defer udp.w.Close()

	wantErr := errors.New("boom")
	loop := New(pty, udp,
		func(b byte) error { return wantErr },
		func() {},
		func([]byte) error { return nil },
		fakeLogger{},
	)

	_, err := pty.w.Write([]byte{0x01})
	require.NoError(t, err)

	err = loop.RunOnce()
	assert.ErrorIs(t, err, wantErr)
}

func TestServiceUDPReturnsErrorOnRecvFailure(t *testing.T) {
	pty := newPipePTY(t)
	defer pty.r.Close()
	defer pty.w.Close()
	udp := newFakeUDP(t)
	defer udp.w.Close()

	loop := New(pty, udp,
		func(b byte) error { return nil },
		func() {},
		func([]byte) error { return nil },
		fakeLogger{},
	)

	udp.r.Close() // reading from a closed pipe end fails

	err := loop.serviceUDP()
	assert.Error(t, err)
}
