package wled

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/notelight/internal/colormap"
)

func frameOf(n int) []colormap.RGB {
	out := make([]colormap.RGB, n)
	for i := range out {
		out[i] = colormap.RGB{R: uint8(i), G: uint8(i + 1), B: uint8(i + 2)}
	}
	return out
}

func TestEncodeExactFit(t *testing.T) {
	packet, truncated := Encode(frameOf(90), 90)
	assert.False(t, truncated)
	require.Len(t, packet, 2+90*3)
	assert.Equal(t, []byte{2, 255}, packet[:2])
	assert.Equal(t, []byte{0, 1, 2}, packet[2:5])
	assert.Equal(t, []byte{89, 90, 91}, packet[2+89*3:])
}

func TestEncodePadsWithBlack(t *testing.T) {
	packet, truncated := Encode(frameOf(90), 144)
	assert.False(t, truncated)
	require.Len(t, packet, 2+144*3)
	assert.Equal(t, make([]byte, (144-90)*3), packet[2+90*3:2+144*3])
}

func TestEncodeTruncatesOverflow(t *testing.T) {
	packet, truncated := Encode(frameOf(150), 144)
	assert.True(t, truncated)
	require.Len(t, packet, 2+144*3)
	assert.Equal(t, []byte{143, 144, 145}, packet[2+143*3:])
}

func TestEncodeEmpty(t *testing.T) {
	packet, truncated := Encode(nil, 0)
	assert.False(t, truncated)
	assert.Equal(t, []byte{2, 255}, packet)
}

func TestFrameChecksum(t *testing.T) {
	framed, err := Frame([]byte{2, 255, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{SOF0, SOF1, 0x00, 0x06, CmdDRGB, 2, 255, 1, 2, 3}, framed[:10])

	var cks byte
	for _, b := range framed[2 : len(framed)-1] {
		cks ^= b
	}
	assert.Equal(t, cks, framed[len(framed)-1])

	_, err = Frame(make([]byte, 0x10000))
	assert.Error(t, err)
}

func TestUDPSinkSendsOneDatagramPerFrame(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()
	port := listener.LocalAddr().(*net.UDPAddr).Port

	sink, err := DialUDP(Device{Name: "test", Host: "127.0.0.1", Port: port, LEDs: 4}, nil)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Send(frameOf(2)))
	require.NoError(t, sink.Send(frameOf(6)))

	buf := make([]byte, 2048)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(5*time.Second)))

	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 255, 0, 1, 2, 1, 2, 3, 0, 0, 0, 0, 0, 0}, buf[:n])

	n, _, err = listener.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, 2+4*3, n)
}

type recordingSink struct {
	frames int
	err    error
	closed bool
}

func (r *recordingSink) Send([]colormap.RGB) error { r.frames++; return r.err }
func (r *recordingSink) Close() error              { r.closed = true; return r.err }

func TestFanoutReachesEverySink(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &recordingSink{}, &recordingSink{err: boom}, &recordingSink{}
	f := Fanout{a, b, c}

	err := f.Send(frameOf(1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.frames)
	assert.Equal(t, 1, c.frames)

	assert.ErrorIs(t, f.Close(), boom)
	assert.True(t, a.closed && b.closed && c.closed)
}

type fakePort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes chan struct{}
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Write(b)
	select {
	case p.writes <- struct{}{}:
	default:
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestSerialSinkWritesFramedPacket(t *testing.T) {
	port := &fakePort{writes: make(chan struct{}, 1)}
	sink := newSerialSink("ttyTEST", 2, port, nil)

	require.NoError(t, sink.Send([]colormap.RGB{{R: 9, G: 8, B: 7}}))
	select {
	case <-port.writes:
	case <-time.After(5 * time.Second):
		t.Fatal("serial writer did not write")
	}
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "close is idempotent")

	packet, _ := Encode([]colormap.RGB{{R: 9, G: 8, B: 7}}, 2)
	want, _ := Frame(packet)
	port.mu.Lock()
	defer port.mu.Unlock()
	assert.Equal(t, want, port.buf.Bytes())
	assert.True(t, port.closed)

	assert.ErrorIs(t, sink.Send(nil), ErrTransmit)
}

// wedgedPort blocks every Write until the port is closed, like a stalled
// USB-CDC device.
type wedgedPort struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *wedgedPort) Write(b []byte) (int, error) {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.release
	return 0, errors.New("port closed")
}

func (p *wedgedPort) Close() error {
	p.once.Do(func() { close(p.release) })
	return nil
}

func TestSerialSinkCloseUnblocksStuckWrite(t *testing.T) {
	port := &wedgedPort{entered: make(chan struct{}, 1), release: make(chan struct{})}
	sink := newSerialSink("ttyWEDGED", 2, port, nil)

	require.NoError(t, sink.Send([]colormap.RGB{{R: 1}}))
	select {
	case <-port.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("serial writer never reached the port")
	}

	closed := make(chan error, 1)
	go func() { closed <- sink.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a stuck write")
	}
}
