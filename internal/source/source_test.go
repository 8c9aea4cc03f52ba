package source

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"adsbtrack/internal/beast"
	"adsbtrack/internal/demod"
	"adsbtrack/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	evenFrame = "8D4840D658C382DF56F3E9D64A0E"
	oddFrame  = "8D4840D658C3864A8CED2398E7D7"
	df4Frame  = "2000183859C38D"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// beastMessage builds an escaped Beast message carrying a Mode S frame
func beastMessage(t *testing.T, h string, clock uint64) []byte {
	t.Helper()
	data, err := hex.DecodeString(h)
	require.NoError(t, err)

	msgType := byte(beast.TypeModeSLong)
	if len(data) == 7 {
		msgType = beast.TypeModeSShort
	}

	raw := make([]byte, 0, 7+len(data))
	for i := 5; i >= 0; i-- {
		raw = append(raw, byte(clock>>(8*uint(i))))
	}
	raw = append(raw, 0x80)
	raw = append(raw, data...)

	out := []byte{beast.Escape, msgType}
	for _, b := range raw {
		out = append(out, b)
		if b == beast.Escape {
			out = append(out, beast.Escape)
		}
	}
	return out
}

// collect drains a source until it returns an error
func collect(t *testing.T, s Source) ([]string, error) {
	t.Helper()
	ctx := testContext(t)
	var frames []string
	for {
		f, err := s.Next(ctx)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f.Hex())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		port    int
		wantErr bool
	}{
		{in: "avr", want: FormatAVR, port: 30002},
		{in: "BEAST", want: FormatBeast, port: 30005},
		{in: "sbs", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.port, got.DefaultPort())
		})
	}
}

func TestReader_AVR(t *testing.T) {
	input := strings.Join([]string{
		"*" + evenFrame + ";",
		"",
		"garbage",
		"*ZZZZ;",
		"@0000000012AB" + oddFrame + ";",
		"*" + df4Frame + ";",
	}, "\n")

	r := NewReader(strings.NewReader(input), FormatAVR, testLogger())
	frames, err := collect(t, r)

	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{evenFrame, oddFrame, df4Frame}, frames)
	assert.NoError(t, r.Close())
}

func TestReader_Beast(t *testing.T) {
	var input []byte
	input = append(input, beastMessage(t, evenFrame, 0x1A1A)...)
	input = append(input, 0x00, 0x42)
	input = append(input, beastMessage(t, df4Frame, 2)...)

	r := NewReader(strings.NewReader(string(input)), FormatBeast, testLogger())
	frames, err := collect(t, r)

	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{evenFrame, df4Frame}, frames)
}

func TestReader_CancelReleasesNext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewReader(pr, FormatAVR, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := r.Next(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancel")
	}
	assert.NoError(t, r.Close())
}

// feed accepts connections and writes one batch of lines per connection
func feed(t *testing.T, batches ...[]string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for _, lines := range batches {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			for _, l := range lines {
				io.WriteString(conn, l+"\n")
			}
			conn.Close()
		}
	}()
	return ln.Addr().String()
}

func TestTCP_Reconnects(t *testing.T) {
	addr := feed(t,
		[]string{"*" + evenFrame + ";"},
		[]string{"*" + oddFrame + ";"},
	)

	src := NewTCP(addr, FormatAVR, testLogger())
	defer src.Close()
	ctx := testContext(t)

	f, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, evenFrame, f.Hex())

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrDisconnected)

	f, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, oddFrame, f.Hex())
}

func TestTCP_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	src := NewTCP(addr, FormatAVR, testLogger())
	_, err = src.Next(testContext(t))
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
	assert.Equal(t, addr, src.Addr())
}

func TestTCP_ClosedReturnsEOF(t *testing.T) {
	src := NewTCP("127.0.0.1:1", FormatAVR, testLogger())
	require.NoError(t, src.Close())

	_, err := src.Next(testContext(t))
	assert.ErrorIs(t, err, io.EOF)
}

type fakePings struct {
	pings  []storage.Ping
	err    error
	closed bool
}

func (f *fakePings) Next(ctx context.Context) (storage.Ping, error) {
	if len(f.pings) == 0 {
		if f.err != nil {
			return storage.Ping{}, f.err
		}
		return storage.Ping{}, io.EOF
	}
	p := f.pings[0]
	f.pings = f.pings[1:]
	return p, nil
}

func (f *fakePings) Close() error {
	f.closed = true
	return nil
}

func TestReplay(t *testing.T) {
	ts := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	even, _ := hex.DecodeString(evenFrame)
	odd, _ := hex.DecodeString(oddFrame)

	pings := &fakePings{pings: []storage.Ping{
		{Timestamp: ts, Data: even},
		{Timestamp: ts.Add(3 * time.Second), Data: odd},
	}}
	r := NewReplay(pings, testLogger())
	ctx := testContext(t)

	f, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, evenFrame, f.Hex())
	assert.Equal(t, ts, f.Received)

	f, err = r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, ts.Add(3*time.Second), f.Received)

	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, r.Close())
	assert.True(t, pings.closed)
}

func TestReplay_CursorError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReplay(&fakePings{err: boom}, testLogger())

	_, err := r.Next(testContext(t))
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, io.EOF))
}

type fakeCapturer struct {
	blocks [][]byte
	err    error
	mu     sync.Mutex
	closed bool
}

func (f *fakeCapturer) Capture(ctx context.Context, out chan<- []byte) error {
	for _, b := range f.blocks {
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeCapturer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func silence(n int) []byte {
	b := make([]byte, 2*n)
	for i := range b {
		b[i] = 127
	}
	return b
}

func newTestRTLSDR(t *testing.T, dev *fakeCapturer) *RTLSDR {
	t.Helper()
	dem, err := demod.NewDemodulator(0, testLogger())
	require.NoError(t, err)
	return newRTLSDR(dev, dem, testLogger())
}

func TestRTLSDR_CaptureError(t *testing.T) {
	boom := errors.New("usb transfer failed")
	dev := &fakeCapturer{blocks: [][]byte{silence(4096), silence(4096)}, err: boom}
	r := newTestRTLSDR(t, dev)

	_, err := r.Next(testContext(t))
	assert.ErrorIs(t, err, boom)

	// the failure is sticky
	_, err = r.Next(testContext(t))
	assert.ErrorIs(t, err, boom)

	require.NoError(t, r.Close())
	assert.True(t, dev.closed)
}

func TestRTLSDR_Cancel(t *testing.T) {
	r := newTestRTLSDR(t, &fakeCapturer{blocks: [][]byte{silence(1024)}})
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

var (
	_ Source = (*Reader)(nil)
	_ Source = (*TCP)(nil)
	_ Source = (*Replay)(nil)
	_ Source = (*RTLSDR)(nil)
)
