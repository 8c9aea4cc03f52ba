package beast

import (
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// encode builds an escaped Beast message
func encode(msgType byte, clock uint64, signal byte, data []byte) []byte {
	raw := make([]byte, 0, 7+len(data))
	for i := 5; i >= 0; i-- {
		raw = append(raw, byte(clock>>(8*uint(i))))
	}
	raw = append(raw, signal)
	raw = append(raw, data...)

	out := []byte{Escape, msgType}
	for _, b := range raw {
		if b == Escape {
			out = append(out, Escape)
		}
		out = append(out, b)
	}
	return out
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestDecoder_ValidMessages(t *testing.T) {
	long := mustHex(t, "8D4840D6202CC371C32CE0576098")
	short := mustHex(t, "28000AAA02E41F")
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name   string
		input  []byte
		frames int
	}{
		{name: "Mode S long", input: encode(TypeModeSLong, 1, 0x80, long), frames: 1},
		{name: "Mode S short", input: encode(TypeModeSShort, 2, 0x10, short), frames: 1},
		{name: "Mode A/C is skipped", input: encode(TypeModeAC, 3, 0x04, []byte{0x02, 0x34}), frames: 0},
		{name: "status is skipped", input: encode(TypeStatus, 0, 0, []byte{0x00, 0x00}), frames: 0},
		{
			name:   "garbage before sync",
			input:  append([]byte{0x00, 0xFF, 0x12}, encode(TypeModeSLong, 1, 0x80, long)...),
			frames: 1,
		},
		{
			name:   "two messages back to back",
			input:  append(encode(TypeModeSShort, 2, 0x10, short), encode(TypeModeSLong, 1, 0x80, long)...),
			frames: 2,
		},
		{name: "unknown type", input: []byte{Escape, 0x99, 0x00, 0x01}, frames: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder := NewDecoder(testLogger())
			frames := decoder.Decode(tt.input, now)
			assert.Len(t, frames, tt.frames)
			for _, f := range frames {
				assert.Equal(t, now, f.Received)
			}
		})
	}
}

func TestDecoder_FrameFields(t *testing.T) {
	long := mustHex(t, "8D4840D6202CC371C32CE0576098")
	decoder := NewDecoder(testLogger())

	frames := decoder.Decode(encode(TypeModeSLong, 0x0000123456AB, 0xFF, long), time.Now())
	require.Len(t, frames, 1)
	assert.Equal(t, long, frames[0].Data)
	assert.Equal(t, uint64(0x123456AB), frames[0].Timestamp)
	assert.InDelta(t, 1.0, frames[0].Signal, 1e-9)
}

func TestDecoder_EscapedBytes(t *testing.T) {
	// clock, signal and payload all contain the escape byte
	data := mustHex(t, "1A1A000000001A")
	decoder := NewDecoder(testLogger())

	input := encode(TypeModeSShort, 0x1A1A, Escape, data)
	frames := decoder.Decode(input, time.Now())
	require.Len(t, frames, 1)
	assert.Equal(t, data, frames[0].Data)
	assert.Equal(t, uint64(0x1A1A), frames[0].Timestamp)
	assert.InDelta(t, float64(Escape)/255.0, frames[0].Signal, 1e-9)
}

func TestDecoder_SplitInput(t *testing.T) {
	long := mustHex(t, "8D4840D6202CC371C32CE0576098")
	input := encode(TypeModeSLong, 0x1A, 0x1A, long)

	for split := 1; split < len(input); split++ {
		decoder := NewDecoder(testLogger())
		first := decoder.Decode(input[:split], time.Now())
		second := decoder.Decode(input[split:], time.Now())
		require.Empty(t, first, "split at %d", split)
		require.Len(t, second, 1, "split at %d", split)
		assert.Equal(t, long, second[0].Data)
	}
}

func TestDecoder_ResyncOnTruncatedMessage(t *testing.T) {
	long := mustHex(t, "8D4840D6202CC371C32CE0576098")
	good := encode(TypeModeSLong, 5, 0x20, long)
	truncated := encode(TypeModeSLong, 4, 0x20, long)[:10]

	decoder := NewDecoder(testLogger())
	frames := decoder.Decode(append(truncated, good...), time.Now())
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(5), frames[0].Timestamp)

	_, broken := decoder.Stats()
	assert.Equal(t, uint64(1), broken)
}

func TestDecoder_SkippedStats(t *testing.T) {
	decoder := NewDecoder(testLogger())
	decoder.Decode(encode(TypeModeAC, 3, 0x04, []byte{0x02, 0x34}), time.Now())
	skipped, broken := decoder.Stats()
	assert.Equal(t, uint64(1), skipped)
	assert.Zero(t, broken)
}
