package beast

import (
	"bytes"
	"fmt"
	"time"

	"adsbtrack/internal/modes"

	"github.com/sirupsen/logrus"
)

// Beast message types
const (
	Escape         = 0x1A // frame start, doubled inside payloads
	TypeModeAC     = 0x31
	TypeModeSShort = 0x32
	TypeModeSLong  = 0x33
	TypeStatus     = 0x34
)

// header: 6 byte MLAT clock + 1 byte signal level
const headerLen = 7

// maxBuffer bounds how much unsynchronized input is kept between calls
const maxBuffer = 64 * 1024

// Decoder turns a Beast byte stream into Mode S frames. It keeps partial
// messages between calls, so input may be split at arbitrary points.
type Decoder struct {
	logger  *logrus.Logger
	buffer  []byte
	skipped uint64
	broken  uint64
}

// NewDecoder creates a new Beast decoder
func NewDecoder(logger *logrus.Logger) *Decoder {
	return &Decoder{
		logger: logger,
		buffer: make([]byte, 0, 4096),
	}
}

// payloadLen returns the number of data bytes following the header
func payloadLen(msgType byte) int {
	switch msgType {
	case TypeModeAC, TypeStatus:
		return 2
	case TypeModeSShort:
		return modes.ShortFrameLen
	case TypeModeSLong:
		return modes.LongFrameLen
	default:
		return 0
	}
}

// unescape collects n payload bytes from src, collapsing doubled escape bytes.
// It returns the collected bytes and how many source bytes they used. done is
// false when src ends first. A lone escape byte means a new message starts
// inside this one; resync is then the offset of that byte.
func unescape(src []byte, n int) (out []byte, used int, done bool, resync int) {
	out = make([]byte, 0, n)
	i := 0
	for len(out) < n {
		if i >= len(src) {
			return nil, i, false, -1
		}
		b := src[i]
		if b == Escape {
			if i+1 >= len(src) {
				return nil, i, false, -1
			}
			if src[i+1] != Escape {
				return nil, i, false, i
			}
			i++
		}
		out = append(out, b)
		i++
	}
	return out, i, true, -1
}

// Decode appends data to the internal buffer and returns every complete
// Mode S frame found. received stamps the frames.
func (d *Decoder) Decode(data []byte, received time.Time) []modes.Frame {
	d.buffer = append(d.buffer, data...)

	var frames []modes.Frame
	for {
		start := bytes.IndexByte(d.buffer, Escape)
		if start < 0 {
			d.buffer = d.buffer[:0]
			break
		}
		d.buffer = d.buffer[start:]
		if len(d.buffer) < 2 {
			break
		}

		msgType := d.buffer[1]
		n := payloadLen(msgType)
		if n == 0 {
			// doubled escape or an unknown type: not a message start
			d.buffer = d.buffer[1:]
			continue
		}

		body, used, done, resync := unescape(d.buffer[2:], headerLen+n)
		if resync >= 0 {
			d.broken++
			d.logger.WithFields(logrus.Fields{
				"message_type": fmt.Sprintf("0x%02x", msgType),
			}).Debug("Truncated Beast message, resynchronizing")
			d.buffer = d.buffer[2+resync:]
			continue
		}
		if !done {
			break
		}
		d.buffer = d.buffer[2+used:]

		if msgType == TypeModeAC || msgType == TypeStatus {
			d.skipped++
			continue
		}

		var clock uint64
		for _, b := range body[:6] {
			clock = clock<<8 | uint64(b)
		}
		payload := make([]byte, n)
		copy(payload, body[headerLen:])

		frames = append(frames, modes.Frame{
			Data:      payload,
			Received:  received,
			Signal:    float64(body[6]) / 255.0,
			Timestamp: clock,
		})
	}

	if len(d.buffer) > maxBuffer {
		d.logger.WithField("buffer_size", len(d.buffer)).Debug("Beast buffer overflow, clearing")
		d.buffer = d.buffer[:0]
	}

	return frames
}

// Stats returns the number of skipped (Mode A/C, status) and broken messages
func (d *Decoder) Stats() (skipped, broken uint64) {
	return d.skipped, d.broken
}
