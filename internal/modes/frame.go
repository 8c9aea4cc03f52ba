package modes

import (
	"fmt"
	"time"
)

// Mode S frame lengths in bytes
const (
	ShortFrameLen = 7  // 56 bits
	LongFrameLen  = 14 // 112 bits
)

// Downlink formats handled by the decoder
const (
	DFShortAirAir     = 0
	DFSurveillanceAlt = 4
	DFSurveillanceID  = 5
	DFAllCall         = 11
	DFLongAirAir      = 16
	DFExtSquitter     = 17
	DFExtSquitterNT   = 18
	DFCommBAlt        = 20
	DFCommBID         = 21
)

// Frame is a single raw Mode S transmission as delivered by a receiver
type Frame struct {
	Data      []byte
	Received  time.Time
	Signal    float64 // 0..1, zero when the source does not report it
	Timestamp uint64  // 12 MHz receiver clock, zero when unknown
}

// DF returns the downlink format of the frame
func (f Frame) DF() uint8 {
	if len(f.Data) == 0 {
		return 0
	}
	return f.Data[0] >> 3
}

// ExpectedLen returns the frame length implied by the downlink format
func ExpectedLen(df uint8) int {
	if df&0x10 != 0 {
		return LongFrameLen
	}
	return ShortFrameLen
}

// Hex renders the frame payload as upper-case hex
func (f Frame) Hex() string {
	return fmt.Sprintf("%X", f.Data)
}

// bits extracts bits first..last (1-based, inclusive) of data as an unsigned value
func bits(data []byte, first, last int) uint32 {
	var v uint32
	for i := first; i <= last; i++ {
		idx := (i - 1) / 8
		if idx >= len(data) {
			return 0
		}
		bit := (data[idx] >> (7 - uint((i-1)%8))) & 1
		v = v<<1 | uint32(bit)
	}
	return v
}

func bit(data []byte, n int) bool {
	return bits(data, n, n) == 1
}
