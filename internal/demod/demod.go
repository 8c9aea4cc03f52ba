// Package demod recovers Mode S frames from 2.4 MHz RTL-SDR samples using
// the dump1090 phase-tracking demodulator.
package demod

import (
	"fmt"
	"math"
	"sync"
	"time"

	"adsbtrack/internal/modes"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// SampleRate is the only rate the demodulator supports
const SampleRate = 2400000

const (
	preambleSamples = 19
	// samples needed after a preamble start to slice a long frame at any phase
	windowSamples = preambleSamples + 1 + modes.LongFrameLen*20
	// 12 MHz clock ticks per sample
	ticksPerSample = 5
)

// DefaultKnownAddresses bounds the set of addresses used to accept
// address/parity replies
const DefaultKnownAddresses = 4096

// Stats counts demodulator outcomes
type Stats struct {
	Preambles uint64
	Accepted  uint64
	Repaired  uint64
	Rejected  uint64
}

// Demodulator turns magnitude blocks into frames. It is not safe for
// concurrent use; blocks must be fed in capture order.
type Demodulator struct {
	logger *logrus.Logger
	// addresses seen in CRC-protected frames; DF0/4/5/16/20/21 replies are
	// only accepted when their parity yields one of them
	known *lru.Cache[uint32, struct{}]

	tail    []uint16
	skip    int
	samples uint64
	stats   Stats
}

// NewDemodulator creates a demodulator remembering up to knownAddresses
// addresses
func NewDemodulator(knownAddresses int, logger *logrus.Logger) (*Demodulator, error) {
	if knownAddresses <= 0 {
		knownAddresses = DefaultKnownAddresses
	}
	known, err := lru.New[uint32, struct{}](knownAddresses)
	if err != nil {
		return nil, err
	}
	return &Demodulator{logger: logger, known: known}, nil
}

var (
	magOnce  sync.Once
	magTable []uint16
)

// magnitudeTable maps an interleaved unsigned 8-bit I/Q pair to its
// magnitude scaled to 0..65535
func magnitudeTable() []uint16 {
	magOnce.Do(func() {
		magTable = make([]uint16, 256*256)
		for i := 0; i < 256; i++ {
			for q := 0; q < 256; q++ {
				fi := (float64(i) - 127.4) / 128
				fq := (float64(q) - 127.4) / 128
				mag := math.Sqrt(fi*fi+fq*fq) * 65536
				if mag > 65535 {
					mag = 65535
				}
				magTable[i*256+q] = uint16(mag)
			}
		}
	})
	return magTable
}

// Magnitude converts raw interleaved I/Q bytes to magnitudes
func Magnitude(iq []byte) []uint16 {
	table := magnitudeTable()
	out := make([]uint16, len(iq)/2)
	for k := range out {
		out[k] = table[int(iq[2*k])<<8|int(iq[2*k+1])]
	}
	return out
}

// Correlation functions from dump1090. They correlate a 1-0 pair of symbols
// (one Manchester-encoded bit) and sum to zero, so DC offset cancels.
func slicePhase0(m []uint16) int {
	return 5*int(m[0]) - 3*int(m[1]) - 2*int(m[2])
}

func slicePhase1(m []uint16) int {
	return 4*int(m[0]) - int(m[1]) - 3*int(m[2])
}

func slicePhase2(m []uint16) int {
	return 3*int(m[0]) + int(m[1]) - 4*int(m[2])
}

func slicePhase3(m []uint16) int {
	return 2*int(m[0]) + 3*int(m[1]) - 5*int(m[2])
}

func slicePhase4(m []uint16) int {
	return int(m[0]) + 5*int(m[1]) - 5*int(m[2]) - int(m[3])
}

func bitValue(correlation int) byte {
	if correlation > 0 {
		return 1
	}
	return 0
}

// Demodulate scans one block of magnitudes captured starting at received.
// The last samples of each block are kept and scanned again with the next
// one so frames spanning two blocks are not lost.
func (d *Demodulator) Demodulate(mag []uint16, received time.Time) []modes.Frame {
	m := append(d.tail, mag...)
	// sample index and wall clock of m[0]
	base := d.samples - uint64(len(d.tail))
	start := received.Add(-sampleDuration(len(d.tail)))

	var frames []modes.Frame
	j := d.skip
	for ; j+windowSamples < len(m); j++ {
		high, ok := d.preamble(m[j : j+preambleSamples])
		if !ok {
			continue
		}
		d.stats.Preambles++

		data, score := d.bestPhase(m[j:])
		if score < 0 {
			d.stats.Rejected++
			continue
		}

		frames = append(frames, modes.Frame{
			Data:      data,
			Received:  start.Add(sampleDuration(j)),
			Signal:    float64(high) / 65535,
			Timestamp: (base + uint64(j)) * ticksPerSample,
		})
		d.stats.Accepted++
		if score == scoreRepairable {
			d.stats.Repaired++
		}

		// skip over the frame body
		j += preambleSamples + len(data)*8*12/5 - 1
	}

	keep := windowSamples
	if keep > len(m) {
		keep = len(m)
	}
	d.skip = 0
	if j > len(m)-keep {
		d.skip = j - (len(m) - keep)
	}
	d.tail = append(d.tail[:0:0], m[len(m)-keep:]...)
	d.samples += uint64(len(mag))

	return frames
}

func sampleDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// preamble checks the 8 us Mode S preamble at the sample phases dump1090
// recognises and returns the pulse level
func (d *Demodulator) preamble(p []uint16) (uint16, bool) {
	// rising edge 0->1 and falling edge 12->13
	if !(p[0] < p[1] && p[12] > p[13]) {
		return 0, false
	}

	var high uint16
	var signal, noise uint32
	switch {
	case p[1] > p[2] && p[2] < p[3] && p[3] > p[4] &&
		p[8] < p[9] && p[9] > p[10] && p[10] < p[11]:
		// peaks at 1,3,9,11-12: phase 3
		high = uint16((uint32(p[1]) + uint32(p[3]) + uint32(p[9]) + uint32(p[11]) + uint32(p[12])) / 4)
		signal = uint32(p[1]) + uint32(p[3]) + uint32(p[9])
		noise = uint32(p[5]) + uint32(p[6]) + uint32(p[7])
	case p[1] > p[2] && p[2] < p[3] && p[3] > p[4] &&
		p[8] < p[9] && p[9] > p[10] && p[11] < p[12]:
		// peaks at 1,3,9,12: phase 4
		high = uint16((uint32(p[1]) + uint32(p[3]) + uint32(p[9]) + uint32(p[12])) / 4)
		signal = uint32(p[1]) + uint32(p[3]) + uint32(p[9]) + uint32(p[12])
		noise = uint32(p[5]) + uint32(p[6]) + uint32(p[7]) + uint32(p[8])
	case (p[1] > p[2] || p[2] > p[3]) && p[3] < p[4] && p[4] > p[5] &&
		p[9] < p[10] && p[10] > p[11] && p[11] < p[12]:
		// peaks at 1-2,4,10,12: phase 5
		high = uint16((uint32(p[1]) + uint32(p[2]) + uint32(p[4]) + uint32(p[10]) + uint32(p[12])) / 4)
		signal = uint32(p[4]) + uint32(p[10]) + uint32(p[12])
		noise = uint32(p[6]) + uint32(p[7]) + uint32(p[8])
	default:
		return 0, false
	}

	// about 3.5 dB SNR
	if signal*2 < 3*noise {
		return 0, false
	}

	// the gaps between pulses must be quiet
	for _, k := range []int{5, 6, 7, 8, 14, 15, 16, 17, 18} {
		if p[k] >= high {
			return 0, false
		}
	}
	return high, true
}

// bestPhase slices the frame at each candidate phase and keeps the best
// scoring result
func (d *Demodulator) bestPhase(m []uint16) ([]byte, int) {
	var best []byte
	bestScore := -1
	for try := 4; try <= 8; try++ {
		data, ok := sliceFrame(m, try)
		if !ok {
			continue
		}
		if score := d.score(data); score > bestScore {
			best, bestScore = data, score
		}
	}
	if best != nil {
		d.learn(best)
	}
	return best, bestScore
}

// sliceFrame decodes the bytes of a frame starting at the given phase. The
// DF of the first byte decides whether 7 or 14 bytes are read.
func sliceFrame(m []uint16, try int) ([]byte, bool) {
	data := make([]byte, modes.LongFrameLen)
	n := modes.LongFrameLen
	p := preambleSamples + try/5
	phase := try % 5

	for i := 0; i < n; i++ {
		if p+20 >= len(m) {
			return nil, false
		}

		var b byte
		switch phase {
		case 0:
			b = bitValue(slicePhase0(m[p:p+3]))<<7 |
				bitValue(slicePhase2(m[p+2:p+5]))<<6 |
				bitValue(slicePhase4(m[p+4:p+8]))<<5 |
				bitValue(slicePhase1(m[p+7:p+10]))<<4 |
				bitValue(slicePhase3(m[p+9:p+12]))<<3 |
				bitValue(slicePhase0(m[p+12:p+15]))<<2 |
				bitValue(slicePhase2(m[p+14:p+17]))<<1 |
				bitValue(slicePhase4(m[p+16:p+20]))
			phase = 1
			p += 19
		case 1:
			b = bitValue(slicePhase1(m[p:p+3]))<<7 |
				bitValue(slicePhase3(m[p+2:p+5]))<<6 |
				bitValue(slicePhase0(m[p+5:p+8]))<<5 |
				bitValue(slicePhase2(m[p+7:p+10]))<<4 |
				bitValue(slicePhase4(m[p+9:p+13]))<<3 |
				bitValue(slicePhase1(m[p+12:p+15]))<<2 |
				bitValue(slicePhase3(m[p+14:p+17]))<<1 |
				bitValue(slicePhase0(m[p+17:p+20]))
			phase = 2
			p += 19
		case 2:
			b = bitValue(slicePhase2(m[p:p+3]))<<7 |
				bitValue(slicePhase4(m[p+2:p+6]))<<6 |
				bitValue(slicePhase1(m[p+5:p+8]))<<5 |
				bitValue(slicePhase3(m[p+7:p+10]))<<4 |
				bitValue(slicePhase0(m[p+10:p+13]))<<3 |
				bitValue(slicePhase2(m[p+12:p+15]))<<2 |
				bitValue(slicePhase4(m[p+14:p+18]))<<1 |
				bitValue(slicePhase1(m[p+17:p+20]))
			phase = 3
			p += 19
		case 3:
			b = bitValue(slicePhase3(m[p:p+3]))<<7 |
				bitValue(slicePhase0(m[p+3:p+6]))<<6 |
				bitValue(slicePhase2(m[p+5:p+8]))<<5 |
				bitValue(slicePhase4(m[p+7:p+11]))<<4 |
				bitValue(slicePhase1(m[p+10:p+13]))<<3 |
				bitValue(slicePhase3(m[p+12:p+15]))<<2 |
				bitValue(slicePhase0(m[p+15:p+18]))<<1 |
				bitValue(slicePhase2(m[p+17:p+20]))
			phase = 4
			p += 19
		case 4:
			b = bitValue(slicePhase4(m[p:p+4]))<<7 |
				bitValue(slicePhase1(m[p+3:p+6]))<<6 |
				bitValue(slicePhase3(m[p+5:p+8]))<<5 |
				bitValue(slicePhase0(m[p+8:p+11]))<<4 |
				bitValue(slicePhase2(m[p+10:p+13]))<<3 |
				bitValue(slicePhase4(m[p+12:p+16]))<<2 |
				bitValue(slicePhase1(m[p+15:p+18]))<<1 |
				bitValue(slicePhase3(m[p+17:p+20]))
			phase = 0
			p += 20
		}

		data[i] = b
		if i == 0 {
			n = modes.ExpectedLen(b >> 3)
		}
	}

	return data[:n], true
}

// Candidate scores, best first
const (
	scoreValid        = 1000
	scoreAllCall      = 800
	scoreRepairable   = 750
	scoreKnownAddress = 500
)

// score ranks a candidate frame; negative means unusable
func (d *Demodulator) score(data []byte) int {
	syndrome := modes.Checksum(data)
	switch data[0] >> 3 {
	case modes.DFExtSquitter, modes.DFExtSquitterNT:
		if syndrome == 0 {
			return scoreValid
		}
		if modes.Repairable(data) {
			return scoreRepairable
		}
	case modes.DFAllCall:
		if syndrome&0xffff80 == 0 {
			return scoreAllCall
		}
	case modes.DFShortAirAir, modes.DFSurveillanceAlt, modes.DFSurveillanceID,
		modes.DFLongAirAir, modes.DFCommBAlt, modes.DFCommBID:
		if d.known.Contains(syndrome) {
			return scoreKnownAddress
		}
	}
	return -1
}

// learn remembers the address of a frame whose CRC protects it
func (d *Demodulator) learn(data []byte) {
	syndrome := modes.Checksum(data)
	switch data[0] >> 3 {
	case modes.DFAllCall:
		if syndrome&0xffff80 != 0 {
			return
		}
	case modes.DFExtSquitter, modes.DFExtSquitterNT:
		// repaired frames are decoded later; their address is not trusted yet
		if syndrome != 0 {
			return
		}
	default:
		return
	}

	addr := uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	if !d.known.Contains(addr) {
		d.logger.WithField("address", fmt.Sprintf("%06X", addr)).Debug("Learned address")
	}
	d.known.Add(addr, struct{}{})
}

// Stats returns the counters accumulated so far
func (d *Demodulator) Stats() Stats {
	return d.stats
}
