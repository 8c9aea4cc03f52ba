package ingest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"adsbtrack/internal/adsb"
	"adsbtrack/internal/cpr"
	"adsbtrack/internal/modes"
)

// Stats counts what the loop has seen. It is safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	started  time.Time
	first    time.Time // event time of the first frame
	last     time.Time // event time of the latest frame
	frames   uint64
	decoded  uint64
	rejected map[string]uint64
	byDF     map[uint8]uint64
	byKind   map[adsb.Kind]uint64
	unknown  uint64
	global   uint64
	local    uint64
	failures map[string]uint64
	stale    uint64
	evicted  uint64
	records  uint64
}

// Summary is a point-in-time copy of Stats
type Summary struct {
	Uptime            string            `json:"uptime"`
	Frames            uint64            `json:"frames"`
	Decoded           uint64            `json:"decoded"`
	Rejected          map[string]uint64 `json:"rejected"`
	ByDF              map[string]uint64 `json:"by_df"`
	ByKind            map[string]uint64 `json:"by_kind"`
	UnknownAddress    uint64            `json:"unknown_address"`
	PositionsGlobal   uint64            `json:"positions_global"`
	PositionsLocal    uint64            `json:"positions_local"`
	PositionFailures  map[string]uint64 `json:"position_failures"`
	StaleFrames       uint64            `json:"stale_frames"`
	Evicted           uint64            `json:"evicted"`
	Records           uint64            `json:"records"`
	MessagesPerSecond float64           `json:"messages_per_second"`
}

// NewStats creates empty counters
func NewStats() *Stats {
	return &Stats{
		started:  time.Now(),
		rejected: make(map[string]uint64),
		byDF:     make(map[uint8]uint64),
		byKind:   make(map[adsb.Kind]uint64),
		failures: make(map[string]uint64),
	}
}

func (s *Stats) frame(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if s.first.IsZero() {
		s.first = at
	}
	if at.After(s.last) {
		s.last = at
	}
}

func (s *Stats) reject(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[reason]++
}

func (s *Stats) message(df uint8, kind adsb.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoded++
	s.byDF[df]++
	s.byKind[kind]++
}

func (s *Stats) unknownAddress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknown++
}

func (s *Stats) position(method cpr.Method, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil:
		s.failures[positionReason(err)]++
	case method == cpr.MethodLocal:
		s.local++
	default:
		s.global++
	}
}

func (s *Stats) staleFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale++
}

func (s *Stats) evict(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evicted += uint64(n)
}

func (s *Stats) emitted(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records += uint64(n)
}

// Summary copies the counters
func (s *Stats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		Frames:           s.frames,
		Decoded:          s.decoded,
		Rejected:         make(map[string]uint64, len(s.rejected)),
		ByDF:             make(map[string]uint64, len(s.byDF)),
		ByKind:           make(map[string]uint64, len(s.byKind)),
		UnknownAddress:   s.unknown,
		PositionsGlobal:  s.global,
		PositionsLocal:   s.local,
		PositionFailures: make(map[string]uint64, len(s.failures)),
		StaleFrames:      s.stale,
		Evicted:          s.evicted,
		Records:          s.records,
	}
	for k, v := range s.rejected {
		sum.Rejected[k] = v
	}
	for df, v := range s.byDF {
		sum.ByDF[fmt.Sprintf("DF%d", df)] = v
	}
	for k, v := range s.byKind {
		sum.ByKind[k.String()] = v
	}
	for k, v := range s.failures {
		sum.PositionFailures[k] = v
	}
	// rate over event time, so replays report the recorded rate
	if span := s.last.Sub(s.first).Seconds(); span > 0 {
		sum.MessagesPerSecond = float64(s.decoded) / span
	}
	return sum
}

// rejectReason names a decode failure for stats and metrics
func rejectReason(err error) string {
	switch {
	case errors.Is(err, modes.ErrBadCRC):
		return "bad_crc"
	case errors.Is(err, modes.ErrShortFrame):
		return "short"
	case errors.Is(err, modes.ErrUnsupportedFormat):
		return "unsupported"
	default:
		return "invalid"
	}
}

// positionReason names a CPR failure for stats and metrics
func positionReason(err error) string {
	switch {
	case errors.Is(err, cpr.ErrInconsistentZones):
		return "inconsistent_zones"
	case errors.Is(err, cpr.ErrNoReference):
		return "no_reference"
	case errors.Is(err, cpr.ErrStaleFramePair):
		return "stale_pair"
	case errors.Is(err, cpr.ErrLatitudeOutOfRange):
		return "latitude_out_of_range"
	case errors.Is(err, cpr.ErrParityMismatch):
		return "parity_mismatch"
	case errors.Is(err, cpr.ErrMixedFrames):
		return "mixed_frames"
	default:
		return "other"
	}
}
