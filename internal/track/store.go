package track

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"adsbtrack/internal/adsb"
	"adsbtrack/internal/cpr"
)

// Update describes the effect of one applied message
type Update struct {
	Address adsb.Address
	Kind    adsb.Kind
	Created bool
	// Resolved is set when the message produced a new position fix.
	Resolved bool
	// Method is the decode attempted for a position frame.
	Method cpr.Method
	// PositionErr is the reason a position message did not produce a fix.
	// It is nil for non-position messages and while waiting for a pair.
	PositionErr error
	// Dropped is set for a position frame older than the one already held.
	Dropped bool
}

type shard struct {
	mu     sync.RWMutex
	tracks map[adsb.Address]*Track
}

// Store owns every track. Updates for one address are serialized by its
// shard lock; different shards proceed in parallel.
type Store struct {
	cfg      Config
	resolver cpr.Resolver
	shards   []*shard
}

// NewStore creates an empty store
func NewStore(cfg Config) *Store {
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	s := &Store{
		cfg:      cfg,
		resolver: cpr.NewResolver(cfg.PairWindow, cfg.LocalFreshness),
		shards:   make([]*shard, cfg.Shards),
	}
	for i := range s.shards {
		s.shards[i] = &shard{tracks: make(map[adsb.Address]*Track)}
	}
	return s
}

// Config returns the store configuration
func (s *Store) Config() Config {
	return s.cfg
}

func (s *Store) shardFor(addr adsb.Address) *shard {
	return s.shards[uint32(addr)%uint32(len(s.shards))]
}

// Apply updates the track for addr, creating it if needed
func (s *Store) Apply(addr adsb.Address, msg adsb.Message, now time.Time) Update {
	sh := s.shardFor(addr)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	t, ok := sh.tracks[addr]
	if !ok {
		t = &Track{Address: addr, FirstSeen: now}
		sh.tracks[addr] = t
	}
	u := s.apply(t, msg, now)
	u.Created = !ok
	return u
}

// ApplyExisting updates the track for addr only if it already exists. It is
// used for replies whose address comes from the parity field, where a bit
// error yields a bogus address.
func (s *Store) ApplyExisting(addr adsb.Address, msg adsb.Message, now time.Time) (Update, bool) {
	sh := s.shardFor(addr)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	t, ok := sh.tracks[addr]
	if !ok {
		return Update{Address: addr, Kind: msg.Kind()}, false
	}
	return s.apply(t, msg, now), true
}

func (s *Store) apply(t *Track, msg adsb.Message, now time.Time) Update {
	u := Update{Address: t.Address, Kind: msg.Kind()}

	t.Messages++
	if now.After(t.LastSeen) {
		t.LastSeen = now
	}

	switch m := msg.(type) {
	case adsb.Identification:
		cs := strings.TrimRight(m.Callsign, " ")
		t.Callsign = &cs
		if m.Category != "" {
			t.Category = m.Category
		}

	case adsb.AirbornePosition:
		if m.Altitude != nil {
			t.Altitude = m.Altitude
			t.AltitudeGNSS = m.AltitudeGNSS
		}
		t.OnGround = false
		s.resolve(t, m.Frame, now, &u)

	case adsb.SurfacePosition:
		t.OnGround = true
		if m.GroundSpeed != nil || m.Track != nil {
			t.Velocity = &Velocity{
				Speed:     m.GroundSpeed,
				SpeedType: adsb.GroundSpeed,
				Heading:   m.Track,
				Updated:   now,
			}
		}
		s.resolve(t, m.Frame, now, &u)

	case adsb.AirborneVelocity:
		t.Velocity = &Velocity{
			Speed:              m.Speed,
			SpeedType:          m.SpeedType,
			Heading:            m.Heading,
			VerticalRate:       m.VerticalRate,
			VerticalRateSource: m.VerticalRateSource,
			Updated:            now,
		}

	case adsb.SurveillanceReply:
		if m.Squawk != nil {
			t.Squawk = m.Squawk
		}
		if m.Altitude != nil {
			t.Altitude = m.Altitude
			t.AltitudeGNSS = false
		}
		if m.OnGround != nil {
			t.OnGround = *m.OnGround
		}

	case adsb.Other:
		// last-seen only
	}

	return u
}

// resolve stores a CPR frame and tries to turn it into a fix: globally when
// a counterpart is held, otherwise locally against a fresh previous fix.
func (s *Store) resolve(t *Track, f cpr.Frame, now time.Time, u *Update) {
	if f.Received.IsZero() {
		f.Received = now
	}

	even, odd, paired, accepted := t.pairing.observe(f, s.cfg.PairWindow)
	if !accepted {
		u.Dropped = true
		return
	}

	var (
		pos    cpr.Position
		err    error
		method cpr.Method
		at     = f.Received
	)
	if paired {
		method = cpr.MethodGlobal
		latest := newer(even, odd)
		at = latest.Received
		pos, err = s.resolver.Global(even, odd, s.surfaceReference(t))
		if errors.Is(err, cpr.ErrInconsistentZones) {
			t.pairing.keepOnly(latest.Parity)
		}
	} else {
		method = cpr.MethodLocal
		pos, err = s.resolver.Local(f, t.Position, f.Received)
	}
	u.Method = method
	if err != nil {
		u.PositionErr = err
		return
	}

	t.Position = &cpr.Fix{Position: pos, At: at, Method: method}
	u.Resolved = true
}

// newer returns the frame a global decode takes its position from. The odd
// frame wins a tie.
func newer(even, odd cpr.Frame) cpr.Frame {
	if odd.Received.Before(even.Received) {
		return even
	}
	return odd
}

// surfaceReference picks the position used to disambiguate surface
// decodes: the aircraft's own last fix, else the receiver location.
func (s *Store) surfaceReference(t *Track) *cpr.Position {
	if t.Position != nil {
		p := t.Position.Position
		return &p
	}
	return s.cfg.Reference
}

// EvictStale removes tracks whose last message is more than window before
// now and returns their addresses.
func (s *Store) EvictStale(now time.Time, window time.Duration) []adsb.Address {
	var removed []adsb.Address
	for _, sh := range s.shards {
		sh.mu.Lock()
		for addr, t := range sh.tracks {
			if now.Sub(t.LastSeen) > window {
				delete(sh.tracks, addr)
				removed = append(removed, addr)
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Snapshot returns a copy of the track for addr
func (s *Store) Snapshot(addr adsb.Address) (Track, bool) {
	sh := s.shardFor(addr)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	t, ok := sh.tracks[addr]
	if !ok {
		return Track{}, false
	}
	return *t, true
}

// AllSnapshots returns copies of every track ordered by address
func (s *Store) AllSnapshots() []Track {
	var out []Track
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, t := range sh.tracks {
			out = append(out, *t)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Len returns the number of tracks
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.tracks)
		sh.mu.RUnlock()
	}
	return n
}
