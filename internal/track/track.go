// Package track aggregates classified ADS-B messages into per-aircraft
// tracks.
package track

import (
	"time"

	"adsbtrack/internal/adsb"
	"adsbtrack/internal/cpr"
)

// Velocity is the last airborne velocity report
type Velocity struct {
	Speed              *float64 // knots
	SpeedType          adsb.SpeedType
	Heading            *float64 // degrees
	VerticalRate       *int     // feet per minute
	VerticalRateSource adsb.VerticalRateSource
	Updated            time.Time
}

// Track is the aggregated state of one aircraft. Values handed out by the
// store are copies; pointer fields are replaced on update, never written
// through, so a copy stays consistent.
type Track struct {
	Address      adsb.Address
	Callsign     *string // trailing padding removed
	Category     string
	Squawk       *string
	Altitude     *int // feet
	AltitudeGNSS bool
	OnGround     bool
	Position     *cpr.Fix
	Velocity     *Velocity
	FirstSeen    time.Time
	LastSeen     time.Time
	Messages     uint64

	pairing pairing
}

// HasPosition reports whether the track has a resolved position
func (t *Track) HasPosition() bool {
	return t.Position != nil
}
