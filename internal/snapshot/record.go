// Package snapshot maps tracks to the records handed to sinks, storage and
// the HTTP API.
package snapshot

import (
	"time"

	"adsbtrack/internal/track"
)

// Record is the external shape of one track snapshot
type Record struct {
	Address            string     `json:"address" msgpack:"address"`
	Callsign           *string    `json:"callsign,omitempty" msgpack:"callsign,omitempty"`
	Category           string     `json:"category,omitempty" msgpack:"category,omitempty"`
	Squawk             *string    `json:"squawk,omitempty" msgpack:"squawk,omitempty"`
	Latitude           *float64   `json:"latitude,omitempty" msgpack:"latitude,omitempty"`
	Longitude          *float64   `json:"longitude,omitempty" msgpack:"longitude,omitempty"`
	PositionMethod     string     `json:"position_method,omitempty" msgpack:"position_method,omitempty"`
	PositionAt         *time.Time `json:"position_at,omitempty" msgpack:"position_at,omitempty"`
	Altitude           *float64   `json:"altitude,omitempty" msgpack:"altitude,omitempty"`
	AltitudeUnit       string     `json:"altitude_unit" msgpack:"altitude_unit"`
	AltitudeGNSS       bool       `json:"altitude_gnss,omitempty" msgpack:"altitude_gnss,omitempty"`
	OnGround           bool       `json:"on_ground" msgpack:"on_ground"`
	GroundSpeed        *float64   `json:"ground_speed,omitempty" msgpack:"ground_speed,omitempty"`
	Airspeed           *float64   `json:"airspeed,omitempty" msgpack:"airspeed,omitempty"`
	AirspeedType       string     `json:"airspeed_type,omitempty" msgpack:"airspeed_type,omitempty"`
	SpeedUnit          string     `json:"speed_unit" msgpack:"speed_unit"`
	Heading            *float64   `json:"heading,omitempty" msgpack:"heading,omitempty"`
	VerticalRate       *float64   `json:"vertical_rate,omitempty" msgpack:"vertical_rate,omitempty"`
	VerticalRateUnit   string     `json:"vertical_rate_unit" msgpack:"vertical_rate_unit"`
	VerticalRateSource string     `json:"vertical_rate_source,omitempty" msgpack:"vertical_rate_source,omitempty"`
	Messages           uint64     `json:"messages" msgpack:"messages"`
	FirstSeen          time.Time  `json:"first_seen" msgpack:"first_seen"`
	Observed           time.Time  `json:"observed" msgpack:"observed"`
}

// HasPosition reports whether the record carries a position
func (r *Record) HasPosition() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Emitter converts tracks into records under one unit policy
type Emitter struct {
	units Units
}

// NewEmitter creates an emitter for the given units
func NewEmitter(units Units) *Emitter {
	return &Emitter{units: units}
}

// Units returns the emitter's unit policy
func (e *Emitter) Units() Units {
	return e.units
}

// Emit maps one track to a record
func (e *Emitter) Emit(t track.Track) Record {
	r := Record{
		Address:          t.Address.String(),
		Callsign:         t.Callsign,
		Category:         t.Category,
		Squawk:           t.Squawk,
		AltitudeUnit:     string(e.units.Altitude),
		AltitudeGNSS:     t.AltitudeGNSS,
		OnGround:         t.OnGround,
		SpeedUnit:        string(e.units.Speed),
		VerticalRateUnit: e.units.verticalRateUnit(),
		Messages:         t.Messages,
		FirstSeen:        t.FirstSeen,
		Observed:         t.LastSeen,
	}

	if p := t.Position; p != nil {
		lat, lon, at := p.Latitude, p.Longitude, p.At
		r.Latitude = &lat
		r.Longitude = &lon
		r.PositionAt = &at
		r.PositionMethod = p.Method.String()
	}

	if t.Altitude != nil {
		alt := e.units.altitude(*t.Altitude)
		r.Altitude = &alt
	}

	if v := t.Velocity; v != nil {
		if v.Speed != nil {
			speed := e.units.speed(*v.Speed)
			if v.SpeedType.IsAirspeed() {
				r.Airspeed = &speed
				r.AirspeedType = v.SpeedType.String()
			} else {
				r.GroundSpeed = &speed
			}
		}
		if v.Heading != nil {
			hdg := *v.Heading
			r.Heading = &hdg
		}
		if v.VerticalRate != nil {
			vr := e.units.verticalRate(*v.VerticalRate)
			r.VerticalRate = &vr
			r.VerticalRateSource = v.VerticalRateSource.String()
		}
	}

	return r
}

// EmitAll maps every track, keeping their order
func (e *Emitter) EmitAll(tracks []track.Track) []Record {
	out := make([]Record, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, e.Emit(t))
	}
	return out
}
