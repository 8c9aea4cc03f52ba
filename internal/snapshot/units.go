package snapshot

import "fmt"

// AltitudeUnit selects how altitudes (and vertical rates) are reported
type AltitudeUnit string

const (
	Feet   AltitudeUnit = "feet"
	Meters AltitudeUnit = "meters"
)

// SpeedUnit selects how speeds are reported
type SpeedUnit string

const (
	Knots             SpeedUnit = "knots"
	MetersPerSecond   SpeedUnit = "mps"
	KilometersPerHour SpeedUnit = "kmh"
)

// conversion factors from the units used on the wire
const (
	metersPerFoot = 0.3048
	mpsPerKnot    = 1852.0 / 3600.0
	kmhPerKnot    = 1.852
)

// Units is the single conversion policy applied to every record
type Units struct {
	Altitude AltitudeUnit
	Speed    SpeedUnit
}

// DefaultUnits reports values as transmitted: feet and knots
func DefaultUnits() Units {
	return Units{Altitude: Feet, Speed: Knots}
}

// Validate checks that both units are known
func (u Units) Validate() error {
	switch u.Altitude {
	case Feet, Meters:
	default:
		return fmt.Errorf("unknown altitude unit %q", u.Altitude)
	}
	switch u.Speed {
	case Knots, MetersPerSecond, KilometersPerHour:
	default:
		return fmt.Errorf("unknown speed unit %q", u.Speed)
	}
	return nil
}

func (u Units) altitude(feet int) float64 {
	if u.Altitude == Meters {
		return float64(feet) * metersPerFoot
	}
	return float64(feet)
}

// verticalRate converts feet per minute into ft/min or m/s
func (u Units) verticalRate(fpm int) float64 {
	if u.Altitude == Meters {
		return float64(fpm) * metersPerFoot / 60
	}
	return float64(fpm)
}

func (u Units) verticalRateUnit() string {
	if u.Altitude == Meters {
		return "m/s"
	}
	return "ft/min"
}

func (u Units) speed(knots float64) float64 {
	switch u.Speed {
	case MetersPerSecond:
		return knots * mpsPerKnot
	case KilometersPerHour:
		return knots * kmhPerKnot
	default:
		return knots
	}
}

// AltitudeFeet returns the record's altitude converted back to feet
func (r *Record) AltitudeFeet() (float64, bool) {
	if r.Altitude == nil {
		return 0, false
	}
	if AltitudeUnit(r.AltitudeUnit) == Meters {
		return *r.Altitude / metersPerFoot, true
	}
	return *r.Altitude, true
}

// VerticalRateFPM returns the record's vertical rate in feet per minute
func (r *Record) VerticalRateFPM() (float64, bool) {
	if r.VerticalRate == nil {
		return 0, false
	}
	if AltitudeUnit(r.AltitudeUnit) == Meters {
		return *r.VerticalRate * 60 / metersPerFoot, true
	}
	return *r.VerticalRate, true
}

// GroundSpeedKnots returns the record's ground speed in knots
func (r *Record) GroundSpeedKnots() (float64, bool) {
	if r.GroundSpeed == nil {
		return 0, false
	}
	switch SpeedUnit(r.SpeedUnit) {
	case MetersPerSecond:
		return *r.GroundSpeed / mpsPerKnot, true
	case KilometersPerHour:
		return *r.GroundSpeed / kmhPerKnot, true
	default:
		return *r.GroundSpeed, true
	}
}
