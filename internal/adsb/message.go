// Package adsb turns decoded Mode S messages into the closed set of
// message kinds the track store understands.
package adsb

import (
	"fmt"
	"strconv"
	"strings"

	"adsbtrack/internal/cpr"
)

// Address is a 24-bit ICAO aircraft address
type Address uint32

func (a Address) String() string {
	return fmt.Sprintf("%06X", uint32(a))
}

// ParseAddress parses 6 hex digits into an address
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 6 {
		return 0, fmt.Errorf("invalid ICAO address %q: want 6 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ICAO address %q: %w", s, err)
	}
	return Address(v), nil
}

// Kind enumerates the message variants
type Kind uint8

const (
	KindIdentification Kind = iota
	KindAirbornePosition
	KindSurfacePosition
	KindAirborneVelocity
	KindSurveillance
	KindOther
)

// Kinds lists every kind in order
var Kinds = []Kind{
	KindIdentification,
	KindAirbornePosition,
	KindSurfacePosition,
	KindAirborneVelocity,
	KindSurveillance,
	KindOther,
}

func (k Kind) String() string {
	switch k {
	case KindIdentification:
		return "identification"
	case KindAirbornePosition:
		return "airborne_position"
	case KindSurfacePosition:
		return "surface_position"
	case KindAirborneVelocity:
		return "airborne_velocity"
	case KindSurveillance:
		return "surveillance"
	default:
		return "other"
	}
}

// Message is implemented only by the types in this package, so a type
// switch over them is exhaustive.
type Message interface {
	Kind() Kind
	sealed()
}

// Identification carries the flight identity
type Identification struct {
	Callsign string // 8 characters, space padded
	Category string // e.g. "A3", empty when not set
}

// AirbornePosition is a TC 9-18 (barometric) or 20-22 (GNSS) position
type AirbornePosition struct {
	Frame        cpr.Frame
	Altitude     *int // feet
	AltitudeGNSS bool
}

// SurfacePosition is a TC 5-8 position
type SurfacePosition struct {
	Frame       cpr.Frame
	GroundSpeed *float64 // knots
	Track       *float64 // degrees
}

// SpeedType tells what an airborne velocity speed measures
type SpeedType uint8

const (
	GroundSpeed SpeedType = iota
	IndicatedAirspeed
	TrueAirspeed
)

func (s SpeedType) String() string {
	switch s {
	case IndicatedAirspeed:
		return "ias"
	case TrueAirspeed:
		return "tas"
	default:
		return "ground"
	}
}

// IsAirspeed reports whether the speed is relative to the air mass
func (s SpeedType) IsAirspeed() bool {
	return s != GroundSpeed
}

// VerticalRateSource is where a vertical rate comes from
type VerticalRateSource uint8

const (
	SourceBarometric VerticalRateSource = iota
	SourceGNSS
)

func (s VerticalRateSource) String() string {
	if s == SourceGNSS {
		return "gnss"
	}
	return "baro"
}

// AirborneVelocity is a TC 19 message. Heading is the ground track for
// ground speed subtypes and the magnetic heading for airspeed subtypes.
type AirborneVelocity struct {
	Speed              *float64 // knots
	SpeedType          SpeedType
	Heading            *float64 // degrees
	VerticalRate       *int     // feet per minute
	VerticalRateSource VerticalRateSource
}

// SurveillanceReply is a DF0/4/5/16/20/21 reply. Its address is recovered
// from the parity field and is not CRC protected.
type SurveillanceReply struct {
	Squawk   *string
	Altitude *int // feet
	OnGround *bool
}

// Other is anything the track store does not interpret
type Other struct {
	DF       uint8
	TypeCode uint8
}

func (Identification) Kind() Kind    { return KindIdentification }
func (AirbornePosition) Kind() Kind  { return KindAirbornePosition }
func (SurfacePosition) Kind() Kind   { return KindSurfacePosition }
func (AirborneVelocity) Kind() Kind  { return KindAirborneVelocity }
func (SurveillanceReply) Kind() Kind { return KindSurveillance }
func (Other) Kind() Kind             { return KindOther }

func (Identification) sealed()    {}
func (AirbornePosition) sealed()  {}
func (SurfacePosition) sealed()   {}
func (AirborneVelocity) sealed()  {}
func (SurveillanceReply) sealed() {}
func (Other) sealed()             {}
