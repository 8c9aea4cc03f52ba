// Package cpr resolves Compact Position Reporting frames into latitude and
// longitude, either globally from an even/odd pair or locally against a
// recent reference fix.
package cpr

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Resolution errors. All of them are recoverable: the caller keeps its
// previous position.
var (
	ErrInconsistentZones  = errors.New("cpr: frames lie in different longitude zones")
	ErrNoReference        = errors.New("cpr: no usable reference position")
	ErrStaleFramePair     = errors.New("cpr: frames too far apart in time")
	ErrLatitudeOutOfRange = errors.New("cpr: latitude out of range")
	ErrParityMismatch     = errors.New("cpr: frames do not form an even/odd pair")
	ErrMixedFrames        = errors.New("cpr: cannot pair surface and airborne frames")
)

// maxValue is 2^17, the scale of the encoded lat/lon fractions
const maxValue = 131072.0

// Parity of a CPR frame
type Parity uint8

const (
	Even Parity = iota
	Odd
)

func (p Parity) String() string {
	if p == Odd {
		return "odd"
	}
	return "even"
}

// Frame is one encoded position as received
type Frame struct {
	Parity   Parity
	Lat      uint32 // 17 bit
	Lon      uint32 // 17 bit
	Surface  bool
	Received time.Time
}

// Position is a decoded location in decimal degrees
type Position struct {
	Latitude  float64
	Longitude float64
}

func (p Position) String() string {
	return fmt.Sprintf("%.5f,%.5f", p.Latitude, p.Longitude)
}

// Method tells how a fix was obtained
type Method uint8

const (
	MethodGlobal Method = iota
	MethodLocal
)

func (m Method) String() string {
	if m == MethodLocal {
		return "local"
	}
	return "global"
}

// Fix is a resolved position with its provenance
type Fix struct {
	Position
	At     time.Time
	Method Method
}

// Resolver decodes CPR frames
type Resolver struct {
	// PairWindow is the largest reception gap allowed between the two
	// frames of a global decode.
	PairWindow time.Duration
	// LocalMaxAge is how old a reference fix may be for a local decode.
	LocalMaxAge time.Duration
}

// NewResolver creates a resolver with the given windows
func NewResolver(pairWindow, localMaxAge time.Duration) Resolver {
	return Resolver{PairWindow: pairWindow, LocalMaxAge: localMaxAge}
}

// Global decodes an even/odd pair. The more recently received frame decides
// which encoding the final longitude is computed from. ref is only needed for
// surface frames, whose encoding repeats every 90 degrees; it picks the
// hemisphere and the longitude quadrant.
func (r Resolver) Global(even, odd Frame, ref *Position) (Position, error) {
	if even.Parity != Even || odd.Parity != Odd {
		return Position{}, ErrParityMismatch
	}
	if even.Surface != odd.Surface {
		return Position{}, ErrMixedFrames
	}
	gap := even.Received.Sub(odd.Received)
	if gap < 0 {
		gap = -gap
	}
	if gap > r.PairWindow {
		return Position{}, fmt.Errorf("%w: %v apart", ErrStaleFramePair, gap)
	}
	if even.Surface && ref == nil {
		return Position{}, ErrNoReference
	}

	span := 360.0
	if even.Surface {
		span = 90.0
	}
	dlat0 := span / 60
	dlat1 := span / 59

	lat0 := float64(even.Lat) / maxValue
	lat1 := float64(odd.Lat) / maxValue
	lon0 := float64(even.Lon) / maxValue
	lon1 := float64(odd.Lon) / maxValue

	j := math.Floor(59*lat0 - 60*lat1 + 0.5)
	rlat0 := dlat0 * (modFloat(j, 60) + lat0)
	rlat1 := dlat1 * (modFloat(j, 59) + lat1)

	if even.Surface {
		// the encoding only covers 0..90; southern positions are 90 below
		if ref.Latitude < 0 {
			rlat0 -= 90
			rlat1 -= 90
		}
	} else {
		if rlat0 >= 270 {
			rlat0 -= 360
		}
		if rlat1 >= 270 {
			rlat1 -= 360
		}
	}

	if rlat0 < -90 || rlat0 > 90 || rlat1 < -90 || rlat1 > 90 {
		return Position{}, fmt.Errorf("%w: %.4f/%.4f", ErrLatitudeOutOfRange, rlat0, rlat1)
	}
	if NL(rlat0) != NL(rlat1) {
		return Position{}, ErrInconsistentZones
	}

	var lat, frac float64
	var ni int
	if odd.Received.Before(even.Received) {
		lat, frac = rlat0, lon0
		ni = zones(lat, Even)
	} else {
		lat, frac = rlat1, lon1
		ni = zones(lat, Odd)
	}

	nl := float64(NL(lat))
	m := math.Floor(lon0*(nl-1) - lon1*nl + 0.5)
	lon := (span / float64(ni)) * (modFloat(m, float64(ni)) + frac)

	if even.Surface {
		// pick the quadrant nearest the reference
		lon += math.Floor((ref.Longitude-lon+45)/90) * 90
	}

	return Position{Latitude: lat, Longitude: normalizeLon(lon)}, nil
}

// Local decodes a single frame against a reference fix, which must be
// recent enough that the aircraft cannot have left the reference cell.
func (r Resolver) Local(f Frame, ref *Fix, now time.Time) (Position, error) {
	if ref == nil {
		return Position{}, ErrNoReference
	}
	if age := now.Sub(ref.At); age > r.LocalMaxAge {
		return Position{}, fmt.Errorf("%w: reference is %v old", ErrNoReference, age)
	}

	span := 360.0
	if f.Surface {
		span = 90.0
	}
	dlat := span / 60
	if f.Parity == Odd {
		dlat = span / 59
	}

	latFrac := float64(f.Lat) / maxValue
	lonFrac := float64(f.Lon) / maxValue

	refLat := ref.Latitude
	j := math.Floor(refLat/dlat) + math.Floor(0.5+modFloat(refLat, dlat)/dlat-latFrac)
	lat := dlat * (j + latFrac)
	if lat < -90 || lat > 90 {
		return Position{}, fmt.Errorf("%w: %.4f", ErrLatitudeOutOfRange, lat)
	}

	dlon := span / float64(zones(lat, f.Parity))
	refLon := ref.Longitude
	m := math.Floor(refLon/dlon) + math.Floor(0.5+modFloat(refLon, dlon)/dlon-lonFrac)
	lon := dlon * (m + lonFrac)

	return Position{Latitude: lat, Longitude: normalizeLon(lon)}, nil
}

// zones returns the number of longitude zones for a latitude and parity
func zones(lat float64, p Parity) int {
	n := NL(lat)
	if p == Odd {
		n--
	}
	if n < 1 {
		return 1
	}
	return n
}

// modFloat is a modulo whose result is always positive
func modFloat(a, b float64) float64 {
	res := math.Mod(a, b)
	if res < 0 {
		res += b
	}
	return res
}

// normalizeLon maps longitude into [-180, 180)
func normalizeLon(lon float64) float64 {
	return lon - math.Floor((lon+180)/360)*360
}
