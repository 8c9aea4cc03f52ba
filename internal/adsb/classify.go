package adsb

import (
	"adsbtrack/internal/cpr"
	"adsbtrack/internal/modes"
)

// Classify maps a decoded message to its variant. It never fails: shapes
// the tracker does not use come back as Other.
func Classify(m *modes.Message) Message {
	switch m.DF {
	case modes.DFExtSquitter, modes.DFExtSquitterNT:
		return classifyExtended(m)

	case modes.DFShortAirAir, modes.DFSurveillanceAlt, modes.DFLongAirAir, modes.DFCommBAlt,
		modes.DFSurveillanceID, modes.DFCommBID:
		var r SurveillanceReply
		if m.SquawkValid {
			r.Squawk = ptr(m.Squawk)
		}
		if m.AltitudeValid {
			r.Altitude = ptr(m.Altitude)
		}
		if m.OnGroundValid {
			r.OnGround = ptr(m.OnGround)
		}
		if r.Squawk == nil && r.Altitude == nil && r.OnGround == nil {
			return Other{DF: m.DF}
		}
		return r
	}
	return Other{DF: m.DF}
}

func classifyExtended(m *modes.Message) Message {
	tc := m.TypeCode
	switch {
	case tc >= 1 && tc <= 4:
		if m.Callsign == "" {
			break
		}
		return Identification{Callsign: m.Callsign, Category: m.Category}

	case tc >= 5 && tc <= 8:
		if !m.CPRValid {
			break
		}
		p := SurfacePosition{Frame: cprFrame(m)}
		if m.SpeedValid {
			p.GroundSpeed = ptr(m.Speed)
		}
		if m.HeadingValid {
			p.Track = ptr(m.Heading)
		}
		return p

	case (tc >= 9 && tc <= 18) || (tc >= 20 && tc <= 22):
		if !m.CPRValid {
			break
		}
		p := AirbornePosition{Frame: cprFrame(m), AltitudeGNSS: m.AltitudeGNSS}
		if m.AltitudeValid {
			p.Altitude = ptr(m.Altitude)
		}
		return p

	case tc == 19:
		var v AirborneVelocity
		if m.SpeedValid {
			v.Speed = ptr(m.Speed)
			switch m.SpeedKind {
			case modes.SpeedIAS:
				v.SpeedType = IndicatedAirspeed
			case modes.SpeedTAS:
				v.SpeedType = TrueAirspeed
			}
		}
		if m.HeadingValid {
			v.Heading = ptr(m.Heading)
		}
		if m.VertRateValid {
			v.VerticalRate = ptr(m.VertRate)
			if m.VertRateGNSS {
				v.VerticalRateSource = SourceGNSS
			}
		}
		if v.Speed == nil && v.Heading == nil && v.VerticalRate == nil {
			break
		}
		return v
	}
	return Other{DF: m.DF, TypeCode: tc}
}

func cprFrame(m *modes.Message) cpr.Frame {
	parity := cpr.Even
	if m.CPROdd {
		parity = cpr.Odd
	}
	return cpr.Frame{
		Parity:   parity,
		Lat:      m.CPRLat,
		Lon:      m.CPRLon,
		Surface:  m.CPRSurface,
		Received: m.Received,
	}
}

func ptr[T any](v T) *T {
	return &v
}
