package modes

import (
	"math"
	"strings"
)

// ADS-B 6-bit character set: space, A-Z, 0-9
const callsignCharset = "#ABCDEFGHIJKLMNOPQRSTUVWXYZ##### ###############0123456789######"

// decodeCallsign reads the eight 6-bit characters of an identification ME field.
// Trailing padding is kept so callers can decide how to trim.
func decodeCallsign(data []byte) (string, bool) {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		first := 41 + i*6
		c := callsignCharset[bits(data, first, first+5)]
		if c == '#' {
			return "", false
		}
		sb.WriteByte(c)
	}
	return sb.String(), true
}

// decodeID13 reorders a 13-bit identity/altitude field into the hex Gillham
// layout 0xABCD where each nibble is one octal digit (A4A2A1, B4B2B1, ...).
func decodeID13(id13 uint32) uint32 {
	var g uint32
	if id13&0x1000 != 0 {
		g |= 0x0010 // C1
	}
	if id13&0x0800 != 0 {
		g |= 0x1000 // A1
	}
	if id13&0x0400 != 0 {
		g |= 0x0020 // C2
	}
	if id13&0x0200 != 0 {
		g |= 0x2000 // A2
	}
	if id13&0x0100 != 0 {
		g |= 0x0040 // C4
	}
	if id13&0x0080 != 0 {
		g |= 0x4000 // A4
	}
	if id13&0x0020 != 0 {
		g |= 0x0100 // B1
	}
	if id13&0x0010 != 0 {
		g |= 0x0001 // D1
	}
	if id13&0x0008 != 0 {
		g |= 0x0200 // B2
	}
	if id13&0x0004 != 0 {
		g |= 0x0002 // D2
	}
	if id13&0x0002 != 0 {
		g |= 0x0400 // B4
	}
	if id13&0x0001 != 0 {
		g |= 0x0004 // D4
	}
	return g
}

// gillhamHundreds converts a hex Gillham code into altitude in hundreds of feet
func gillhamHundreds(g uint32) (int, bool) {
	if g&0xffff8889 != 0 || g&0x000000f0 == 0 {
		return 0, false
	}

	var hundreds, fiveHundreds uint32
	if g&0x0010 != 0 {
		hundreds ^= 0x007
	}
	if g&0x0020 != 0 {
		hundreds ^= 0x003
	}
	if g&0x0040 != 0 {
		hundreds ^= 0x001
	}
	if hundreds&5 == 5 {
		hundreds ^= 2
	}
	if hundreds > 5 {
		return 0, false
	}

	if g&0x0002 != 0 {
		fiveHundreds ^= 0x0ff
	}
	if g&0x0004 != 0 {
		fiveHundreds ^= 0x07f
	}
	if g&0x1000 != 0 {
		fiveHundreds ^= 0x03f
	}
	if g&0x2000 != 0 {
		fiveHundreds ^= 0x01f
	}
	if g&0x4000 != 0 {
		fiveHundreds ^= 0x00f
	}
	if g&0x0100 != 0 {
		fiveHundreds ^= 0x007
	}
	if g&0x0200 != 0 {
		fiveHundreds ^= 0x003
	}
	if g&0x0400 != 0 {
		fiveHundreds ^= 0x001
	}

	if fiveHundreds&1 != 0 {
		hundreds = 6 - hundreds
	}
	return int(fiveHundreds*5+hundreds) - 13, true
}

// decodeAC13 decodes the altitude code of surveillance replies (feet)
func decodeAC13(ac13 uint32) (int, bool) {
	if ac13 == 0 || ac13&0x0040 != 0 {
		// missing, or metric (M bit) which is not in use
		return 0, false
	}
	if ac13&0x0010 != 0 {
		n := ((ac13 & 0x1f80) >> 2) | ((ac13 & 0x0020) >> 1) | (ac13 & 0x000f)
		return int(n)*25 - 1000, true
	}
	h, ok := gillhamHundreds(decodeID13(ac13))
	if !ok || h < -12 {
		return 0, false
	}
	return h * 100, true
}

// decodeAC12 decodes the altitude field of airborne position messages (feet)
func decodeAC12(ac12 uint32) (int, bool) {
	if ac12 == 0 {
		return 0, false
	}
	if ac12&0x0010 != 0 {
		n := ((ac12 & 0x0fe0) >> 1) | (ac12 & 0x000f)
		return int(n)*25 - 1000, true
	}
	// re-insert the M bit to get a 13-bit Gillham field
	n13 := ((ac12 & 0x0fc0) << 1) | (ac12 & 0x003f)
	h, ok := gillhamHundreds(decodeID13(n13))
	if !ok || h < -12 {
		return 0, false
	}
	return h * 100, true
}

// squawkString renders a hex Gillham identity as its 4 octal digits
func squawkString(g uint32) string {
	const digits = "01234567"
	return string([]byte{
		digits[(g>>12)&7],
		digits[(g>>8)&7],
		digits[(g>>4)&7],
		digits[g&7],
	})
}

// surfaceMovement converts the 7-bit movement field of surface position
// messages into ground speed in knots
func surfaceMovement(m uint32) (float64, bool) {
	switch {
	case m == 0 || m > 124:
		return 0, false
	case m == 1:
		return 0, true
	case m <= 8:
		return 0.125 * float64(m-1), true
	case m <= 12:
		return 1 + 0.25*float64(m-9), true
	case m <= 38:
		return 2 + 0.5*float64(m-13), true
	case m <= 93:
		return 15 + float64(m-39), true
	case m <= 108:
		return 70 + 2*float64(m-94), true
	case m <= 123:
		return 100 + 5*float64(m-109), true
	default:
		return 175, true
	}
}

// velocity holds the fields of an airborne velocity message (TC 19)
type velocity struct {
	speed        float64
	speedValid   bool
	speedKind    SpeedKind
	heading      float64
	headingValid bool
	vertRate     int
	vertValid    bool
	vertGNSS     bool
}

func decodeVelocity(data []byte) (velocity, bool) {
	var v velocity
	subtype := bits(data, 38, 40)
	if subtype < 1 || subtype > 4 {
		return v, false
	}

	mult := 1.0
	if subtype == 2 || subtype == 4 {
		mult = 4 // supersonic
	}

	switch subtype {
	case 1, 2:
		ewRaw := bits(data, 47, 56)
		nsRaw := bits(data, 58, 67)
		if ewRaw != 0 && nsRaw != 0 {
			ew := float64(ewRaw-1) * mult
			if bit(data, 46) {
				ew = -ew
			}
			ns := float64(nsRaw-1) * mult
			if bit(data, 57) {
				ns = -ns
			}
			v.speed = math.Hypot(ew, ns)
			v.speedValid = true
			v.speedKind = SpeedGround
			if v.speed > 0 {
				hdg := math.Atan2(ew, ns) * 180 / math.Pi
				if hdg < 0 {
					hdg += 360
				}
				v.heading = hdg
				v.headingValid = true
			}
		}
	case 3, 4:
		if bit(data, 46) {
			v.heading = float64(bits(data, 47, 56)) * 360.0 / 1024.0
			v.headingValid = true
		}
		if raw := bits(data, 58, 67); raw != 0 {
			v.speed = float64(raw-1) * mult
			v.speedValid = true
			v.speedKind = SpeedIAS
			if bit(data, 57) {
				v.speedKind = SpeedTAS
			}
		}
	}

	if raw := bits(data, 70, 78); raw != 0 {
		v.vertRate = int(raw-1) * 64
		if bit(data, 69) {
			v.vertRate = -v.vertRate
		}
		v.vertValid = true
		v.vertGNSS = !bit(data, 68)
	}

	return v, true
}
