package modes

import (
	"errors"
	"fmt"
	"time"
)

// Decoding errors
var (
	ErrShortFrame        = errors.New("frame too short for its downlink format")
	ErrBadCRC            = errors.New("CRC check failed")
	ErrUnsupportedFormat = errors.New("unsupported downlink format")
)

// SpeedKind tells what an airborne velocity speed value measures
type SpeedKind uint8

const (
	SpeedGround SpeedKind = iota
	SpeedIAS
	SpeedTAS
)

func (k SpeedKind) String() string {
	switch k {
	case SpeedIAS:
		return "ias"
	case SpeedTAS:
		return "tas"
	default:
		return "ground"
	}
}

// Message is a decoded Mode S frame. Which fields are meaningful depends on
// DF and TypeCode; each optional group carries its own validity flag.
type Message struct {
	DF       uint8
	TypeCode uint8 // DF17/18 only
	Address  uint32
	// AddressFromParity is set when the address was recovered from the AP
	// field and therefore is not protected by the CRC.
	AddressFromParity bool
	Corrected         bool
	Received          time.Time
	Signal            float64

	Callsign string
	Category string

	Altitude      int // feet
	AltitudeValid bool
	AltitudeGNSS  bool
	OnGround      bool
	OnGroundValid bool

	CPRValid   bool
	CPROdd     bool
	CPRSurface bool
	CPRLat     uint32
	CPRLon     uint32

	Speed         float64 // knots
	SpeedValid    bool
	SpeedKind     SpeedKind
	Heading       float64 // degrees
	HeadingValid  bool
	VertRate      int // feet per minute
	VertRateValid bool
	VertRateGNSS  bool

	Squawk      string
	SquawkValid bool
}

// Decode validates a raw frame and extracts its fields. Frames with
// single-bit errors in DF17/18 are repaired in place.
func Decode(f Frame) (*Message, error) {
	if len(f.Data) == 0 {
		return nil, ErrShortFrame
	}
	df := f.DF()
	if len(f.Data) < ExpectedLen(df) {
		return nil, fmt.Errorf("%w: DF%d with %d bytes", ErrShortFrame, df, len(f.Data))
	}
	data := f.Data[:ExpectedLen(df)]

	m := &Message{
		DF:       df,
		Received: f.Received,
		Signal:   f.Signal,
	}

	syndrome := Checksum(data)
	switch df {
	case DFExtSquitter, DFExtSquitterNT:
		if syndrome != 0 {
			fixed := append([]byte(nil), data...)
			if !correctSingleBit(fixed, syndrome) || Checksum(fixed) != 0 {
				return nil, ErrBadCRC
			}
			data = fixed
			m.Corrected = true
		}
		m.Address = bits(data, 9, 32)
		if df == DFExtSquitterNT && bits(data, 6, 8) > 1 {
			// CF 2..7: TIS-B / ADS-R with non-ICAO or relayed formats
			return nil, fmt.Errorf("%w: DF18 CF=%d", ErrUnsupportedFormat, bits(data, 6, 8))
		}
		decodeExtendedSquitter(m, data)

	case DFAllCall:
		// IID may be overlaid on the low 7 bits
		if syndrome&0xffff80 != 0 {
			return nil, ErrBadCRC
		}
		m.Address = bits(data, 9, 32)

	case DFShortAirAir, DFSurveillanceAlt, DFLongAirAir, DFCommBAlt:
		m.Address = syndrome
		m.AddressFromParity = true
		m.Altitude, m.AltitudeValid = decodeAC13(bits(data, 20, 32))
		if df == DFShortAirAir || df == DFLongAirAir {
			// VS: vertical status
			m.OnGround = bit(data, 6)
			m.OnGroundValid = true
		} else {
			decodeFlightStatus(m, data)
		}

	case DFSurveillanceID, DFCommBID:
		m.Address = syndrome
		m.AddressFromParity = true
		m.Squawk = squawkString(decodeID13(bits(data, 20, 32)))
		m.SquawkValid = true
		decodeFlightStatus(m, data)

	default:
		return nil, fmt.Errorf("%w: DF%d", ErrUnsupportedFormat, df)
	}

	return m, nil
}

// decodeExtendedSquitter fills the ME-dependent fields of a DF17/18 message
func decodeExtendedSquitter(m *Message, data []byte) {
	tc := uint8(bits(data, 33, 37))
	m.TypeCode = tc

	switch {
	case tc >= 1 && tc <= 4:
		if cs, ok := decodeCallsign(data); ok {
			m.Callsign = cs
			if ca := bits(data, 38, 40); ca != 0 {
				m.Category = fmt.Sprintf("%c%d", 'A'+rune(4-tc), ca)
			}
		}

	case tc >= 5 && tc <= 8:
		m.OnGround = true
		m.OnGroundValid = true
		if gs, ok := surfaceMovement(bits(data, 38, 44)); ok {
			m.Speed = gs
			m.SpeedValid = true
			m.SpeedKind = SpeedGround
		}
		if bit(data, 45) {
			m.Heading = float64(bits(data, 46, 52)) * 360.0 / 128.0
			m.HeadingValid = true
		}
		decodeCPR(m, data)
		m.CPRSurface = true

	case (tc >= 9 && tc <= 18) || (tc >= 20 && tc <= 22):
		m.Altitude, m.AltitudeValid = decodeAC12(bits(data, 41, 52))
		m.AltitudeGNSS = tc >= 20
		m.OnGroundValid = true
		decodeCPR(m, data)

	case tc == 19:
		v, ok := decodeVelocity(data)
		if !ok {
			return
		}
		m.Speed, m.SpeedValid, m.SpeedKind = v.speed, v.speedValid, v.speedKind
		m.Heading, m.HeadingValid = v.heading, v.headingValid
		m.VertRate, m.VertRateValid, m.VertRateGNSS = v.vertRate, v.vertValid, v.vertGNSS
	}
}

func decodeCPR(m *Message, data []byte) {
	m.CPROdd = bit(data, 54)
	m.CPRLat = bits(data, 55, 71)
	m.CPRLon = bits(data, 72, 88)
	m.CPRValid = true
}

// decodeFlightStatus reads the FS field of DF4/5/20/21. Values 4 and 5 do
// not say whether the aircraft is airborne.
func decodeFlightStatus(m *Message, data []byte) {
	switch bits(data, 6, 8) {
	case 0, 2:
		m.OnGroundValid = true
	case 1, 3:
		m.OnGround = true
		m.OnGroundValid = true
	}
}
