package adsb

import (
	"encoding/hex"
	"testing"
	"time"

	"adsbtrack/internal/cpr"
	"adsbtrack/internal/modes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) *modes.Message {
	t.Helper()
	data, err := hex.DecodeString(s)
	require.NoError(t, err)
	m, err := modes.Decode(modes.Frame{Data: data, Received: time.Unix(1700000000, 0)})
	require.NoError(t, err)
	return m
}

func TestClassify_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		kind  Kind
	}{
		{"identification", "8D4840D6232CC371CB38207ED220", KindIdentification},
		{"airborne position", "8D40621D58C382D690C8AC2863A7", KindAirbornePosition},
		{"surface position", "8D4840D6394C037D57CFA65E22A4", KindSurfacePosition},
		{"airborne velocity", "8D485020994409940838175B284F", KindAirborneVelocity},
		{"identity reply", "28000AAA02E41F", KindSurveillance},
		{"altitude reply", "2000183859C38D", KindSurveillance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Classify(decode(t, tt.frame))
			assert.Equal(t, tt.kind, msg.Kind())
		})
	}
}

func TestClassify_Identification(t *testing.T) {
	msg := Classify(decode(t, "8D4840D6232CC371CB38207ED220"))
	id, ok := msg.(Identification)
	require.True(t, ok)
	assert.Equal(t, "KLM123  ", id.Callsign)
	assert.Equal(t, "A3", id.Category)
}

func TestClassify_AirbornePosition(t *testing.T) {
	m := decode(t, "8D40621D58C386435CC412692AD6")
	msg := Classify(m)
	pos, ok := msg.(AirbornePosition)
	require.True(t, ok)

	assert.Equal(t, cpr.Odd, pos.Frame.Parity)
	assert.Equal(t, uint32(74158), pos.Frame.Lat)
	assert.Equal(t, uint32(50194), pos.Frame.Lon)
	assert.False(t, pos.Frame.Surface)
	assert.Equal(t, m.Received, pos.Frame.Received)
	require.NotNil(t, pos.Altitude)
	assert.Equal(t, 38000, *pos.Altitude)
	assert.False(t, pos.AltitudeGNSS)
}

func TestClassify_SurfacePosition(t *testing.T) {
	msg := Classify(decode(t, "8D4840D6394C052A2FB48C7ABE1A"))
	pos, ok := msg.(SurfacePosition)
	require.True(t, ok)

	assert.Equal(t, cpr.Odd, pos.Frame.Parity)
	assert.True(t, pos.Frame.Surface)
	require.NotNil(t, pos.GroundSpeed)
	assert.InDelta(t, 5.5, *pos.GroundSpeed, 1e-9)
	require.NotNil(t, pos.Track)
	assert.InDelta(t, 180.0, *pos.Track, 1e-9)
}

func TestClassify_AirborneVelocity(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		speed     float64
		speedType SpeedType
		heading   float64
		vertRate  int
		source    VerticalRateSource
	}{
		{"ground speed", "8D4840D69905C30030040056BF7D", 450, GroundSpeed, 270, 0, SourceBarometric},
		{"true airspeed", "8DA05F219B06B6AF189400CBC33F", 375, TrueAirspeed, 243.984375, -2304, SourceBarometric},
		{"gnss vertical rate", "8D485020994409940838175B284F", 159.2011, GroundSpeed, 182.8804, -832, SourceGNSS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Classify(decode(t, tt.frame)).(AirborneVelocity)
			require.True(t, ok)
			require.NotNil(t, v.Speed)
			assert.InDelta(t, tt.speed, *v.Speed, 1e-3)
			assert.Equal(t, tt.speedType, v.SpeedType)
			require.NotNil(t, v.Heading)
			assert.InDelta(t, tt.heading, *v.Heading, 1e-3)
			require.NotNil(t, v.VerticalRate)
			assert.Equal(t, tt.vertRate, *v.VerticalRate)
			assert.Equal(t, tt.source, v.VerticalRateSource)
		})
	}
}

func TestClassify_SurveillanceReply(t *testing.T) {
	r, ok := Classify(decode(t, "2900080833D927")).(SurveillanceReply)
	require.True(t, ok)
	require.NotNil(t, r.Squawk)
	assert.Equal(t, "1200", *r.Squawk)
	assert.Nil(t, r.Altitude)
	require.NotNil(t, r.OnGround)
	assert.True(t, *r.OnGround)

	r, ok = Classify(decode(t, "2000183859C38D")).(SurveillanceReply)
	require.True(t, ok)
	assert.Nil(t, r.Squawk)
	require.NotNil(t, r.Altitude)
	assert.Equal(t, 38000, *r.Altitude)
}

func TestClassify_Other(t *testing.T) {
	tests := []struct {
		name string
		msg  *modes.Message
	}{
		{"all call", &modes.Message{DF: modes.DFAllCall, Address: 0x4840D6}},
		{"operational status", &modes.Message{DF: modes.DFExtSquitter, TypeCode: 31}},
		{"identification with bad characters", &modes.Message{DF: modes.DFExtSquitter, TypeCode: 4}},
		{"velocity with nothing available", &modes.Message{DF: modes.DFExtSquitter, TypeCode: 19}},
		{"reply without usable fields", &modes.Message{DF: modes.DFCommBAlt}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Classify(tt.msg)
			other, ok := msg.(Other)
			require.True(t, ok)
			assert.Equal(t, KindOther, msg.Kind())
			assert.Equal(t, tt.msg.DF, other.DF)
			assert.Equal(t, tt.msg.TypeCode, other.TypeCode)
		})
	}
}

func TestAddress(t *testing.T) {
	a, err := ParseAddress("4840d6")
	require.NoError(t, err)
	assert.Equal(t, Address(0x4840D6), a)
	assert.Equal(t, "4840D6", a.String())
	assert.Equal(t, "00000A", Address(10).String())

	for _, bad := range []string{"", "4840D", "4840D6F", "ZZZZZZ"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestKindStrings(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range Kinds {
		seen[k.String()] = true
	}
	assert.Len(t, seen, len(Kinds))
	assert.Equal(t, "tas", TrueAirspeed.String())
	assert.True(t, IndicatedAirspeed.IsAirspeed())
	assert.False(t, GroundSpeed.IsAirspeed())
	assert.Equal(t, "gnss", SourceGNSS.String())
}
