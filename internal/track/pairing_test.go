package track

import (
	"testing"
	"time"

	"adsbtrack/internal/cpr"

	"github.com/stretchr/testify/assert"
)

func frame(p cpr.Parity, at time.Duration) cpr.Frame {
	return cpr.Frame{Parity: p, Lat: 1, Lon: 2, Received: t0.Add(at)}
}

func TestPairing_StateMachine(t *testing.T) {
	window := 10 * time.Second

	tests := []struct {
		name   string
		frames []cpr.Frame
		state  pairState
		paired bool
	}{
		{
			name:  "no frames",
			state: pairEmpty,
		},
		{
			name:   "one even frame",
			frames: []cpr.Frame{frame(cpr.Even, 0)},
			state:  pairPending,
		},
		{
			name:   "two even frames",
			frames: []cpr.Frame{frame(cpr.Even, 0), frame(cpr.Even, time.Second)},
			state:  pairPending,
		},
		{
			name:   "even then odd",
			frames: []cpr.Frame{frame(cpr.Even, 0), frame(cpr.Odd, 3*time.Second)},
			state:  pairPaired,
			paired: true,
		},
		{
			name:   "odd then even at window edge",
			frames: []cpr.Frame{frame(cpr.Odd, 0), frame(cpr.Even, 10*time.Second)},
			state:  pairPaired,
			paired: true,
		},
		{
			name:   "counterpart outside window",
			frames: []cpr.Frame{frame(cpr.Even, 0), frame(cpr.Odd, 11*time.Second)},
			state:  pairPending,
		},
		{
			name: "paired then a late frame",
			frames: []cpr.Frame{
				frame(cpr.Even, 0),
				frame(cpr.Odd, 3*time.Second),
				frame(cpr.Odd, 15*time.Second),
			},
			state: pairPending,
		},
		{
			name: "paired stays paired",
			frames: []cpr.Frame{
				frame(cpr.Even, 0),
				frame(cpr.Odd, 3*time.Second),
				frame(cpr.Even, 6*time.Second),
			},
			state:  pairPaired,
			paired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p pairing
			paired := false
			for _, f := range tt.frames {
				_, _, paired, _ = p.observe(f, window)
			}
			assert.Equal(t, tt.state, p.state, "state %v", p.state)
			assert.Equal(t, tt.paired, paired)
		})
	}
}

func TestPairing_ReturnsLatestOfEachParity(t *testing.T) {
	var p pairing
	window := 10 * time.Second

	p.observe(frame(cpr.Even, 0), window)
	p.observe(frame(cpr.Odd, 2*time.Second), window)
	even, odd, paired, _ := p.observe(frame(cpr.Even, 4*time.Second), window)

	assert.True(t, paired)
	assert.Equal(t, t0.Add(4*time.Second), even.Received)
	assert.Equal(t, t0.Add(2*time.Second), odd.Received)
}

func TestPairing_DropsOlderSameParity(t *testing.T) {
	var p pairing
	window := 10 * time.Second

	_, _, _, accepted := p.observe(frame(cpr.Even, 5*time.Second), window)
	assert.True(t, accepted)
	_, _, _, accepted = p.observe(frame(cpr.Even, 0), window)
	assert.False(t, accepted)
	assert.Equal(t, t0.Add(5*time.Second), p.slots[cpr.Even].Received)
}

func TestPairing_SurfaceAndAirborneDoNotPair(t *testing.T) {
	var p pairing
	window := 10 * time.Second

	p.observe(frame(cpr.Even, 0), window)
	surface := frame(cpr.Odd, time.Second)
	surface.Surface = true
	_, _, paired, _ := p.observe(surface, window)

	assert.False(t, paired)
	assert.Equal(t, pairPending, p.state)
	assert.Equal(t, cpr.Odd, p.pending)
}

func TestPairing_KeepOnly(t *testing.T) {
	var p pairing
	window := 10 * time.Second
	p.observe(frame(cpr.Even, 0), window)
	p.observe(frame(cpr.Odd, time.Second), window)

	p.keepOnly(cpr.Odd)
	assert.Equal(t, pairPending, p.state)
	assert.True(t, p.holds(cpr.Odd))
	assert.False(t, p.holds(cpr.Even))
	assert.Equal(t, "pending", p.state.String())
}
