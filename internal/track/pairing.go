package track

import (
	"time"

	"adsbtrack/internal/cpr"
)

// pairState is the per-aircraft CPR pairing state
type pairState uint8

const (
	pairEmpty   pairState = iota // no frames held
	pairPending                  // one parity held, waiting for the other
	pairPaired                   // both parities held within the window
)

func (s pairState) String() string {
	switch s {
	case pairPending:
		return "pending"
	case pairPaired:
		return "paired"
	default:
		return "empty"
	}
}

// pairing holds the latest even and odd frame of one aircraft. slots is
// indexed by parity; which slots are meaningful follows from state (and
// pending while pairPending).
type pairing struct {
	state   pairState
	pending cpr.Parity
	slots   [2]cpr.Frame
}

func opposite(p cpr.Parity) cpr.Parity {
	if p == cpr.Even {
		return cpr.Odd
	}
	return cpr.Even
}

// holds reports whether a frame of the given parity is held
func (p *pairing) holds(parity cpr.Parity) bool {
	switch p.state {
	case pairPaired:
		return true
	case pairPending:
		return p.pending == parity
	default:
		return false
	}
}

// observe records f and reports whether it now forms a pair. A frame older
// than the one already held for its parity is dropped. A held counterpart
// that is out of the window, or of the other surface/airborne kind, is
// discarded rather than paired.
func (p *pairing) observe(f cpr.Frame, window time.Duration) (even, odd cpr.Frame, paired, accepted bool) {
	if p.holds(f.Parity) && f.Received.Before(p.slots[f.Parity].Received) {
		return cpr.Frame{}, cpr.Frame{}, false, false
	}

	other := opposite(f.Parity)
	p.slots[f.Parity] = f

	if !p.holds(other) || !compatible(f, p.slots[other], window) {
		p.keepOnly(f.Parity)
		return cpr.Frame{}, cpr.Frame{}, false, true
	}

	p.state = pairPaired
	return p.slots[cpr.Even], p.slots[cpr.Odd], true, true
}

// keepOnly drops everything but the frame of the given parity
func (p *pairing) keepOnly(parity cpr.Parity) {
	p.state = pairPending
	p.pending = parity
	p.slots[opposite(parity)] = cpr.Frame{}
}

func compatible(a, b cpr.Frame, window time.Duration) bool {
	if a.Surface != b.Surface {
		return false
	}
	gap := a.Received.Sub(b.Received)
	if gap < 0 {
		gap = -gap
	}
	return gap <= window
}
