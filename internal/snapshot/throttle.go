package snapshot

import (
	"fmt"
	"sync"
	"time"

	"adsbtrack/internal/adsb"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultThrottleSize bounds the number of aircraft the throttle remembers
const DefaultThrottleSize = 4096

// Throttle spaces out records per aircraft: at most one every interval.
// Limiters live in an LRU so aircraft that left do not accumulate.
type Throttle struct {
	interval time.Duration
	mu       sync.Mutex
	limiters *lru.Cache[adsb.Address, *rate.Limiter]
}

// NewThrottle creates a throttle. A zero interval lets every record through.
func NewThrottle(interval time.Duration, size int) (*Throttle, error) {
	if size <= 0 {
		size = DefaultThrottleSize
	}
	cache, err := lru.New[adsb.Address, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter cache: %w", err)
	}
	return &Throttle{interval: interval, limiters: cache}, nil
}

// Allow reports whether a record for addr may be emitted at now
func (t *Throttle) Allow(addr adsb.Address, now time.Time) bool {
	if t.interval <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	lim, ok := t.limiters.Get(addr)
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters.Add(addr, lim)
	}
	return lim.AllowN(now, 1)
}

// Forget drops the limiter of an evicted aircraft
func (t *Throttle) Forget(addr adsb.Address) {
	t.limiters.Remove(addr)
}

// Len returns the number of aircraft being throttled
func (t *Throttle) Len() int {
	return t.limiters.Len()
}
