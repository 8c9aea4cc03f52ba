package track

import (
	"errors"
	"fmt"
	"time"

	"adsbtrack/internal/cpr"
)

// Default tuning values
const (
	DefaultPairWindow     = 10 * time.Second
	DefaultStaleAfter     = 60 * time.Second
	DefaultLocalFreshness = 30 * time.Second
	DefaultSweepInterval  = 5 * time.Second
	DefaultShards         = 16
)

// Config holds the store's tuning parameters
type Config struct {
	// PairWindow is the longest gap between an even and an odd frame that
	// are still decoded together.
	PairWindow time.Duration
	// StaleAfter is how long a track may go without messages before an
	// eviction sweep removes it.
	StaleAfter time.Duration
	// LocalFreshness is the maximum age of a fix used as the reference for
	// a single-frame decode.
	LocalFreshness time.Duration
	// SweepInterval is how often the ingestion loop runs eviction.
	SweepInterval time.Duration
	// Reference is the receiver location. It is only used to pick the
	// quadrant of surface positions for aircraft with no fix yet.
	Reference *cpr.Position
	Shards    int
}

// DefaultConfig returns the conventional ADS-B tracking windows
func DefaultConfig() Config {
	return Config{
		PairWindow:     DefaultPairWindow,
		StaleAfter:     DefaultStaleAfter,
		LocalFreshness: DefaultLocalFreshness,
		SweepInterval:  DefaultSweepInterval,
		Shards:         DefaultShards,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.PairWindow <= 0 {
		return errors.New("pair window must be positive")
	}
	if c.StaleAfter <= 0 {
		return errors.New("stale window must be positive")
	}
	if c.LocalFreshness < 0 {
		return errors.New("local freshness must not be negative")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.Shards < 1 {
		return fmt.Errorf("invalid shard count %d", c.Shards)
	}
	if r := c.Reference; r != nil {
		if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
			return fmt.Errorf("invalid reference position %s", r)
		}
	}
	return nil
}
