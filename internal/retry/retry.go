// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Config configures retry behavior with exponential backoff
type Config struct {
	// MaxRetries is the number of attempts after the first; negative retries
	// until the context ends.
	MaxRetries int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts
	MaxDelay time.Duration
	// Multiplier grows the delay after each failure
	Multiplier float64
}

// Default returns sensible defaults for retry behavior
func Default() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// permanent marks an error that must not be retried
type permanent struct {
	err error
}

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent wraps err so that Do returns it immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Do executes fn until it succeeds, returns a permanent error, the retries
// run out or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	b := NewBackoff(cfg)

	for attempt := 0; cfg.MaxRetries < 0 || attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(b.Next())
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
			case <-t.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		var p permanent
		if errors.As(err, &p) {
			return p.err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// Backoff produces the delays of an exponential backoff sequence
type Backoff struct {
	cfg     Config
	attempt int
}

// NewBackoff creates a backoff sequence
func NewBackoff(cfg Config) *Backoff {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &Backoff{cfg: cfg}
}

// Next returns the next delay: min(InitialDelay * Multiplier^n, MaxDelay)
func (b *Backoff) Next() time.Duration {
	d := time.Duration(float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(b.attempt)))
	if b.cfg.MaxDelay > 0 && (d > b.cfg.MaxDelay || d < 0) {
		d = b.cfg.MaxDelay
	}
	b.attempt++
	return d
}

// Reset restarts the sequence after a success
func (b *Backoff) Reset() {
	b.attempt = 0
}
