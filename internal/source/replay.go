package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"adsbtrack/internal/modes"
	"adsbtrack/internal/storage"

	"github.com/sirupsen/logrus"
)

// PingReader is a cursor over recorded frames, such as storage.PingCursor
type PingReader interface {
	Next(ctx context.Context) (storage.Ping, error)
	Close() error
}

// Replay feeds frames recorded in the pings table back through the
// pipeline, stamped with their original reception time
type Replay struct {
	pings  PingReader
	logger *logrus.Logger
	count  uint64
}

// NewReplay creates a replay source
func NewReplay(pings PingReader, logger *logrus.Logger) *Replay {
	return &Replay{pings: pings, logger: logger}
}

// Next implements Source
func (r *Replay) Next(ctx context.Context) (modes.Frame, error) {
	p, err := r.pings.Next(ctx)
	if errors.Is(err, io.EOF) {
		r.logger.WithField("frames", r.count).Info("Replay finished")
		return modes.Frame{}, io.EOF
	}
	if err != nil {
		return modes.Frame{}, fmt.Errorf("failed to read recorded frame: %w", err)
	}
	r.count++
	return modes.Frame{Data: p.Data, Received: p.Timestamp}, nil
}

// Close closes the cursor
func (r *Replay) Close() error {
	return r.pings.Close()
}
