package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"adsbtrack/internal/modes"

	"github.com/sirupsen/logrus"
)

// DefaultDialTimeout bounds a single connection attempt
const DefaultDialTimeout = 10 * time.Second

// TCP reads frames from a dump1090-style network feed. A dropped connection
// surfaces as ErrDisconnected and is re-dialed on the following Next.
type TCP struct {
	addr   string
	format Format
	dialer net.Dialer
	logger *logrus.Logger

	mu     sync.Mutex
	conn   net.Conn
	stream *stream
	closed bool
}

// NewTCP creates a feed client for addr (host:port)
func NewTCP(addr string, format Format, logger *logrus.Logger) *TCP {
	return &TCP{
		addr:   addr,
		format: format,
		dialer: net.Dialer{Timeout: DefaultDialTimeout},
		logger: logger,
	}
}

// Addr returns the feed address
func (t *TCP) Addr() string {
	return t.addr
}

func (t *TCP) connect(ctx context.Context) (*stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, io.EOF
	}
	if t.stream != nil {
		return t.stream, nil
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.addr, err)
	}

	t.logger.WithFields(logrus.Fields{
		"address": t.addr,
		"format":  t.format,
	}).Info("Connected to feed")

	t.conn = conn
	t.stream = newStream(conn, t.format, time.Now, t.logger)
	return t.stream, nil
}

func (t *TCP) disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream != nil {
		t.stream.stop()
		t.stream = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

// Next implements Source
func (t *TCP) Next(ctx context.Context) (modes.Frame, error) {
	s, err := t.connect(ctx)
	if err != nil {
		return modes.Frame{}, err
	}

	f, err := s.next(ctx)
	if err == nil {
		return f, nil
	}
	if ctx.Err() != nil {
		return modes.Frame{}, err
	}

	t.disconnect()
	if errors.Is(err, io.EOF) {
		t.logger.WithField("address", t.addr).Warn("Feed closed the connection")
		return modes.Frame{}, fmt.Errorf("%w: %s closed the connection", ErrDisconnected, t.addr)
	}
	t.logger.WithError(err).WithField("address", t.addr).Warn("Feed connection failed")
	return modes.Frame{}, fmt.Errorf("%w: %v", ErrDisconnected, err)
}

// Close drops the connection; later calls to Next return io.EOF
func (t *TCP) Close() error {
	t.disconnect()

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
