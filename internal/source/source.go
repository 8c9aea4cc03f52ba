// Package source delivers raw Mode S frames from receivers, files and
// recordings.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"adsbtrack/internal/beast"
	"adsbtrack/internal/modes"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrDisconnected marks a lost connection; the next call to Next reconnects
var ErrDisconnected = errors.New("source disconnected")

// Source yields frames in arrival order. Next returns io.EOF once a finite
// source is exhausted; any other error is a resource error the caller may
// retry. Cancelling ctx releases a blocked Next.
type Source interface {
	Next(ctx context.Context) (modes.Frame, error)
	Close() error
}

// Format is the framing of a byte stream
type Format string

const (
	FormatAVR   Format = "avr"
	FormatBeast Format = "beast"
)

// ParseFormat validates a framing name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatAVR, FormatBeast:
		return f, nil
	default:
		return "", fmt.Errorf("unknown input format %q (want avr or beast)", s)
	}
}

// DefaultPort returns the dump1090 port serving the format
func (f Format) DefaultPort() int {
	if f == FormatBeast {
		return 30005
	}
	return 30002
}

// stream decodes frames from a reader on its own goroutine
type stream struct {
	frames chan modes.Frame
	done   chan struct{}
	err    error // set before frames is closed
}

func newStream(r io.Reader, format Format, now func() time.Time, logger *logrus.Logger) *stream {
	s := &stream{
		frames: make(chan modes.Frame, 256),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.frames)
		if format == FormatBeast {
			s.err = s.readBeast(r, now, logger)
		} else {
			s.err = s.readAVR(r, now, logger)
		}
	}()
	return s
}

func (s *stream) send(f modes.Frame) bool {
	select {
	case s.frames <- f:
		return true
	case <-s.done:
		return false
	}
}

func (s *stream) readAVR(r io.Reader, now func() time.Time, logger *logrus.Logger) error {
	malformed := rate.Sometimes{First: 3, Interval: 10 * time.Second}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		f, err := modes.ParseAVR(line, now())
		if err != nil {
			malformed.Do(func() {
				logger.WithError(err).Debug("Skipping malformed AVR line")
			})
			continue
		}
		if !s.send(f) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read AVR stream: %w", err)
	}
	return io.EOF
}

func (s *stream) readBeast(r io.Reader, now func() time.Time, logger *logrus.Logger) error {
	dec := beast.NewDecoder(logger)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, f := range dec.Decode(buf[:n], now()) {
				if !s.send(f) {
					return nil
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		if err != nil {
			return fmt.Errorf("failed to read Beast stream: %w", err)
		}
	}
}

// next waits for the next frame, the end of the stream or ctx
func (s *stream) next(ctx context.Context) (modes.Frame, error) {
	select {
	case <-ctx.Done():
		return modes.Frame{}, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			if s.err == nil {
				return modes.Frame{}, io.EOF
			}
			return modes.Frame{}, s.err
		}
		return f, nil
	}
}

// stop releases the decoding goroutine once its reader returns
func (s *stream) stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
