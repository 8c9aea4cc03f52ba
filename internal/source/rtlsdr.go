package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adsbtrack/internal/demod"
	"adsbtrack/internal/modes"
	"adsbtrack/internal/rtlsdr"

	"github.com/sirupsen/logrus"
)

// capturer is the part of rtlsdr.Device the source uses
type capturer interface {
	Capture(ctx context.Context, out chan<- []byte) error
	Close() error
}

// RTLSDR demodulates frames from a local dongle
type RTLSDR struct {
	dev     capturer
	demod   *demod.Demodulator
	logger  *logrus.Logger
	samples chan []byte
	errc    chan error

	once    sync.Once
	cancel  context.CancelFunc
	pending []modes.Frame
	blocks  uint64
	err     error
}

// sample blocks between demodulator statistics log lines
const statsEvery = 1000

// OpenRTLSDR opens and tunes the dongle at index
func OpenRTLSDR(index int, settings rtlsdr.Settings, logger *logrus.Logger) (*RTLSDR, error) {
	dev, err := rtlsdr.Open(index, logger)
	if err != nil {
		return nil, err
	}
	if err := dev.Configure(settings); err != nil {
		dev.Close()
		return nil, err
	}
	dem, err := demod.NewDemodulator(demod.DefaultKnownAddresses, logger)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return newRTLSDR(dev, dem, logger), nil
}

func newRTLSDR(dev capturer, dem *demod.Demodulator, logger *logrus.Logger) *RTLSDR {
	return &RTLSDR{
		dev:     dev,
		demod:   dem,
		logger:  logger,
		samples: make(chan []byte, 64),
		errc:    make(chan error, 1),
	}
}

func (r *RTLSDR) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() {
		r.errc <- r.dev.Capture(ctx, r.samples)
	}()
}

// Next implements Source
func (r *RTLSDR) Next(ctx context.Context) (modes.Frame, error) {
	r.once.Do(r.start)

	for len(r.pending) == 0 {
		if r.err != nil {
			return modes.Frame{}, r.err
		}
		select {
		case <-ctx.Done():
			return modes.Frame{}, ctx.Err()
		case err := <-r.errc:
			r.err = fmt.Errorf("capture stopped: %w", err)
		case buf := <-r.samples:
			// buffer ends now; its first sample is older
			n := len(buf) / 2
			received := time.Now().Add(-time.Duration(n) * time.Second / demod.SampleRate)
			r.pending = r.demod.Demodulate(demod.Magnitude(buf), received)
			r.blocks++
			if r.blocks%statsEvery == 0 {
				stats := r.demod.Stats()
				r.logger.WithFields(logrus.Fields{
					"preambles": stats.Preambles,
					"accepted":  stats.Accepted,
					"repaired":  stats.Repaired,
					"rejected":  stats.Rejected,
				}).Debug("Demodulator statistics")
			}
		}
	}

	f := r.pending[0]
	r.pending = r.pending[1:]
	return f, nil
}

// Close stops the capture and releases the device
func (r *RTLSDR) Close() error {
	r.once.Do(func() {})
	if r.cancel != nil {
		r.cancel()
	}
	return r.dev.Close()
}
