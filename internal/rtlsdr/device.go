//go:build cgo

// Package rtlsdr captures raw I/Q samples from an RTL2832 dongle.
package rtlsdr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	rtl "github.com/jpoirier/gortlsdr"
	"github.com/sirupsen/logrus"
)

// Device is an opened RTL-SDR dongle
type Device struct {
	dev    *rtl.Context
	logger *logrus.Logger
	index  int
	mu     sync.Mutex
	closed bool
}

// Open opens the dongle at index
func Open(index int, logger *logrus.Logger) (*Device, error) {
	count := rtl.GetDeviceCount()
	if count == 0 {
		return nil, ErrNoDevice
	}
	if index < 0 || index >= count {
		return nil, fmt.Errorf("device index %d out of range (0-%d)", index, count-1)
	}

	dev, err := rtl.Open(index)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"device_index": index,
		"name":         rtl.GetDeviceName(index),
	}).Info("Opened RTL-SDR device")

	return &Device{dev: dev, logger: logger, index: index}, nil
}

// Configure tunes the dongle
func (d *Device) Configure(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if err := d.dev.SetCenterFreq(int(s.Frequency)); err != nil {
		return fmt.Errorf("failed to set frequency: %w", err)
	}
	if err := d.dev.SetSampleRate(int(s.SampleRate)); err != nil {
		return fmt.Errorf("failed to set sample rate: %w", err)
	}
	if s.PPM != 0 {
		if err := d.dev.SetFreqCorrection(s.PPM); err != nil {
			return fmt.Errorf("failed to set frequency correction: %w", err)
		}
	}

	if s.Gain == AutoGain {
		if err := d.dev.SetTunerGainMode(false); err != nil {
			return fmt.Errorf("failed to set auto gain: %w", err)
		}
	} else {
		if err := d.dev.SetTunerGainMode(true); err != nil {
			return fmt.Errorf("failed to set manual gain mode: %w", err)
		}
		// tenths of dB
		if err := d.dev.SetTunerGain(int(s.Gain * 10)); err != nil {
			return fmt.Errorf("failed to set gain: %w", err)
		}
	}

	if err := d.dev.ResetBuffer(); err != nil {
		return fmt.Errorf("failed to reset buffer: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"device_index": d.index,
		"frequency":    s.Frequency,
		"sample_rate":  s.SampleRate,
		"gain":         s.Gain,
		"ppm":          s.PPM,
	}).Info("RTL-SDR device configured")
	return nil
}

// Capture streams sample buffers into out until ctx is cancelled. Buffers
// are dropped when out is full.
func (d *Device) Capture(ctx context.Context, out chan<- []byte) error {
	var dropped uint64
	callback := func(data []byte) {
		buf := append([]byte(nil), data...)
		select {
		case out <- buf:
		default:
			dropped++
			if dropped%100 == 1 {
				d.logger.WithField("dropped", dropped).Warn("Dropping sample buffers, consumer too slow")
			}
		}
	}

	errc := make(chan error, 1)
	go func() {
		errc <- d.dev.ReadAsync(callback, nil, 0, BufferSize)
	}()

	select {
	case <-ctx.Done():
		if err := d.dev.CancelAsync(); err != nil {
			d.logger.WithError(err).Error("Failed to cancel async reading")
		}
		<-errc
		return ctx.Err()
	case err := <-errc:
		if err == nil {
			err = errors.New("sample stream ended")
		}
		return fmt.Errorf("RTL-SDR read failed: %w", err)
	}
}

// Close releases the dongle
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.dev.Close(); err != nil {
		return fmt.Errorf("failed to close device: %w", err)
	}
	d.logger.Info("RTL-SDR device closed")
	return nil
}
