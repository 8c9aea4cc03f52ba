//go:build !cgo

package rtlsdr

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Device is unavailable in builds without cgo
type Device struct{}

// Open always fails without cgo
func Open(index int, logger *logrus.Logger) (*Device, error) {
	return nil, ErrUnsupported
}

// Configure always fails without cgo
func (d *Device) Configure(s Settings) error {
	return ErrUnsupported
}

// Capture always fails without cgo
func (d *Device) Capture(ctx context.Context, out chan<- []byte) error {
	return ErrUnsupported
}

// Close is a no-op without cgo
func (d *Device) Close() error {
	return nil
}
