package rtlsdr

import (
	"errors"
	"fmt"
)

// Capture defaults for 1090 MHz Mode S reception
const (
	DefaultFrequency  = 1090000000
	DefaultSampleRate = 2400000
	BufferSize        = 16 * 16384
)

// AutoGain selects the tuner's automatic gain control
const AutoGain = 0

var (
	// ErrNoDevice is returned when no dongle is attached
	ErrNoDevice = errors.New("no RTL-SDR devices found")
	// ErrUnsupported is returned by builds without cgo
	ErrUnsupported = errors.New("RTL-SDR support requires a cgo build with librtlsdr")
)

// Settings configures the tuner
type Settings struct {
	Frequency  uint32
	SampleRate uint32
	Gain       float64 // dB, AutoGain for AGC
	PPM        int
}

// DefaultSettings returns the settings for Mode S at 2.4 MHz with AGC
func DefaultSettings() Settings {
	return Settings{
		Frequency:  DefaultFrequency,
		SampleRate: DefaultSampleRate,
		Gain:       AutoGain,
	}
}

// Validate checks the settings against what the demodulator supports
func (s Settings) Validate() error {
	if s.Frequency == 0 {
		return fmt.Errorf("frequency must be set")
	}
	if s.SampleRate != DefaultSampleRate {
		return fmt.Errorf("sample rate must be %d, got %d", DefaultSampleRate, s.SampleRate)
	}
	if s.Gain < 0 || s.Gain > 50 {
		return fmt.Errorf("gain must be between 0 and 50 dB, got %.1f", s.Gain)
	}
	return nil
}
