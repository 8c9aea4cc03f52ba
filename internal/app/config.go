package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"adsbtrack/internal/cpr"
	"adsbtrack/internal/ingest"
	"adsbtrack/internal/rtlsdr"
	"adsbtrack/internal/sink"
	"adsbtrack/internal/snapshot"
	"adsbtrack/internal/source"
	"adsbtrack/internal/storage"
	"adsbtrack/internal/track"
)

// SourceKind selects where frames come from
type SourceKind string

const (
	SourceTCP    SourceKind = "tcp"
	SourceStdin  SourceKind = "stdin"
	SourceReplay SourceKind = "replay"
	SourceRTLSDR SourceKind = "rtlsdr"
)

// Default configuration constants
const (
	DefaultAddr            = "localhost:30005"
	DefaultFormat          = "beast"
	DefaultFrequency       = rtlsdr.DefaultFrequency
	DefaultSampleRate      = rtlsdr.DefaultSampleRate
	DefaultGain            = 40.0 // dB; 0 selects AGC
	DefaultEmitInterval    = 10 * time.Second
	DefaultOutputFormat    = "json"
	DefaultLogFormat       = "text"
	DefaultLogMaxSize      = 100 // MB
	DefaultShutdownTimeout = 5 * time.Second
	DefaultStatsInterval   = 30 * time.Second
	DefaultSourceName      = "adsbtrack"
)

// Config holds application configuration
type Config struct {
	Source SourceKind
	Addr   string
	Format string

	// RTL-SDR
	DeviceIndex int
	Frequency   uint32
	SampleRate  uint32
	Gain        float64
	PPM         int

	// Database is used by the replay source and the postgres sink
	Database    storage.Config
	ReplayQuery string

	// Tracking
	PairWindow     time.Duration
	StaleAfter     time.Duration
	LocalFreshness time.Duration
	SweepInterval  time.Duration
	Reference      string // "lat,lon" of the receiver, optional

	// Output
	EmitInterval  time.Duration
	FlushInterval time.Duration
	AltitudeUnit  string
	SpeedUnit     string
	BaseStation   bool
	OutputDir     string
	OutputFormat  string
	RotateUTC     bool
	RetainDays    int
	Postgres      bool
	SourceName    string

	// Service
	HTTPAddr        string
	StatsInterval   time.Duration
	ShutdownTimeout time.Duration

	// Logging
	Verbose    bool
	LogFormat  string
	LogFile    string
	LogMaxSize int
}

// DefaultConfig returns the configuration used when no flags are given
func DefaultConfig() Config {
	return Config{
		Source:          SourceTCP,
		Addr:            DefaultAddr,
		Format:          DefaultFormat,
		Frequency:       DefaultFrequency,
		SampleRate:      DefaultSampleRate,
		Gain:            DefaultGain,
		Database:        storage.Config{Port: storage.DefaultPort, SSLMode: storage.DefaultSSLMode},
		ReplayQuery:     storage.DefaultPingQuery,
		PairWindow:      track.DefaultPairWindow,
		StaleAfter:      track.DefaultStaleAfter,
		LocalFreshness:  track.DefaultLocalFreshness,
		SweepInterval:   track.DefaultSweepInterval,
		EmitInterval:    DefaultEmitInterval,
		FlushInterval:   ingest.DefaultFlushInterval,
		AltitudeUnit:    string(snapshot.Feet),
		SpeedUnit:       string(snapshot.Knots),
		OutputFormat:    DefaultOutputFormat,
		RotateUTC:       true,
		SourceName:      DefaultSourceName,
		StatsInterval:   DefaultStatsInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogFormat:       DefaultLogFormat,
		LogMaxSize:      DefaultLogMaxSize,
	}
}

// Validate checks the configuration before anything is opened
func (c Config) Validate() error {
	switch c.Source {
	case SourceTCP:
		if c.Addr == "" {
			return errors.New("tcp source needs an address")
		}
	case SourceStdin, SourceRTLSDR:
	case SourceReplay:
		if !c.hasDatabase() {
			return errors.New("replay needs a database")
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}

	if c.Source != SourceRTLSDR && c.Source != SourceReplay {
		if _, err := source.ParseFormat(c.Format); err != nil {
			return err
		}
	}
	if c.Source == SourceRTLSDR {
		if err := c.RTLSDRSettings().Validate(); err != nil {
			return err
		}
	}

	if _, err := c.TrackConfig(); err != nil {
		return err
	}
	if err := c.Units().Validate(); err != nil {
		return err
	}
	if c.EmitInterval < 0 {
		return errors.New("emit interval must not be negative")
	}
	if c.OutputDir != "" {
		if _, err := sink.ParseFormat(c.OutputFormat); err != nil {
			return err
		}
	}
	if c.Postgres && !c.hasDatabase() {
		return errors.New("postgres output needs a database")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

func (c Config) hasDatabase() bool {
	return c.Database.URL != "" || c.Database.Host != ""
}

// TrackConfig builds the store configuration
func (c Config) TrackConfig() (track.Config, error) {
	tc := track.DefaultConfig()
	tc.PairWindow = c.PairWindow
	tc.StaleAfter = c.StaleAfter
	tc.LocalFreshness = c.LocalFreshness
	tc.SweepInterval = c.SweepInterval

	if c.Reference != "" {
		ref, err := parseReference(c.Reference)
		if err != nil {
			return tc, err
		}
		tc.Reference = &ref
	}
	return tc, tc.Validate()
}

// Units builds the record unit policy
func (c Config) Units() snapshot.Units {
	return snapshot.Units{
		Altitude: snapshot.AltitudeUnit(c.AltitudeUnit),
		Speed:    snapshot.SpeedUnit(c.SpeedUnit),
	}
}

// RTLSDRSettings builds the tuner settings
func (c Config) RTLSDRSettings() rtlsdr.Settings {
	return rtlsdr.Settings{
		Frequency:  c.Frequency,
		SampleRate: c.SampleRate,
		Gain:       c.Gain,
		PPM:        c.PPM,
	}
}

// parseReference reads "lat,lon" in decimal degrees
func parseReference(s string) (cpr.Position, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return cpr.Position{}, fmt.Errorf("invalid reference %q: want lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return cpr.Position{}, fmt.Errorf("invalid reference latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return cpr.Position{}, fmt.Errorf("invalid reference longitude: %w", err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return cpr.Position{}, fmt.Errorf("reference %q out of range", s)
	}
	return cpr.Position{Latitude: lat, Longitude: lon}, nil
}
