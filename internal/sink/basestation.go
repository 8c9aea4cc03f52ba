package sink

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"adsbtrack/internal/snapshot"

	"github.com/sirupsen/logrus"
)

// BaseStation message type
const baseStationMSG = "MSG"

// BaseStation transmission types
const (
	TransmissionIDCategory   = 1 // Extended Squitter Aircraft ID and Category
	TransmissionSurface      = 2 // Extended Squitter Surface Position
	TransmissionAirborne     = 3 // Extended Squitter Airborne Position
	TransmissionVelocity     = 4 // Extended Squitter Airborne Velocity
	TransmissionSurveillance = 5 // Surveillance Alt, Squawk change
)

// BaseStation writes records as SBS-1 (port 30003 style) CSV lines
type BaseStation struct {
	w         io.Writer
	logger    *logrus.Logger
	now       func() time.Time
	mu        sync.Mutex
	sessionID int
}

// NewBaseStation creates a BaseStation writer on w
func NewBaseStation(w io.Writer, logger *logrus.Logger) *BaseStation {
	return &BaseStation{
		w:         w,
		logger:    logger,
		now:       time.Now,
		sessionID: 1,
	}
}

// Name implements Sink
func (b *BaseStation) Name() string {
	return "basestation"
}

// Write emits one line per record
func (b *BaseStation) Write(_ context.Context, records []snapshot.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	logged := b.now()
	var sb strings.Builder
	for i := range records {
		sb.WriteString(b.formatCSV(&records[i], logged))
		sb.WriteByte('\n')
	}
	if _, err := io.WriteString(b.w, sb.String()); err != nil {
		return fmt.Errorf("failed to write BaseStation lines: %w", err)
	}
	return nil
}

// transmissionType picks the SBS message that best describes the record
func transmissionType(r *snapshot.Record) int {
	switch {
	case r.HasPosition() && r.OnGround:
		return TransmissionSurface
	case r.HasPosition():
		return TransmissionAirborne
	case r.GroundSpeed != nil || r.VerticalRate != nil:
		return TransmissionVelocity
	case r.Callsign != nil:
		return TransmissionIDCategory
	default:
		return TransmissionSurveillance
	}
}

// formatCSV formats a record as a BaseStation MSG line
func (b *BaseStation) formatCSV(r *snapshot.Record, logged time.Time) string {
	var callsign, altitude, speed, track, lat, lon, vrate, squawk string

	if r.Callsign != nil {
		callsign = *r.Callsign
	}
	if alt, ok := r.AltitudeFeet(); ok {
		altitude = strconv.Itoa(int(math.Round(alt)))
	}
	if gs, ok := r.GroundSpeedKnots(); ok {
		speed = strconv.FormatFloat(gs, 'f', 0, 64)
	}
	if r.Heading != nil {
		track = strconv.FormatFloat(*r.Heading, 'f', 0, 64)
	}
	if r.HasPosition() {
		lat = strconv.FormatFloat(*r.Latitude, 'f', 5, 64)
		lon = strconv.FormatFloat(*r.Longitude, 'f', 5, 64)
	}
	if vr, ok := r.VerticalRateFPM(); ok {
		vrate = strconv.Itoa(int(math.Round(vr)))
	}
	if r.Squawk != nil {
		squawk = *r.Squawk
	}

	emergency := "0"
	if squawk == "7500" || squawk == "7600" || squawk == "7700" {
		emergency = "-1"
	}
	ground := "0"
	if r.OnGround {
		ground = "-1"
	}

	generated := r.Observed
	fields := []string{
		baseStationMSG,
		strconv.Itoa(transmissionType(r)),
		strconv.Itoa(b.sessionID),
		"1",
		r.Address,
		"1",
		generated.Format("2006/01/02"),
		generated.Format("15:04:05.000"),
		logged.Format("2006/01/02"),
		logged.Format("15:04:05.000"),
		callsign,
		altitude,
		speed,
		track,
		lat,
		lon,
		vrate,
		squawk,
		"0",
		emergency,
		"0",
		ground,
	}
	return strings.Join(fields, ",")
}

// Close implements Sink; the writer is owned by the caller
func (b *BaseStation) Close() error {
	return nil
}
