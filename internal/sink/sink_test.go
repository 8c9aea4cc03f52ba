package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"adsbtrack/internal/snapshot"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 3, 250_000_000, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func positionRecord() snapshot.Record {
	return snapshot.Record{
		Address:          "4840D6",
		Callsign:         str("KLM123"),
		Latitude:         f64(52.308608),
		Longitude:        f64(4.763907),
		PositionMethod:   "global",
		Altitude:         f64(38000),
		AltitudeUnit:     "feet",
		GroundSpeed:      f64(450),
		SpeedUnit:        "knots",
		Heading:          f64(270),
		VerticalRate:     f64(-1024),
		VerticalRateUnit: "ft/min",
		Squawk:           str("7700"),
		Messages:         4,
		FirstSeen:        t0.Add(-3 * time.Second),
		Observed:         t0,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "json", want: FormatJSON},
		{in: "msgpack", want: FormatMsgpack},
		{in: "csv", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFile_JSONLines(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, FormatJSON, true, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "file", f.Name())
	assert.True(t, strings.HasSuffix(f.Rotator().CurrentFile(), ".jsonl"))

	second := positionRecord()
	second.Address = "ABCDEF"
	require.NoError(t, f.Write(context.Background(), []snapshot.Record{positionRecord(), second}))
	require.NoError(t, f.Write(context.Background(), nil))

	name := f.Rotator().CurrentFile()
	require.NoError(t, f.Close())

	file, err := os.Open(name)
	require.NoError(t, err)
	defer file.Close()

	var addresses []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r snapshot.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		addresses = append(addresses, r.Address)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"4840D6", "ABCDEF"}, addresses)
}

func TestFile_Msgpack(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, FormatMsgpack, true, testLogger())
	require.NoError(t, err)

	require.NoError(t, f.Write(context.Background(), []snapshot.Record{positionRecord()}))
	require.NoError(t, f.Write(context.Background(), []snapshot.Record{positionRecord()}))
	require.NoError(t, f.Close())

	files, err := filepath.Glob(filepath.Join(dir, "tracks_*.msgpack"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	count := 0
	for {
		var r snapshot.Record
		if err := dec.Decode(&r); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		assert.Equal(t, "4840D6", r.Address)
		assert.Equal(t, 450.0, *r.GroundSpeed)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestFile_WriteAfterClose(t *testing.T) {
	f, err := NewFile(t.TempDir(), FormatJSON, true, testLogger())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Error(t, f.Write(context.Background(), []snapshot.Record{positionRecord()}))
}

func TestTransmissionType(t *testing.T) {
	onGround := positionRecord()
	onGround.OnGround = true

	velocityOnly := snapshot.Record{GroundSpeed: f64(120)}
	identOnly := snapshot.Record{Callsign: str("KLM123")}

	tests := []struct {
		name string
		r    snapshot.Record
		want int
	}{
		{name: "airborne position", r: positionRecord(), want: TransmissionAirborne},
		{name: "surface position", r: onGround, want: TransmissionSurface},
		{name: "velocity", r: velocityOnly, want: TransmissionVelocity},
		{name: "identification", r: identOnly, want: TransmissionIDCategory},
		{name: "nothing else", r: snapshot.Record{Squawk: str("1200")}, want: TransmissionSurveillance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transmissionType(&tt.r))
		})
	}
}

func TestBaseStation_Write(t *testing.T) {
	var buf bytes.Buffer
	b := NewBaseStation(&buf, testLogger())
	b.now = func() time.Time { return t0.Add(time.Second) }

	assert.Equal(t, "basestation", b.Name())
	require.NoError(t, b.Write(context.Background(), []snapshot.Record{positionRecord()}))

	line := strings.TrimSuffix(buf.String(), "\n")
	fields := strings.Split(line, ",")
	require.Len(t, fields, 22)

	assert.Equal(t, "MSG", fields[0])
	assert.Equal(t, "3", fields[1])
	assert.Equal(t, "4840D6", fields[4])
	assert.Equal(t, "2024/05/01", fields[6])
	assert.Equal(t, "12:00:03.250", fields[7])
	assert.Equal(t, "12:00:04.250", fields[9])
	assert.Equal(t, "KLM123", fields[10])
	assert.Equal(t, "38000", fields[11])
	assert.Equal(t, "450", fields[12])
	assert.Equal(t, "270", fields[13])
	assert.Equal(t, "52.30861", fields[14])
	assert.Equal(t, "4.76391", fields[15])
	assert.Equal(t, "-1024", fields[16])
	assert.Equal(t, "7700", fields[17])
	assert.Equal(t, "-1", fields[19], "emergency squawk")
	assert.Equal(t, "0", fields[21])
}

func TestBaseStation_MetricRecord(t *testing.T) {
	r := positionRecord()
	r.Altitude = f64(38000 * 0.3048)
	r.AltitudeUnit = "meters"
	r.VerticalRate = f64(-1024 * 0.3048 / 60)
	r.VerticalRateUnit = "m/s"
	r.GroundSpeed = f64(450 * 1.852)
	r.SpeedUnit = "kmh"
	r.Squawk = nil

	b := NewBaseStation(io.Discard, testLogger())
	fields := strings.Split(b.formatCSV(&r, t0), ",")
	require.Len(t, fields, 22)

	assert.Equal(t, "38000", fields[11])
	assert.Equal(t, "450", fields[12])
	assert.Equal(t, "-1024", fields[16])
	assert.Equal(t, "", fields[17])
	assert.Equal(t, "0", fields[19])
}

func TestBaseStation_MultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	b := NewBaseStation(&buf, testLogger())

	records := []snapshot.Record{
		positionRecord(),
		{Address: "ABCDEF", Callsign: str("TEST1"), Observed: t0},
	}
	require.NoError(t, b.Write(context.Background(), records))
	require.NoError(t, b.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "MSG,3,1,1,4840D6,1,"))
	assert.True(t, strings.HasPrefix(lines[1], "MSG,1,1,1,ABCDEF,1,"))
}

var (
	_ Sink = (*File)(nil)
	_ Sink = (*BaseStation)(nil)
)
