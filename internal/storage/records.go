package storage

import (
	"context"
	"fmt"

	"adsbtrack/internal/snapshot"

	"github.com/sirupsen/logrus"
)

const insertRecordSQL = `INSERT INTO aircraft_states (
	time, hex_ident, callsign, category, squawk,
	altitude, altitude_unit, altitude_gnss,
	latitude, longitude, position_method, position_time, on_ground,
	ground_speed, airspeed, airspeed_type, speed_unit, track,
	vertical_rate, vertical_rate_unit, vertical_rate_source,
	messages, first_seen, source
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
	$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24
)`

// recordArgs maps a record onto the insert statement's parameters
func recordArgs(r *snapshot.Record, source string) []any {
	return []any{
		r.Observed, r.Address, r.Callsign, nullString(r.Category), r.Squawk,
		r.Altitude, r.AltitudeUnit, r.AltitudeGNSS,
		r.Latitude, r.Longitude, nullString(r.PositionMethod), r.PositionAt, r.OnGround,
		r.GroundSpeed, r.Airspeed, nullString(r.AirspeedType), r.SpeedUnit, r.Heading,
		r.VerticalRate, r.VerticalRateUnit, nullString(r.VerticalRateSource),
		int64(r.Messages), r.FirstSeen, source,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// WriteRecords inserts a batch of records in one transaction
func (db *DB) WriteRecords(ctx context.Context, records []snapshot.Record, source string) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		if _, err := stmt.ExecContext(ctx, recordArgs(&records[i], source)...); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", records[i].Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// RecordWriter is a sink that stores records in aircraft_states
type RecordWriter struct {
	db     *DB
	source string
}

// NewRecordWriter tags every stored row with source
func NewRecordWriter(db *DB, source string) *RecordWriter {
	return &RecordWriter{db: db, source: source}
}

// Name identifies the sink in logs and metrics
func (w *RecordWriter) Name() string {
	return "postgres"
}

// Write stores the batch
func (w *RecordWriter) Write(ctx context.Context, records []snapshot.Record) error {
	if err := w.db.WriteRecords(ctx, records, w.source); err != nil {
		return err
	}
	w.db.logger.WithFields(logrus.Fields{
		"records": len(records),
		"source":  w.source,
	}).Debug("Stored records")
	return nil
}

// Close closes the database
func (w *RecordWriter) Close() error {
	return w.db.Close()
}
