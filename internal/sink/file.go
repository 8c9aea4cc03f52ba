package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"adsbtrack/internal/logging"
	"adsbtrack/internal/snapshot"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// Format is the encoding of record files
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatMsgpack:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json or msgpack)", s)
	}
}

func (f Format) ext() string {
	if f == FormatMsgpack {
		return "msgpack"
	}
	return "jsonl"
}

// File appends records to daily files: one JSON object per line, or a
// stream of msgpack maps.
type File struct {
	format  Format
	rotator *logging.Rotator
	logger  *logrus.Logger
	mu      sync.Mutex
	buf     bytes.Buffer
}

// NewFile opens today's record file in dir
func NewFile(dir string, format Format, utc bool, logger *logrus.Logger) (*File, error) {
	rotator, err := logging.NewRotator(logging.Options{
		Dir:    dir,
		Prefix: "tracks",
		Ext:    format.ext(),
		UTC:    utc,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &File{format: format, rotator: rotator, logger: logger}, nil
}

// Name implements Sink
func (f *File) Name() string {
	return "file"
}

// Rotator returns the underlying rotating file
func (f *File) Rotator() *logging.Rotator {
	return f.rotator
}

// Write encodes the batch and appends it in a single write
func (f *File) Write(_ context.Context, records []snapshot.Record) error {
	if len(records) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf.Reset()
	switch f.format {
	case FormatMsgpack:
		enc := msgpack.NewEncoder(&f.buf)
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return fmt.Errorf("failed to encode record %s: %w", records[i].Address, err)
			}
		}
	default:
		enc := json.NewEncoder(&f.buf)
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return fmt.Errorf("failed to encode record %s: %w", records[i].Address, err)
			}
		}
	}

	if _, err := f.rotator.Write(f.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}

	f.logger.WithFields(logrus.Fields{
		"records": len(records),
		"bytes":   f.buf.Len(),
	}).Debug("Wrote records")
	return nil
}

// Close closes the record file
func (f *File) Close() error {
	return f.rotator.Close()
}
