// Package sink writes snapshot records to their destinations.
package sink

import (
	"context"

	"adsbtrack/internal/snapshot"
)

// Sink receives batches of records. Write may be retried with the same
// batch after an error.
type Sink interface {
	Name() string
	Write(ctx context.Context, records []snapshot.Record) error
	Close() error
}
