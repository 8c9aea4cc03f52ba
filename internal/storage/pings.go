package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultPingQuery reads every recorded frame in arrival order
const DefaultPingQuery = "SELECT timestamp, data FROM pings ORDER BY timestamp ASC"

// DefaultFetchSize is the number of rows fetched per round trip
const DefaultFetchSize = 10000

const cursorName = "adsbtrack_replay"

// Ping is one recorded raw frame
type Ping struct {
	Timestamp time.Time
	Data      []byte
}

// PingCursor streams the rows of a ping query through a server-side cursor
// so replays of large tables do not load everything at once.
type PingCursor struct {
	tx        *sql.Tx
	fetchSize int
	batch     []Ping
	next      int
	done      bool
}

// Pings opens a cursor over query, which must return (timestamp, data) rows
func (db *DB) Pings(ctx context.Context, query string, fetchSize int) (*PingCursor, error) {
	if query == "" {
		query = DefaultPingQuery
	}
	if fetchSize <= 0 {
		fetchSize = DefaultFetchSize
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin replay transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, declareCursorSQL(query)); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to declare replay cursor: %w", err)
	}

	db.logger.WithField("query", query).Info("Opened replay cursor")
	return &PingCursor{tx: tx, fetchSize: fetchSize}, nil
}

func declareCursorSQL(query string) string {
	return fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", cursorName, query)
}

func fetchSQL(n int) string {
	return fmt.Sprintf("FETCH FORWARD %d FROM %s", n, cursorName)
}

// Next returns the next ping, or io.EOF once the query is exhausted
func (c *PingCursor) Next(ctx context.Context) (Ping, error) {
	if c.next >= len(c.batch) {
		if c.done {
			return Ping{}, io.EOF
		}
		if err := c.fetch(ctx); err != nil {
			return Ping{}, err
		}
		if len(c.batch) == 0 {
			return Ping{}, io.EOF
		}
	}
	p := c.batch[c.next]
	c.next++
	return p, nil
}

func (c *PingCursor) fetch(ctx context.Context) error {
	rows, err := c.tx.QueryContext(ctx, fetchSQL(c.fetchSize))
	if err != nil {
		return fmt.Errorf("failed to fetch pings: %w", err)
	}
	defer rows.Close()

	c.batch = c.batch[:0]
	c.next = 0
	for rows.Next() {
		var p Ping
		if err := rows.Scan(&p.Timestamp, &p.Data); err != nil {
			return fmt.Errorf("failed to scan ping: %w", err)
		}
		c.batch = append(c.batch, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read pings: %w", err)
	}
	// a short batch is the last one
	c.done = len(c.batch) < c.fetchSize
	return nil
}

// Close ends the replay transaction
func (c *PingCursor) Close() error {
	if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to close replay cursor: %w", err)
	}
	return nil
}
