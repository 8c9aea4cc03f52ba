// Package storage persists track records to PostgreSQL and reads recorded
// raw frames back for replay.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaSQL embed.FS

// Defaults for Config
const (
	DefaultPort         = 5432
	DefaultSSLMode      = "disable"
	DefaultMaxOpenConns = 10
	DefaultMaxIdleConns = 2
	DefaultPingTimeout  = 5 * time.Second
)

// Config describes a PostgreSQL connection. When URL is set it is used as is
// and the discrete fields are ignored.
type Config struct {
	URL          string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN builds the lib/pq connection string
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}

	params := map[string]string{
		"sslmode": c.SSLMode,
	}
	if params["sslmode"] == "" {
		params["sslmode"] = DefaultSSLMode
	}
	if c.Host != "" {
		params["host"] = c.Host
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	params["port"] = strconv.Itoa(port)
	if c.User != "" {
		params["user"] = c.User
	}
	if c.Password != "" {
		params["password"] = c.Password
	}
	if c.Database != "" {
		params["dbname"] = c.Database
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteValue(params[k]))
	}
	return strings.Join(parts, " ")
}

// quoteValue quotes a connection string value when lib/pq needs it to
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// DB wraps a database connection with the queries adsbtrack needs
type DB struct {
	*sql.DB
	logger *logrus.Logger
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, cfg Config, logger *logrus.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenConns
	}
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdleConns
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.Database,
	}).Info("Connected to PostgreSQL")

	return &DB{DB: sqlDB, logger: logger}, nil
}

// InitSchema creates the tables if they do not exist
func (db *DB) InitSchema(ctx context.Context) error {
	schema, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}
