package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkin.engine/internal/config"
	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// NewInstrumentedConnection opens a pool whose queries are traced through
// OpenTelemetry, and verifies the connection.
func NewInstrumentedConnection(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	// otelsql.Open wraps the driver to intercept queries and create spans
	db, err := otelsql.Open("pgx", cfg.DSN(),
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	return db, nil
}
