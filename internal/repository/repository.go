// Package repository is the persistence gateway of §4.10: a thin façade
// over Postgres (raw database/sql + lib/pq, no ORM) providing
// strongly-typed read/write for groups, group configs, triggers, time
// rules, deals and deal history, plus fire-and-forget bronze emission.
// Every repository here follows the teacher's
// internal/repository/blacklist_repository.go shape: plain SQL strings,
// RowsAffected checks after UPDATE/DELETE, sentinel errors translated
// from sql.ErrNoRows and unique-violation text matching.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"otcbot/internal/config"
)

// Open establishes the Postgres connection pool backing every repository
// in this package, mirroring the teacher's cmd/server/main.go
// initDatabase (same DSN shape, same pool tuning, same startup ping).
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}

	return db, nil
}

// isUniqueViolation reports whether err looks like a Postgres unique
// constraint violation, matched the same way the teacher's
// isBlacklistUniqueViolation does (error text, not a typed pq.Error
// import, to stay resilient to driver wrapping).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "23505")
}
