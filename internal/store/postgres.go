// Package store provides persistence backends for pagebot records.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/rodge1109/pagebot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveOrder(ctx context.Context, rec models.OrderRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal order answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (id, sender_id, answers, saved_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.SenderID, string(answers), rec.SavedAt)
	if err != nil {
		slog.Error("PostgresStore SaveOrder failed", "error", err, "sender", rec.SenderID)
		return fmt.Errorf("failed to insert order for %s: %w", rec.SenderID, err)
	}
	slog.Debug("PostgresStore SaveOrder succeeded", "id", rec.ID, "sender", rec.SenderID)
	return nil
}

func (s *PostgresStore) LogHelpRequest(ctx context.Context, req models.HelpRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	var lat, long interface{}
	if req.Coords != nil {
		lat, long = req.Coords.Lat, req.Coords.Long
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO help_requests (id, sender_id, sender_name, address, latitude, longitude, maps_link, logged_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.SenderID, nilIfEmpty(req.SenderName), nilIfEmpty(req.Address), lat, long, nilIfEmpty(req.MapsLink), req.LoggedAt)
	if err != nil {
		slog.Error("PostgresStore LogHelpRequest failed", "error", err, "sender", req.SenderID)
		return fmt.Errorf("failed to insert help request for %s: %w", req.SenderID, err)
	}
	slog.Debug("PostgresStore LogHelpRequest succeeded", "id", req.ID, "sender", req.SenderID)
	return nil
}

func (s *PostgresStore) LogSender(ctx context.Context, senderID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sender_log (sender_id, first_seen, last_seen) VALUES ($1, $2, $3)
		 ON CONFLICT (sender_id) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
		senderID, at, at)
	if err != nil {
		slog.Error("PostgresStore LogSender failed", "error", err, "sender", senderID)
		return fmt.Errorf("failed to log sender %s: %w", senderID, err)
	}
	return nil
}

func (s *PostgresStore) Orders(ctx context.Context) ([]models.OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, answers, saved_at FROM orders ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()
	var out []models.OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HelpRequests(ctx context.Context) ([]models.HelpRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, sender_name, address, latitude, longitude, maps_link, logged_at
		 FROM help_requests ORDER BY logged_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query help requests: %w", err)
	}
	defer rows.Close()
	var out []models.HelpRequest
	for rows.Next() {
		req, err := scanHelpRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
