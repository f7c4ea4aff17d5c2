// Package store provides persistence backends for pagebot records.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/rodge1109/pagebot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveOrder(ctx context.Context, rec models.OrderRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal order answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (id, sender_id, answers, saved_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.SenderID, string(answers), rec.SavedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveOrder failed", "error", err, "sender", rec.SenderID)
		return fmt.Errorf("failed to insert order for %s: %w", rec.SenderID, err)
	}
	slog.Debug("SQLiteStore SaveOrder succeeded", "id", rec.ID, "sender", rec.SenderID)
	return nil
}

func (s *SQLiteStore) LogHelpRequest(ctx context.Context, req models.HelpRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	var lat, long interface{}
	if req.Coords != nil {
		lat, long = req.Coords.Lat, req.Coords.Long
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO help_requests (id, sender_id, sender_name, address, latitude, longitude, maps_link, logged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.SenderID, nilIfEmpty(req.SenderName), nilIfEmpty(req.Address), lat, long, nilIfEmpty(req.MapsLink), req.LoggedAt)
	if err != nil {
		slog.Error("SQLiteStore LogHelpRequest failed", "error", err, "sender", req.SenderID)
		return fmt.Errorf("failed to insert help request for %s: %w", req.SenderID, err)
	}
	slog.Debug("SQLiteStore LogHelpRequest succeeded", "id", req.ID, "sender", req.SenderID)
	return nil
}

func (s *SQLiteStore) LogSender(ctx context.Context, senderID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sender_log (sender_id, first_seen, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT(sender_id) DO UPDATE SET last_seen = excluded.last_seen`,
		senderID, at, at)
	if err != nil {
		slog.Error("SQLiteStore LogSender failed", "error", err, "sender", senderID)
		return fmt.Errorf("failed to log sender %s: %w", senderID, err)
	}
	return nil
}

func (s *SQLiteStore) Orders(ctx context.Context) ([]models.OrderRecord, error) {
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

func (s *SQLiteStore) HelpRequests(ctx context.Context) ([]models.HelpRequest, error) {
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
