// Package store provides persistence backends for pagebot records.
//
// It includes SQLite and PostgreSQL stores for confirmed bookings, help
// request audit logs, and sender activity, plus an in-memory store used
// in tests. Any of them can serve as the dispatcher's record sink when a
// spreadsheet is not the system of record.
package store

import (
	"context"
	"time"

	"github.com/rodge1109/pagebot/internal/models"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	// DSN is the data source name: a file path for SQLite, a connection
	// string for PostgreSQL.
	DSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithDSN sets the data source name for the store.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// Store persists booking and emergency records.
type Store interface {
	SaveOrder(ctx context.Context, rec models.OrderRecord) error
	LogHelpRequest(ctx context.Context, req models.HelpRequest) error
	LogSender(ctx context.Context, senderID string, at time.Time) error

	// Orders returns saved bookings, newest first.
	Orders(ctx context.Context) ([]models.OrderRecord, error)
	// HelpRequests returns logged emergency alerts, newest first.
	HelpRequests(ctx context.Context) ([]models.HelpRequest, error)

	Close() error
}
