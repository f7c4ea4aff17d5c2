// Package store provides persistence backends for pagebot records.
//
// This file implements a simple in-memory store used in tests.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rodge1109/pagebot/internal/models"
)

// InMemoryStore keeps records in process memory. It is safe for
// concurrent use and intended for tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	orders   []models.OrderRecord
	requests []models.HelpRequest
	senders  map[string]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{senders: make(map[string]time.Time)}
}

func (s *InMemoryStore) SaveOrder(_ context.Context, rec models.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.orders = append(s.orders, rec)
	return nil
}

func (s *InMemoryStore) LogHelpRequest(_ context.Context, req models.HelpRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	s.requests = append(s.requests, req)
	return nil
}

func (s *InMemoryStore) LogSender(_ context.Context, senderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[senderID] = at
	return nil
}

func (s *InMemoryStore) Orders(_ context.Context) ([]models.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.OrderRecord, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

func (s *InMemoryStore) HelpRequests(_ context.Context) ([]models.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.HelpRequest, len(s.requests))
	copy(out, s.requests)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
