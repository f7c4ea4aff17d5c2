// Package session holds per-sender conversational state: the active flow
// session plus the adjacent process-wide tracking maps (miss counters,
// greeted set, location cache, pending-help set).
//
// All state lives behind the Store interface so the dispatcher can be
// tested against an in-memory backend, and every eviction policy is an
// explicit sweep taking the caller's clock.
package session

import (
	"time"

	"github.com/rodge1109/pagebot/internal/models"
)

// Kind is the variant of an active session.
type Kind string

const (
	// KindBooking is the step-by-step booking interview.
	KindBooking Kind = "booking"
	// KindBillInquiry waits for the next message as an account code.
	KindBillInquiry Kind = "bill_inquiry"
	// KindAwaitingLocation waits for the next message as a location.
	KindAwaitingLocation Kind = "awaiting_location"
)

// Default lifetimes for session state and the tracking maps.
const (
	IdleTimeout = 30 * time.Minute
	LocationTTL = time.Hour
	GreetTTL    = 24 * time.Hour
	MissTTL     = 24 * time.Hour
)

// Session is the state of one sender's active flow. It is exclusively
// owned by the Store; nothing else holds it across event boundaries.
type Session struct {
	Kind      Kind
	StartedAt time.Time

	// Booking only. StepIndex 0 means the yes/no confirmation has not
	// been answered yet; len(Steps) means every answer is stored.
	Steps              []models.StepDefinition
	StepIndex          int
	Answers            map[string]string
	AwaitingCustomDate bool
	Completed          bool
	MobileNumber       string
}

// NewBooking creates a booking session at the confirmation step.
func NewBooking(steps []models.StepDefinition, now time.Time) *Session {
	return &Session{
		Kind:      KindBooking,
		StartedAt: now,
		Steps:     steps,
		Answers:   make(map[string]string),
	}
}

// NewBillInquiry creates a session waiting for an account code.
func NewBillInquiry(now time.Time) *Session {
	return &Session{Kind: KindBillInquiry, StartedAt: now}
}

// NewAwaitingLocation creates a session waiting for a location answer.
func NewAwaitingLocation(now time.Time) *Session {
	return &Session{Kind: KindAwaitingLocation, StartedAt: now}
}

// Store is the per-sender state abstraction. Implementations must be safe
// for concurrent use by the event path and the sweep timers.
type Store interface {
	// Get returns the sender's active session, if any.
	Get(senderID string) (*Session, bool)
	// Put installs or replaces the sender's active session.
	Put(senderID string, s *Session)
	// Delete removes the sender's active session.
	Delete(senderID string)
	// SweepIdle evicts sessions idle past maxIdle and returns the count.
	SweepIdle(now time.Time, maxIdle time.Duration) int

	// IncrementMiss bumps and returns the sender's consecutive-miss count.
	IncrementMiss(senderID string, now time.Time) int
	// ResetMisses clears the sender's miss streak.
	ResetMisses(senderID string)
	// SweepMisses evicts counters untouched past maxIdle.
	SweepMisses(now time.Time, maxIdle time.Duration) int

	// LastGreeted returns when the sender was last greeted.
	LastGreeted(senderID string) (time.Time, bool)
	// MarkGreeted records that the sender was greeted now.
	MarkGreeted(senderID string, now time.Time)
	// SweepGreeted evicts greet marks older than ttl.
	SweepGreeted(now time.Time, ttl time.Duration) int

	// Location returns the sender's cached location if still fresh.
	Location(senderID string, now time.Time) (*models.Location, bool)
	// PutLocation caches the sender's location.
	PutLocation(senderID string, loc models.Location)
	// SweepLocations evicts cached locations older than ttl.
	SweepLocations(now time.Time, ttl time.Duration) int

	// PendingHelp reports whether the sender has an unanswered help request.
	PendingHelp(senderID string) bool
	// SetPendingHelp flags the sender as waiting to provide a location.
	SetPendingHelp(senderID string)
	// ClearPendingHelp removes the flag.
	ClearPendingHelp(senderID string)
}
