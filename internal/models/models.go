// Package models defines the core data structures for pagebot.
//
// It includes inbound webhook events, outbound replies, booking step
// definitions and keyword rules, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// EventKind identifies what an inbound webhook event carries.
type EventKind string

const (
	// EventText is a plain text message (includes quick-reply payloads).
	EventText EventKind = "text"
	// EventPostback is a button press carrying a postback payload.
	EventPostback EventKind = "postback"
	// EventLocation is a structured location attachment.
	EventLocation EventKind = "location"
	// EventComment is a comment on a page feed post.
	EventComment EventKind = "comment"
)

// Error variables for better error handling and testability
var (
	ErrEmptySender     = errors.New("sender ID cannot be empty")
	ErrInvalidKind     = errors.New("invalid event kind")
	ErrMissingPageID   = errors.New("page ID cannot be empty")
	ErrNoBookingConfig = errors.New("no booking steps configured")
)

// Coordinates is a latitude/longitude pair from a location attachment.
type Coordinates struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Event is one inbound webhook delivery unit, already verified upstream.
type Event struct {
	PageID   string       `json:"page_id"`
	SenderID string       `json:"sender_id"`
	Kind     EventKind    `json:"kind"`
	Text     string       `json:"text,omitempty"`    // message text or postback title
	Payload  string       `json:"payload,omitempty"` // postback/quick-reply payload
	Coords   *Coordinates `json:"coords,omitempty"`

	// Comment events only.
	CommentID string `json:"comment_id,omitempty"`
	PostID    string `json:"post_id,omitempty"`
}

// Validate checks the minimal fields the dispatcher relies on.
func (e *Event) Validate() error {
	if e.PageID == "" {
		return ErrMissingPageID
	}
	if e.SenderID == "" {
		return ErrEmptySender
	}
	switch e.Kind {
	case EventText, EventPostback, EventLocation, EventComment:
		return nil
	default:
		return ErrInvalidKind
	}
}

// Location is a sender's last known whereabouts, cached with a timestamp
// so stale entries can be swept.
type Location struct {
	Address  string       `json:"address,omitempty"`
	Coords   *Coordinates `json:"coords,omitempty"`
	Manual   bool         `json:"manual,omitempty"` // typed in, not shared as an attachment
	StoredAt time.Time    `json:"stored_at"`
}
