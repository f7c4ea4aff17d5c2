package models

import "time"

// OrderRecord is a completed booking's answer set, appended to the
// persistence sink once per completion.
type OrderRecord struct {
	ID       string            `json:"id"`
	SenderID string            `json:"sender_id"`
	Answers  map[string]string `json:"answers"`
	SavedAt  time.Time         `json:"saved_at"`
}

// HelpRequest is the audit record of one fired emergency alert.
type HelpRequest struct {
	ID         string       `json:"id"`
	SenderID   string       `json:"sender_id"`
	SenderName string       `json:"sender_name"`
	Address    string       `json:"address"`
	Coords     *Coordinates `json:"coords,omitempty"`
	MapsLink   string       `json:"maps_link,omitempty"`
	LoggedAt   time.Time    `json:"logged_at"`
}

// Profile is the resolved display identity of a sender.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
}

// UnknownProfile is the fallback when the profile lookup fails.
func UnknownProfile() Profile {
	return Profile{FirstName: "Unknown", FullName: "Unknown User"}
}
