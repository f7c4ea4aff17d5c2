package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rodge1109/pagebot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanOrder scans an OrderRecord from sql.Rows.
func scanOrder(rows *sql.Rows) (models.OrderRecord, error) {
	var rec models.OrderRecord
	var answersJSON string
	if err := rows.Scan(&rec.ID, &rec.SenderID, &answersJSON, &rec.SavedAt); err != nil {
		return rec, fmt.Errorf("scan order failed: %w", err)
	}
	if err := json.Unmarshal([]byte(answersJSON), &rec.Answers); err != nil {
		return rec, fmt.Errorf("decode order answers failed: %w", err)
	}
	return rec, nil
}

// scanHelpRequest scans a HelpRequest from sql.Rows.
func scanHelpRequest(rows *sql.Rows) (models.HelpRequest, error) {
	var req models.HelpRequest
	var name, address, mapsLink sql.NullString
	var lat, long sql.NullFloat64
	err := rows.Scan(&req.ID, &req.SenderID, &name, &address, &lat, &long, &mapsLink, &req.LoggedAt)
	if err != nil {
		return req, fmt.Errorf("scan help request failed: %w", err)
	}
	req.SenderName = name.String
	req.Address = address.String
	req.MapsLink = mapsLink.String
	if lat.Valid && long.Valid {
		req.Coords = &models.Coordinates{Lat: lat.Float64, Long: long.Float64}
	}
	return req, nil
}
