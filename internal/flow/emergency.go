package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rodge1109/pagebot/internal/models"
	"github.com/rodge1109/pagebot/internal/session"
)

// TriggerTokens fire the emergency workflow on exact match.
var TriggerTokens = []string{"help", "emergency", "sos"}

// MinLocationTextLen is the shortest freeform text accepted as an address.
const MinLocationTextLen = 3

// SMSSender delivers one notification SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, number, text string) error
}

// ProfileResolver resolves a sender ID to display identity. Lookups that
// fail resolve to the unknown-profile fallback, never an error.
type ProfileResolver interface {
	Profile(ctx context.Context, pageToken, senderID string) models.Profile
}

// HelpLogger appends a fired alert to the audit sink.
type HelpLogger interface {
	LogHelpRequest(ctx context.Context, req models.HelpRequest) error
}

// User-facing copy for the emergency workflow.
const (
	shareLocationText = "📍 To help you better, we need your location.\n\nPlease share your location using the button below:"
	pendingHelpText   = "📍 Please share your location so we can send help!"
	locationHowToText = "📍 To send help, please share your location:\n\nOPTION 1 - Automatic (Recommended):\nTap the attachment icon near the message box, select 'Location', and share.\n\nOPTION 2 - Manual:\nIf you don't see an attachment button, simply type your address below.\n\nExample: 'Manila, Philippines' or 'Makati City, BGC'"
	shortLocationText = "Please enter a valid location or address (at least 3 characters)."
	noHotlinesText    = "Emergency hotlines not configured. Please contact support directly."
	allFailedText     = "Failed to send emergency alerts. Please try contacting support directly."
)

// IsTrigger reports whether the lowercased input is an emergency trigger.
func IsTrigger(input string) bool {
	for _, tok := range TriggerTokens {
		if input == tok {
			return true
		}
	}
	return false
}

// Emergency gates help requests on the presence of a location and fans the
// alert out to every configured emergency contact.
type Emergency struct {
	sessions session.Store
	sms      SMSSender
	profiles ProfileResolver
	logger   HelpLogger
	clock    func() time.Time
	tz       *time.Location
}

// NewEmergency creates the emergency workflow. Alert timestamps render in
// Asia/Manila when the zone database has it.
func NewEmergency(sessions session.Store, sms SMSSender, profiles ProfileResolver, logger HelpLogger, clock func() time.Time) *Emergency {
	if clock == nil {
		clock = time.Now
	}
	tz, err := time.LoadLocation("Asia/Manila")
	if err != nil {
		slog.Warn("emergency flow falling back to UTC timestamps", "error", err)
		tz = time.UTC
	}
	return &Emergency{sessions: sessions, sms: sms, profiles: profiles, logger: logger, clock: clock, tz: tz}
}

// RequestLocation marks the sender pending and asks for a location. The
// very next inbound event from the sender is consumed as the answer.
func (e *Emergency) RequestLocation(senderID string) *models.Reply {
	e.sessions.SetPendingHelp(senderID)
	slog.Info("help request pending location", "senderID", senderID)
	return &models.Reply{
		Text: shareLocationText,
		Buttons: []models.Button{
			{Type: models.ButtonPostback, Title: "📍 Share My Location", Payload: PayloadShareLocation},
		},
	}
}

// PendingText is the acknowledgment sent alongside a location request
// raised from a keyword rule's special action.
func (e *Emergency) PendingText() *models.Reply {
	return models.TextReply(pendingHelpText)
}

// LocationInstructions handles the share-location button press: the sender
// gets sharing instructions and an awaiting-location session so plain text
// is accepted as the answer.
func (e *Emergency) LocationInstructions(senderID string) *models.Reply {
	if _, ok := e.sessions.Get(senderID); !ok {
		e.sessions.Put(senderID, session.NewAwaitingLocation(e.clock()))
	}
	return models.TextReply(locationHowToText)
}

// AcceptText validates freeform text as a location answer. Too-short input
// re-prompts without clearing the pending flag.
func (e *Emergency) AcceptText(senderID, input string) (*models.Location, *models.Reply) {
	text := strings.TrimSpace(input)
	if len(text) < MinLocationTextLen {
		return nil, models.TextReply(shortLocationText)
	}
	loc := models.Location{Address: text, Manual: true, StoredAt: e.clock()}
	e.sessions.PutLocation(senderID, loc)
	return &loc, nil
}

// Alert composes and delivers the emergency SMS to every hotline contact.
// Delivery is attempted independently per contact; the user-visible
// confirmation reports the success count and fails only when it is zero.
func (e *Emergency) Alert(ctx context.Context, pageToken, senderID string, hotlines []models.Hotline, loc *models.Location) *models.Reply {
	e.sessions.ClearPendingHelp(senderID)

	if len(hotlines) == 0 {
		slog.Error("no emergency hotlines configured", "senderID", senderID)
		return models.TextReply(noHotlinesText)
	}
	if e.sms == nil {
		slog.Error("no SMS gateway configured for alerts", "senderID", senderID)
		return models.TextReply(allFailedText)
	}

	profile := e.profiles.Profile(ctx, pageToken, senderID)
	message := e.composeAlert(senderID, profile, loc)

	sent := 0
	var results []string
	for _, hotline := range hotlines {
		if err := e.sms.SendSMS(ctx, hotline.Number, message); err != nil {
			slog.Error("help alert SMS failed", "senderID", senderID, "hotline", hotline.Name, "error", err)
			results = append(results, fmt.Sprintf("❌ %s (failed)", hotline.Name))
			continue
		}
		sent++
		results = append(results, fmt.Sprintf("✅ %s", hotline.Name))
	}

	e.logAlert(ctx, senderID, profile, loc)

	if sent == 0 {
		return models.TextReply(allFailedText)
	}
	return models.TextReply(fmt.Sprintf(
		"🚨 Help alert sent to %d emergency contact(s)!\n\n%s\n\nSomeone will assist you shortly.",
		sent, strings.Join(results, "\n")))
}

// composeAlert builds the SMS body: identity, location details if any,
// and the local timestamp.
func (e *Emergency) composeAlert(senderID string, profile models.Profile, loc *models.Location) string {
	var sb strings.Builder
	sb.WriteString("🚨 HELP REQUEST ALERT 🚨\n\n")
	fmt.Fprintf(&sb, "From: %s\n", profile.FullName)
	fmt.Fprintf(&sb, "Facebook ID: %s\n", senderID)

	if loc != nil {
		sb.WriteString("\nLocation:\n")
		if loc.Address != "" {
			sb.WriteString(loc.Address + "\n")
		}
		if loc.Coords != nil {
			fmt.Fprintf(&sb, "Coordinates: %s, %s\n", formatCoord(loc.Coords.Lat), formatCoord(loc.Coords.Long))
			sb.WriteString("Maps: " + MapsLink(loc.Coords) + "\n")
		}
	} else {
		sb.WriteString("\nLocation: Not shared\n")
	}

	fmt.Fprintf(&sb, "\nTime: %s", e.clock().In(e.tz).Format("January 2, 2006 3:04 PM"))
	return sb.String()
}

// logAlert appends the audit record; failures are logged, never surfaced.
func (e *Emergency) logAlert(ctx context.Context, senderID string, profile models.Profile, loc *models.Location) {
	req := models.HelpRequest{
		SenderID:   senderID,
		SenderName: profile.FullName,
		Address:    "Not provided",
		LoggedAt:   e.clock(),
	}
	if loc != nil {
		if loc.Address != "" {
			req.Address = loc.Address
		}
		if loc.Coords != nil {
			req.Coords = loc.Coords
			req.MapsLink = MapsLink(loc.Coords)
		}
	}
	if err := e.logger.LogHelpRequest(ctx, req); err != nil {
		slog.Error("help request logging failed", "senderID", senderID, "error", err)
	}
}

// MapsLink renders the shareable map link for a coordinate pair.
func MapsLink(c *models.Coordinates) string {
	return "https://maps.google.com/?q=" + formatCoord(c.Lat) + "," + formatCoord(c.Long)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
