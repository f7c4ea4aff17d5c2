package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rodge1109/pagebot/internal/flow"
	"github.com/rodge1109/pagebot/internal/models"
	"github.com/rodge1109/pagebot/internal/session"
)

// handlePostback routes button presses. Booking payloads feed the
// interview; the share-location payload opens text intake; anything else
// is treated as typed text so keyword rules apply to button titles.
func (d *Dispatcher) handlePostback(ctx context.Context, ev models.Event) {
	payload := ev.Payload

	switch {
	case payload == flow.PayloadBookingYes:
		if cfg := d.pageConfig(ctx, ev); cfg != nil {
			// A confirmation button stays tappable in chat history after
			// the interview starts; stale taps must not become answers.
			if s, ok := d.sessions.Get(ev.SenderID); ok && s.Kind == session.KindBooking && s.StepIndex > 0 {
				slog.Debug("ignoring stale booking confirmation", "senderID", ev.SenderID)
				return
			}
			reply, _ := d.booking.HandleText(ev.SenderID, "yes")
			d.deliver(ctx, cfg.PageToken, ev.SenderID, reply)
		}

	case payload == flow.PayloadBookingNo:
		if cfg := d.pageConfig(ctx, ev); cfg != nil {
			d.deliver(ctx, cfg.PageToken, ev.SenderID, d.booking.Cancel(ev.SenderID))
		}

	case strings.HasPrefix(payload, flow.PayloadAnswerPrefix):
		if cfg := d.pageConfig(ctx, ev); cfg != nil {
			raw := strings.TrimPrefix(payload, flow.PayloadAnswerPrefix)
			value := raw
			if raw != models.CustomDateChoice {
				value = strings.ReplaceAll(raw, "_", " ")
			}
			reply, done := d.booking.HandleChoice(ev.SenderID, value)
			if done != nil {
				d.completeBooking(ctx, cfg, done)
			}
			d.deliver(ctx, cfg.PageToken, ev.SenderID, reply)
		}

	case payload == flow.PayloadShareLocation:
		if cfg := d.pageConfig(ctx, ev); cfg != nil {
			slog.Info("sender chose to share location", "senderID", ev.SenderID)
			d.deliver(ctx, cfg.PageToken, ev.SenderID, d.emergency.LocationInstructions(ev.SenderID))
		}

	default:
		// Button titles behave like typed text for keyword matching.
		text := ev.Text
		if text == "" {
			text = payload
		}
		d.handleText(ctx, models.Event{
			PageID:   ev.PageID,
			SenderID: ev.SenderID,
			Kind:     models.EventText,
			Text:     text,
		})
	}
}

// handleLocation consumes a structured location attachment: cache it,
// resolve an address, and either satisfy a pending help request or
// confirm the save.
func (d *Dispatcher) handleLocation(ctx context.Context, ev models.Event) {
	if ev.Coords == nil {
		slog.Warn("location attachment without coordinates", "senderID", ev.SenderID)
		return
	}

	cfg := d.pageConfig(ctx, ev)
	if cfg == nil {
		return
	}

	address, err := d.geocoder.ReverseGeocode(ctx, ev.Coords.Lat, ev.Coords.Long)
	if err != nil {
		slog.Error("reverse geocoding failed", "senderID", ev.SenderID, "error", err)
		address = ""
	}

	loc := models.Location{Address: address, Coords: ev.Coords, StoredAt: d.clock()}
	d.sessions.PutLocation(ev.SenderID, loc)
	slog.Debug("location cached", "senderID", ev.SenderID, "hasAddress", address != "")

	if d.awaitingLocation(ev.SenderID) {
		if s, ok := d.sessions.Get(ev.SenderID); ok && s.Kind == session.KindAwaitingLocation {
			d.sessions.Delete(ev.SenderID)
		}
		d.deliver(ctx, cfg.PageToken, ev.SenderID, d.alert(ctx, cfg, ev.SenderID, &loc))
		return
	}

	d.deliver(ctx, cfg.PageToken, ev.SenderID, locationSavedReply(loc))
}
