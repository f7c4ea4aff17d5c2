package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rodge1109/pagebot/internal/flow"
	"github.com/rodge1109/pagebot/internal/models"
	"github.com/rodge1109/pagebot/internal/session"
)

// handleText runs the ordered guard list for a text event:
//
//	1. missing page config        -> apology, stop
//	2. pending location intake    -> consume text as the location answer
//	3. "refresh data"             -> invalidate keyword cache
//	4. emergency trigger          -> alert now or request location
//	5. active booking session     -> cancel / custom date / step intake
//	6. active bill session        -> consume text as the account code
//	7. first contact in 24h       -> welcome keyword row
//	8. "bill"                     -> open bill session
//	9. "order"/"book"             -> start booking
//	10. keyword match / miss      -> auto-reply or escalation
//
// Each guard either consumes the event or passes it down; nothing below a
// consuming guard runs.
func (d *Dispatcher) handleText(ctx context.Context, ev models.Event) {
	lowered := strings.ToLower(strings.TrimSpace(ev.Text))

	cfg := d.pageConfig(ctx, ev)
	if cfg == nil {
		return
	}

	// 2. Pending-location intake outranks every other guard: once help
	// was requested, the very next message is the location answer.
	if d.awaitingLocation(ev.SenderID) {
		d.consumeLocationText(ctx, cfg, ev)
		return
	}

	// 3. Manual cache refresh.
	if lowered == "refresh data" {
		if _, err := d.config.Keywords(ctx, cfg.KeywordsSheetID, true); err != nil {
			slog.Error("keyword refresh failed", "sheetID", cfg.KeywordsSheetID, "error", err)
		}
		d.deliver(ctx, cfg.PageToken, ev.SenderID, models.TextReply("Keywords refreshed!"))
		return
	}

	// 4. Emergency trigger.
	if flow.IsTrigger(lowered) {
		d.handleEmergency(ctx, cfg, ev.SenderID)
		return
	}

	// 5/6. Active session for this sender.
	if s, ok := d.sessions.Get(ev.SenderID); ok {
		switch s.Kind {
		case session.KindBooking:
			d.continueBooking(ctx, cfg, ev, lowered)
			return
		case session.KindBillInquiry:
			d.sessions.Delete(ev.SenderID)
			d.deliver(ctx, cfg.PageToken, ev.SenderID, d.bills.Answer(ctx, ev.SenderID, strings.TrimSpace(ev.Text)))
			return
		}
	}

	// Fresh dispatch from here on: audit the sender.
	if err := d.persister.LogSender(ctx, ev.SenderID, d.clock()); err != nil {
		slog.Error("sender audit log failed", "senderID", ev.SenderID, "error", err)
	}

	// 7. First contact (or first in 24h) gets the welcome row.
	if d.greet(ctx, cfg, ev.SenderID) {
		return
	}

	// 8. Bill inquiry trigger.
	if lowered == "bill" {
		d.sessions.Put(ev.SenderID, session.NewBillInquiry(d.clock()))
		d.deliver(ctx, cfg.PageToken, ev.SenderID, d.bills.Prompt())
		return
	}

	// 9. Booking trigger.
	if strings.Contains(lowered, "order") || strings.Contains(lowered, "book") {
		d.startBooking(ctx, cfg, ev.SenderID)
		return
	}

	// 10. Keyword table.
	d.matchKeywords(ctx, cfg, ev.SenderID, lowered)
}

// pageConfig loads and validates the routing row for the event's page.
// A row that exists but misses its sheet configuration yields a generic
// apology; a fully absent row can only be logged.
func (d *Dispatcher) pageConfig(ctx context.Context, ev models.Event) *models.PageConfig {
	cfg, err := d.config.PageConfig(ctx, ev.PageID)
	if err != nil || cfg == nil {
		slog.Error("no routing config for page", "pageID", ev.PageID, "error", err)
		return nil
	}
	if !cfg.Valid() {
		slog.Error("incomplete routing config for page", "pageID", ev.PageID)
		if cfg.PageToken != "" {
			d.deliver(ctx, cfg.PageToken, ev.SenderID, models.TextReply(configErrorText))
		}
		return nil
	}
	return cfg
}

// awaitingLocation reports whether the sender's next message must be
// consumed as a location answer.
func (d *Dispatcher) awaitingLocation(senderID string) bool {
	if d.sessions.PendingHelp(senderID) {
		return true
	}
	s, ok := d.sessions.Get(senderID)
	return ok && s.Kind == session.KindAwaitingLocation
}

// consumeLocationText treats freeform text as the awaited location and
// fires the alert. Too-short input re-prompts and keeps waiting.
func (d *Dispatcher) consumeLocationText(ctx context.Context, cfg *models.PageConfig, ev models.Event) {
	loc, retry := d.emergency.AcceptText(ev.SenderID, ev.Text)
	if retry != nil {
		d.deliver(ctx, cfg.PageToken, ev.SenderID, retry)
		return
	}
	d.sessions.Delete(ev.SenderID)
	d.deliver(ctx, cfg.PageToken, ev.SenderID, d.alert(ctx, cfg, ev.SenderID, loc))
}

// handleEmergency fires immediately on a fresh cached location, otherwise
// marks the sender pending and asks for one.
func (d *Dispatcher) handleEmergency(ctx context.Context, cfg *models.PageConfig, senderID string) {
	slog.Info("emergency help request", "senderID", senderID)
	if loc, ok := d.sessions.Location(senderID, d.clock()); ok {
		d.deliver(ctx, cfg.PageToken, senderID, d.alert(ctx, cfg, senderID, loc))
		return
	}
	d.deliver(ctx, cfg.PageToken, senderID, d.emergency.RequestLocation(senderID))
}

// alert loads the page's emergency contacts and delegates to the flow.
func (d *Dispatcher) alert(ctx context.Context, cfg *models.PageConfig, senderID string, loc *models.Location) *models.Reply {
	hotlines, err := d.config.Hotlines(ctx, cfg.KeywordsSheetID, models.HotlineEmergency)
	if err != nil {
		slog.Error("hotline lookup failed", "sheetID", cfg.KeywordsSheetID, "error", err)
	}
	return d.emergency.Alert(ctx, cfg.PageToken, senderID, hotlines, loc)
}

// continueBooking feeds one text event into the active interview.
func (d *Dispatcher) continueBooking(ctx context.Context, cfg *models.PageConfig, ev models.Event, lowered string) {
	if flow.IsCancelToken(lowered) {
		d.deliver(ctx, cfg.PageToken, ev.SenderID, d.booking.Cancel(ev.SenderID))
		return
	}
	reply, done := d.booking.HandleText(ev.SenderID, ev.Text)
	if done != nil {
		d.completeBooking(ctx, cfg, done)
	}
	d.deliver(ctx, cfg.PageToken, ev.SenderID, reply)
}

// completeBooking fires the one-shot completion side effects. Both are
// fire-and-forget: failures are logged, never retried, never surfaced
// beyond the summary already queued.
func (d *Dispatcher) completeBooking(ctx context.Context, cfg *models.PageConfig, done *flow.Completion) {
	rec := models.OrderRecord{
		SenderID: done.SenderID,
		Answers:  done.Answers,
		SavedAt:  d.clock(),
	}
	if err := d.persister.SaveOrder(ctx, rec); err != nil {
		slog.Error("order persistence failed", "senderID", done.SenderID, "error", err)
	}

	if done.MobileNumber != "" && d.sms != nil {
		if err := d.sms.SendSMS(ctx, done.MobileNumber, flow.BookingSMS(done)); err != nil {
			slog.Error("booking confirmation SMS failed", "senderID", done.SenderID, "error", err)
		}
	}
}

// startBooking opens the interview, or reports booking unavailable when
// the step table is empty.
func (d *Dispatcher) startBooking(ctx context.Context, cfg *models.PageConfig, senderID string) {
	steps, err := d.config.BookingSteps(ctx, cfg.BookingSheetID)
	if err != nil {
		slog.Error("booking config load failed", "sheetID", cfg.BookingSheetID, "error", err)
	}
	if len(steps) == 0 {
		d.deliver(ctx, cfg.PageToken, senderID, models.TextReply(bookingClosedText))
		return
	}
	d.deliver(ctx, cfg.PageToken, senderID, d.booking.Start(senderID, steps))
}

// greet answers the reserved "welcome" row for a sender's first message in
// 24 hours. Returns true when the greeting consumed the event.
func (d *Dispatcher) greet(ctx context.Context, cfg *models.PageConfig, senderID string) bool {
	now := d.clock()
	if last, ok := d.sessions.LastGreeted(senderID); ok && now.Sub(last) <= session.GreetTTL {
		return false
	}
	d.sessions.MarkGreeted(senderID, now)

	rules, err := d.config.Keywords(ctx, cfg.KeywordsSheetID, false)
	if err != nil {
		slog.Error("keyword load failed", "sheetID", cfg.KeywordsSheetID, "error", err)
		return false
	}
	for _, rule := range rules {
		if !rule.HasKeyword("welcome") {
			continue
		}
		reply := d.composeRuleReply(ctx, cfg, senderID, rule)
		if reply.IsEmpty() {
			return false
		}
		slog.Info("greeting sender", "senderID", senderID)
		d.deliver(ctx, cfg.PageToken, senderID, reply)
		return true
	}
	return false
}

// matchKeywords answers the first matching rule, or walks the miss
// escalation: apology on early misses, one handoff on the third, then
// silence until a match resets the streak.
func (d *Dispatcher) matchKeywords(ctx context.Context, cfg *models.PageConfig, senderID, lowered string) {
	rules, err := d.config.Keywords(ctx, cfg.KeywordsSheetID, false)
	if err != nil {
		slog.Error("keyword load failed", "sheetID", cfg.KeywordsSheetID, "error", err)
	}

	for _, rule := range rules {
		if !rule.Matches(lowered) {
			continue
		}
		d.sessions.ResetMisses(senderID)
		d.deliver(ctx, cfg.PageToken, senderID, d.composeRuleReply(ctx, cfg, senderID, rule))
		return
	}

	count := d.sessions.IncrementMiss(senderID, d.clock())
	slog.Debug("keyword miss", "senderID", senderID, "count", count)
	switch {
	case count == handoffMissCount:
		d.deliver(ctx, cfg.PageToken, senderID, models.TextReply(handoffText))
	case count > handoffMissCount:
		// Escalating silence: no automated reply until a match resets.
		slog.Debug("silent mode", "senderID", senderID, "count", count)
	default:
		d.deliver(ctx, cfg.PageToken, senderID, models.TextReply(d.fallbackText(ctx, lowered)))
	}
}

// fallbackText phrases the early-miss apology, via the optional generator
// when configured.
func (d *Dispatcher) fallbackText(ctx context.Context, input string) string {
	if d.fallback == nil {
		return defaultFallbackText
	}
	text, err := d.fallback.FallbackReply(ctx, input)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			slog.Warn("fallback generation failed", "error", err)
		}
		return defaultFallbackText
	}
	return text
}

// locationSavedReply confirms a location share outside any help request.
func locationSavedReply(loc models.Location) *models.Reply {
	var sb strings.Builder
	sb.WriteString("📍 Location saved!\n\n")
	if loc.Address != "" {
		fmt.Fprintf(&sb, "Address: %s\n\n", loc.Address)
	}
	if loc.Coords != nil {
		fmt.Fprintf(&sb, "Coordinates: %v, %v\n", loc.Coords.Lat, loc.Coords.Long)
		sb.WriteString("Google Maps: " + flow.MapsLink(loc.Coords))
	}
	return models.TextReply(strings.TrimRight(sb.String(), "\n"))
}
