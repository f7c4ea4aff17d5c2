// Package dispatch routes inbound webhook events to the conversational
// flows. Routing is an ordered list of guard predicates evaluated
// top-down per event; see the decision table on Dispatcher.handleText.
package dispatch

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/rodge1109/pagebot/internal/flow"
	"github.com/rodge1109/pagebot/internal/models"
	"github.com/rodge1109/pagebot/internal/session"
)

// Transport sends outbound actions to the messaging platform.
type Transport interface {
	SendText(ctx context.Context, pageToken, recipient, text string) error
	SendButtons(ctx context.Context, pageToken, recipient, text string, buttons []models.Button) error
	SendCarousel(ctx context.Context, pageToken, recipient string, elements []models.CarouselElement) error
	SendMedia(ctx context.Context, pageToken, recipient, url string, kind models.MediaKind) error
	SendTyping(ctx context.Context, pageToken, recipient string) error
	ReplyToComment(ctx context.Context, pageToken, commentID, message string) error
}

// ConfigSource supplies the externally managed routing and rule tables.
// Implementations cache reads; forceRefresh invalidates the keyword cache.
type ConfigSource interface {
	PageConfig(ctx context.Context, pageID string) (*models.PageConfig, error)
	Keywords(ctx context.Context, sheetID string, forceRefresh bool) ([]models.KeywordRule, error)
	BookingSteps(ctx context.Context, sheetID string) ([]models.StepDefinition, error)
	Hotlines(ctx context.Context, sheetID, hotlineType string) ([]models.Hotline, error)
	LookupBill(ctx context.Context, conscode string) (*models.BillRecord, error)
}

// Persister is the append-only record sink.
type Persister interface {
	SaveOrder(ctx context.Context, rec models.OrderRecord) error
	LogHelpRequest(ctx context.Context, req models.HelpRequest) error
	LogSender(ctx context.Context, senderID string, at time.Time) error
}

// Geocoder resolves coordinates to a human-readable address. An empty
// string with nil error means the lookup had no answer.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, long float64) (string, error)
}

// FallbackGenerator phrases the reply for the first unmatched inputs of a
// miss streak. Optional; the static apology is used when absent or failing.
type FallbackGenerator interface {
	FallbackReply(ctx context.Context, input string) (string, error)
}

const (
	defaultFallbackText = "Sorry, I didn't understand that. Can you please rephrase?"
	handoffText         = "It seems I can't help with that right now. Our admin will respond to you when available. Thank you for your patience!"
	configErrorText     = "Sorry, configuration error. Please contact support."
	bookingClosedText   = "Sorry, booking is not available at the moment."
	commentThanksText   = "Thanks for your comment! 😊"
)

// handoffMissCount is the miss streak length that triggers the one
// human-handoff message; longer streaks go silent until a match resets.
const handoffMissCount = 3

// Options tunes dispatcher behavior.
type Options struct {
	// TypingDelay is how long sends lag behind the typing indicator.
	// Zero sends immediately (tests).
	TypingDelay time.Duration
	// Clock supplies the current time; defaults to time.Now.
	Clock func() time.Time
	// RandIntN picks reply alternatives; defaults to math/rand/v2.
	RandIntN func(n int) int
	// Fallback optionally phrases miss replies.
	Fallback FallbackGenerator
}

// Dispatcher owns per-event routing and the escalation state around it.
type Dispatcher struct {
	sessions  session.Store
	config    ConfigSource
	transport Transport
	sms       flow.SMSSender
	geocoder  Geocoder
	persister Persister
	booking   *flow.Booking
	bills     *flow.BillInquiry
	emergency *flow.Emergency
	fallback  FallbackGenerator
	clock     func() time.Time
	randIntN  func(n int) int
	delay     time.Duration

	// Per-sender serialization: two events for one sender never
	// interleave, even when the platform delivers them concurrently.
	// Senders map onto a fixed shard pool so the lock table stays
	// bounded regardless of how many one-off senders write in.
	senderLocks [senderLockShards]sync.Mutex

	commentMu         sync.Mutex
	processedComments map[string]struct{}
}

// New wires a Dispatcher. sms may be nil when no gateway is configured;
// booking-completion SMS is skipped in that case.
func New(sessions session.Store, config ConfigSource, transport Transport, sms flow.SMSSender,
	geocoder Geocoder, persister Persister, profiles flow.ProfileResolver, opts Options) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RandIntN == nil {
		opts.RandIntN = defaultRandIntN
	}
	return &Dispatcher{
		sessions:          sessions,
		config:            config,
		transport:         transport,
		sms:               sms,
		geocoder:          geocoder,
		persister:         persister,
		booking:           flow.NewBooking(sessions, opts.Clock),
		bills:             flow.NewBillInquiry(config),
		emergency:         flow.NewEmergency(sessions, sms, profiles, persisterHelpLogger{persister}, opts.Clock),
		fallback:          opts.Fallback,
		clock:             opts.Clock,
		randIntN:          opts.RandIntN,
		delay:             opts.TypingDelay,
		processedComments: make(map[string]struct{}),
	}
}

// Dispatch routes one inbound event to completion. No error escapes: every
// failure is logged and the next event proceeds regardless.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Event) {
	if err := ev.Validate(); err != nil {
		slog.Warn("dispatch dropping malformed event", "error", err, "pageID", ev.PageID, "kind", ev.Kind)
		return
	}

	mu := d.lockSender(ev.SenderID)
	defer mu.Unlock()

	slog.Debug("dispatching event", "senderID", ev.SenderID, "kind", ev.Kind)

	switch ev.Kind {
	case models.EventComment:
		d.handleComment(ctx, ev)
	case models.EventPostback:
		d.handlePostback(ctx, ev)
	case models.EventLocation:
		d.handleLocation(ctx, ev)
	default:
		d.handleText(ctx, ev)
	}
}

// senderLockShards sizes the per-sender lock pool.
const senderLockShards = 256

// senderShard maps a sender ID onto its lock shard.
func senderShard(senderID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(senderID))
	return h.Sum32() % senderLockShards
}

// lockSender acquires the sender's shard lock.
func (d *Dispatcher) lockSender(senderID string) *sync.Mutex {
	mu := &d.senderLocks[senderShard(senderID)]
	mu.Lock()
	return mu
}

// deliver renders a reply through the transport. The typing indicator
// goes out immediately; the payload follows after the configured delay
// without gating the caller. Transport failures are logged only.
func (d *Dispatcher) deliver(ctx context.Context, pageToken, recipient string, r *models.Reply) {
	if r.IsEmpty() {
		return
	}

	if err := d.transport.SendTyping(ctx, pageToken, recipient); err != nil {
		slog.Debug("typing indicator failed", "recipient", recipient, "error", err)
	}

	// The send must outlive the webhook request.
	sendCtx := context.WithoutCancel(ctx)
	send := func() { d.send(sendCtx, pageToken, recipient, r) }
	if d.delay > 0 {
		time.AfterFunc(d.delay, send)
		return
	}
	send()
}

func (d *Dispatcher) send(ctx context.Context, pageToken, recipient string, r *models.Reply) {
	var err error
	switch {
	case len(r.Carousel) > 0:
		err = d.transport.SendCarousel(ctx, pageToken, recipient, r.Carousel)
	case len(r.Buttons) > 0:
		err = d.transport.SendButtons(ctx, pageToken, recipient, r.Text, r.Buttons)
	case r.Text != "":
		err = d.transport.SendText(ctx, pageToken, recipient, r.Text)
	}
	if err != nil {
		slog.Error("outbound send failed", "recipient", recipient, "error", err)
	}

	if r.Secondary != nil {
		d.send(ctx, pageToken, recipient, r.Secondary)
	}
	for _, m := range r.Media {
		if err := d.transport.SendMedia(ctx, pageToken, recipient, m.URL, m.Kind); err != nil {
			slog.Error("outbound media send failed", "recipient", recipient, "url", m.URL, "error", err)
		}
	}
}

// SweepComments clears the processed-comment dedup set. Run hourly.
func (d *Dispatcher) SweepComments() int {
	d.commentMu.Lock()
	defer d.commentMu.Unlock()
	n := len(d.processedComments)
	d.processedComments = make(map[string]struct{})
	return n
}

// persisterHelpLogger narrows the Persister for the emergency flow.
type persisterHelpLogger struct{ persister Persister }

func (p persisterHelpLogger) LogHelpRequest(ctx context.Context, req models.HelpRequest) error {
	return p.persister.LogHelpRequest(ctx, req)
}
