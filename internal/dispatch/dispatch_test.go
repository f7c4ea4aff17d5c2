package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rodge1109/pagebot/internal/models"
	"github.com/rodge1109/pagebot/internal/session"
	"github.com/rodge1109/pagebot/internal/testutil"
)

const (
	testPageID = "page1"
	testSender = "sender1"
)

var testNow = time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)

type stubProfiles struct{}

func (stubProfiles) Profile(_ context.Context, _, _ string) models.Profile {
	return models.Profile{FullName: "Jane Doe"}
}

type harness struct {
	dispatcher *Dispatcher
	transport  *testutil.FakeTransport
	persister  *testutil.FakePersister
	sms        *testutil.FakeSMS
	sessions   *session.MemoryStore
	config     *testutil.FakeConfig
	now        time.Time
}

func newHarness(config *testutil.FakeConfig) *harness {
	if config.Page == nil {
		config.Page = &models.PageConfig{
			PageID:          testPageID,
			PageToken:       "tok",
			KeywordsSheetID: "kw",
			BookingSheetID:  "bk",
		}
	}
	h := &harness{
		transport: &testutil.FakeTransport{},
		persister: &testutil.FakePersister{},
		sms:       &testutil.FakeSMS{},
		sessions:  session.NewMemoryStore(),
		config:    config,
		now:       testNow,
	}
	h.dispatcher = New(h.sessions, config, h.transport, h.sms, &testutil.FakeGeocoder{}, h.persister, stubProfiles{}, Options{
		Clock:    func() time.Time { return h.now },
		RandIntN: func(int) int { return 0 },
	})
	return h
}

func (h *harness) text(text string) {
	h.dispatcher.Dispatch(context.Background(), models.Event{
		PageID: testPageID, SenderID: testSender, Kind: models.EventText, Text: text,
	})
}

func (h *harness) postback(title, payload string) {
	h.dispatcher.Dispatch(context.Background(), models.Event{
		PageID: testPageID, SenderID: testSender, Kind: models.EventPostback, Text: title, Payload: payload,
	})
}

// lastMessage returns the most recent non-typing send.
func (h *harness) lastMessage(t *testing.T) testutil.Sent {
	t.Helper()
	msgs := h.transport.Messages()
	if len(msgs) == 0 {
		t.Fatal("expected at least one outbound message")
	}
	return msgs[len(msgs)-1]
}

func TestKeywordMatchRepliesAndResetsMisses(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Rules: []models.KeywordRule{
		{Keywords: "price, rates", Replies: "Rooms start at P1500."},
	}})

	h.text("gibberish one")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "didn't understand") {
		t.Errorf("expected miss apology, got %q", got.Text)
	}

	h.text("what are your rates?")
	if got := h.lastMessage(t); got.Text != "Rooms start at P1500." {
		t.Errorf("expected keyword reply, got %q", got.Text)
	}

	// The match reset the streak: next misses count from one again
	h.text("gibberish two")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "didn't understand") {
		t.Errorf("expected apology after reset, got %q", got.Text)
	}
}

func TestMissEscalationHandoffThenSilence(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Rules: []models.KeywordRule{
		{Keywords: "price", Replies: "P1500"},
	}})

	h.text("blargh one")
	h.text("blargh two")
	msgs := h.transport.Messages()
	for _, m := range msgs {
		if !strings.Contains(m.Text, "didn't understand") {
			t.Errorf("early misses should apologize, got %q", m.Text)
		}
	}

	h.text("blargh three")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "admin will respond") {
		t.Errorf("third miss should hand off, got %q", got.Text)
	}

	before := len(h.transport.Messages())
	h.text("blargh four")
	h.text("blargh five")
	if after := len(h.transport.Messages()); after != before {
		t.Errorf("misses past the handoff must be silent, got %d new sends", after-before)
	}

	// A match ends the silence and resets the streak
	h.text("price?")
	if got := h.lastMessage(t); got.Text != "P1500" {
		t.Errorf("expected keyword reply after silence, got %q", got.Text)
	}
	h.text("blargh again")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "didn't understand") {
		t.Errorf("expected apology on fresh streak, got %q", got.Text)
	}
}

func TestGreetingOncePerDay(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Rules: []models.KeywordRule{
		{Keywords: "welcome", Replies: "Hello! How can we help?"},
		{Keywords: "price", Replies: "P1500"},
	}})

	h.text("price please")
	if got := h.lastMessage(t); got.Text != "Hello! How can we help?" {
		t.Errorf("first contact should greet, got %q", got.Text)
	}

	// Second message within 24h skips the greeting
	h.text("price please")
	if got := h.lastMessage(t); got.Text != "P1500" {
		t.Errorf("expected keyword reply on second contact, got %q", got.Text)
	}

	// A day later the greeting fires again
	h.now = h.now.Add(25 * time.Hour)
	h.text("price please")
	if got := h.lastMessage(t); got.Text != "Hello! How can we help?" {
		t.Errorf("expected fresh greeting after 24h, got %q", got.Text)
	}
}

func TestBookingTriggerAndCompletionSideEffects(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Steps: []models.StepDefinition{
		{FieldKey: "name", Prompt: "What is your name?", Type: models.StepText},
		{FieldKey: "mobile", Prompt: "What is your contact number?", Type: models.StepMobile},
	}})
	h.sessions.MarkGreeted(testSender, testNow) // skip the greeting guard

	h.text("I want to book")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "ready to proceed") {
		t.Fatalf("expected booking confirmation, got %q", got.Text)
	}

	h.text("yes")
	h.text("Jane")
	h.text("09171234567")

	if got := h.lastMessage(t); !strings.Contains(got.Text, "BOOKING RECEIVED!") {
		t.Fatalf("expected summary, got %q", got.Text)
	}
	if len(h.persister.Orders) != 1 {
		t.Fatalf("expected one saved order, got %d", len(h.persister.Orders))
	}
	if h.persister.Orders[0].Answers["name"] != "Jane" {
		t.Errorf("unexpected saved answers %+v", h.persister.Orders[0].Answers)
	}
	texts := h.sms.Texts["09171234567"]
	if len(texts) != 1 || !strings.Contains(texts[0], "Booking Alert!") {
		t.Errorf("expected booking SMS to the normalized number, got %+v", h.sms.Texts)
	}
}

func TestBookingCancelMidInterview(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{
		Steps: []models.StepDefinition{{FieldKey: "name", Prompt: "What is your name?", Type: models.StepText}},
		Rules: []models.KeywordRule{{Keywords: "price", Replies: "P1500"}},
	})
	h.sessions.MarkGreeted(testSender, testNow)

	h.text("order")
	h.text("yes")
	h.text("cancel")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "Booking cancelled") {
		t.Fatalf("expected cancellation, got %q", got.Text)
	}
	if len(h.persister.Orders) != 0 {
		t.Error("cancelled booking must not persist")
	}

	// After cancelling, dispatch is fresh: keywords work again
	h.text("price")
	if got := h.lastMessage(t); got.Text != "P1500" {
		t.Errorf("expected keyword reply after cancel, got %q", got.Text)
	}
}

func TestBookingClosedWithoutSteps(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{})
	h.sessions.MarkGreeted(testSender, testNow)

	h.text("book")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "not available") {
		t.Errorf("expected booking-closed reply, got %q", got.Text)
	}
}

func TestBookingConfirmationViaPostbacks(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Steps: []models.StepDefinition{
		{FieldKey: "name", Prompt: "What is your name?", Type: models.StepText},
	}})
	h.sessions.MarkGreeted(testSender, testNow)

	h.text("order")
	h.postback("NO, Cancel", "BOOKING_NO")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "Booking cancelled") {
		t.Fatalf("expected cancellation via postback, got %q", got.Text)
	}

	h.text("order")
	h.postback("YES, Continue", "BOOKING_YES")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "What is your name?") {
		t.Errorf("expected first step after YES postback, got %q", got.Text)
	}
}

func TestReplayedConfirmationIgnoredMidInterview(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Steps: []models.StepDefinition{
		{FieldKey: "name", Prompt: "What is your name?", Type: models.StepText},
		{FieldKey: "mobile", Prompt: "What is your contact number?", Type: models.StepMobile},
	}})
	h.sessions.MarkGreeted(testSender, testNow)

	h.text("order")
	h.text("yes")

	// Tapping the old confirmation button again must not be stored as
	// the current step's answer.
	before := len(h.transport.Messages())
	h.postback("YES, Continue", "BOOKING_YES")
	if after := len(h.transport.Messages()); after != before {
		t.Errorf("stale confirmation tap must be silent, got %d new sends", after-before)
	}
	s, ok := h.sessions.Get(testSender)
	if !ok || s.StepIndex != 1 {
		t.Fatalf("expected interview still at step 1, got %+v", s)
	}
	if _, answered := s.Answers["name"]; answered {
		t.Errorf("stale tap was stored as an answer: %+v", s.Answers)
	}

	h.text("Jane")
	h.text("09171234567")
	if len(h.persister.Orders) != 1 || h.persister.Orders[0].Answers["name"] != "Jane" {
		t.Errorf("unexpected saved answers %+v", h.persister.Orders)
	}
}

func TestChoiceAnswerPayloadUnderscores(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Steps: []models.StepDefinition{
		{
			FieldKey: "room",
			Prompt:   "Pick a room:",
			Type:     models.StepChoice,
			Choices:  []models.Choice{{Label: "Deluxe Twin", Value: "Deluxe Twin"}},
		},
		{FieldKey: "name", Prompt: "What is your name?", Type: models.StepText},
	}})
	h.sessions.MarkGreeted(testSender, testNow)

	h.text("order")
	h.text("yes")
	// Payload underscores decode back to spaces
	h.postback("Deluxe Twin", "BOOKING_ANSWER_Deluxe_Twin")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "What is your name?") {
		t.Fatalf("expected next step, got %q", got.Text)
	}

	h.text("Jane")
	if len(h.persister.Orders) != 1 || h.persister.Orders[0].Answers["room"] != "Deluxe Twin" {
		t.Errorf("unexpected saved answers %+v", h.persister.Orders)
	}
}

func TestEmergencyRequestsLocationThenAlertsOnce(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Lines: []models.Hotline{
		{Type: models.HotlineEmergency, Name: "Rescue", Number: "0917000001"},
	}})

	h.text("help")
	last := h.lastMessage(t)
	if len(last.Buttons) != 1 || last.Buttons[0].Payload != "HELP_SHARE_LOCATION" {
		t.Fatalf("expected share-location request, got %+v", last)
	}

	// Next text is consumed as the address, keywords do not run
	h.text("Makati City near the green mall")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "sent to 1 emergency contact(s)") {
		t.Fatalf("expected alert confirmation, got %q", got.Text)
	}
	if n := len(h.sms.Texts["0917000001"]); n != 1 {
		t.Fatalf("expected exactly one alert SMS, got %d", n)
	}
	if len(h.persister.Helps) != 1 {
		t.Errorf("expected one help audit record, got %d", len(h.persister.Helps))
	}

	// Pending state is consumed: another text flows normally again
	h.text("hello there")
	if n := len(h.sms.Texts["0917000001"]); n != 1 {
		t.Errorf("follow-up text must not re-alert, got %d SMS", n)
	}
}

func TestEmergencyShortAddressKeepsWaiting(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Lines: []models.Hotline{
		{Type: models.HotlineEmergency, Name: "Rescue", Number: "0917000001"},
	}})

	h.text("sos")
	h.text("ab")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "at least 3 characters") {
		t.Fatalf("expected short-address re-prompt, got %q", got.Text)
	}
	if len(h.sms.Texts) != 0 {
		t.Error("no alert may fire on a rejected address")
	}

	h.text("Makati City")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "emergency contact(s)") {
		t.Errorf("expected alert after valid address, got %q", got.Text)
	}
}

func TestEmergencyWithFreshCachedLocationAlertsImmediately(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Lines: []models.Hotline{
		{Type: models.HotlineEmergency, Name: "Rescue", Number: "0917000001"},
	}})
	h.sessions.PutLocation(testSender, models.Location{
		Address: "Cebu City", StoredAt: testNow.Add(-10 * time.Minute),
	})

	h.text("emergency")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "emergency contact(s)") {
		t.Errorf("expected immediate alert from cached location, got %q", got.Text)
	}
	body := h.sms.Texts["0917000001"][0]
	if !strings.Contains(body, "Cebu City") {
		t.Errorf("expected cached address in alert, got %q", body)
	}
}

func TestLocationAttachmentOutsideHelpSavesQuietly(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{})
	h.dispatcher.geocoder = &testutil.FakeGeocoder{Address: "Resolved Address"}

	h.dispatcher.Dispatch(context.Background(), models.Event{
		PageID: testPageID, SenderID: testSender, Kind: models.EventLocation,
		Coords: &models.Coordinates{Lat: 10.3, Long: 123.9},
	})

	if got := h.lastMessage(t); !strings.Contains(got.Text, "Location saved!") ||
		!strings.Contains(got.Text, "Resolved Address") {
		t.Errorf("expected save confirmation, got %q", got.Text)
	}
	if _, ok := h.sessions.Location(testSender, testNow); !ok {
		t.Error("expected location cached")
	}
}

func TestLocationAttachmentDuringHelpAlerts(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Lines: []models.Hotline{
		{Type: models.HotlineEmergency, Name: "Rescue", Number: "0917000001"},
	}})

	h.text("help")
	h.dispatcher.Dispatch(context.Background(), models.Event{
		PageID: testPageID, SenderID: testSender, Kind: models.EventLocation,
		Coords: &models.Coordinates{Lat: 14.55, Long: 121.02},
	})

	if got := h.lastMessage(t); !strings.Contains(got.Text, "emergency contact(s)") {
		t.Fatalf("expected alert, got %q", got.Text)
	}
	body := h.sms.Texts["0917000001"][0]
	if !strings.Contains(body, "maps.google.com") {
		t.Errorf("expected maps link in alert, got %q", body)
	}
}

func TestBillInquirySession(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Bill: &models.BillRecord{
		Conscode: "777", TotalAmount: "450.00", Consumption: "18",
		DueDate: "June 30, 2025", DisconDate: "July 5, 2025",
	}})
	h.sessions.MarkGreeted(testSender, testNow)

	h.text("bill")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "Conscode") {
		t.Fatalf("expected conscode prompt, got %q", got.Text)
	}

	h.text("777")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "450.00") {
		t.Errorf("expected bill amount, got %q", got.Text)
	}
	if _, ok := h.sessions.Get(testSender); ok {
		t.Error("bill session must close after one answer")
	}
}

func TestRefreshDataInvalidatesKeywordCache(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{})
	h.text("refresh data")
	if h.config.Refreshes != 1 {
		t.Errorf("expected one forced refresh, got %d", h.config.Refreshes)
	}
	if got := h.lastMessage(t); !strings.Contains(got.Text, "refreshed") {
		t.Errorf("expected refresh confirmation, got %q", got.Text)
	}
}

func TestUnknownPostbackFallsBackToText(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Rules: []models.KeywordRule{
		{Keywords: "promo", Replies: "This month's promo is 20% off."},
	}})
	h.sessions.MarkGreeted(testSender, testNow)

	h.postback("Promo", "BTN_PROMO_0")
	if got := h.lastMessage(t); got.Text != "This month's promo is 20% off." {
		t.Errorf("expected title matched as text, got %q", got.Text)
	}
}

func TestCommentReplyAndDedup(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Rules: []models.KeywordRule{
		{Keywords: "price", Replies: "P1500 per night."},
	}})

	comment := models.Event{
		PageID: testPageID, SenderID: "visitor", Kind: models.EventComment,
		Text: "how much is the price?", CommentID: "c1", PostID: "p1",
	}
	h.dispatcher.Dispatch(context.Background(), comment)

	sent := h.transport.Sent()
	if len(sent) != 1 || sent[0].Kind != "comment" || sent[0].Text != "P1500 per night." {
		t.Fatalf("expected one comment reply, got %+v", sent)
	}

	// Redelivery of the same comment is ignored
	h.dispatcher.Dispatch(context.Background(), comment)
	if len(h.transport.Sent()) != 1 {
		t.Error("duplicate comment must not be answered twice")
	}

	// Unmatched comments get the generic thanks
	h.dispatcher.Dispatch(context.Background(), models.Event{
		PageID: testPageID, SenderID: "visitor", Kind: models.EventComment,
		Text: "nice photo", CommentID: "c2",
	})
	sent = h.transport.Sent()
	if sent[len(sent)-1].Text != commentThanksText {
		t.Errorf("expected generic thanks, got %q", sent[len(sent)-1].Text)
	}

	// The page's own comments are skipped
	h.dispatcher.Dispatch(context.Background(), models.Event{
		PageID: testPageID, SenderID: testPageID, Kind: models.EventComment,
		Text: "price", CommentID: "c3",
	})
	if len(h.transport.Sent()) != 2 {
		t.Error("page-authored comment must be ignored")
	}

	if n := h.dispatcher.SweepComments(); n != 2 {
		t.Errorf("SweepComments() = %d, want 2", n)
	}
}

func TestSenderShardStableAndBounded(t *testing.T) {
	senders := []string{"u1", "u2", "1234567890123456", "", "sender-with-long-id"}
	for _, id := range senders {
		shard := senderShard(id)
		if shard >= senderLockShards {
			t.Errorf("senderShard(%q) = %d, out of pool bounds", id, shard)
		}
		if again := senderShard(id); again != shard {
			t.Errorf("senderShard(%q) unstable: %d then %d", id, shard, again)
		}
	}
}

func TestMalformedEventDropped(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{})
	h.dispatcher.Dispatch(context.Background(), models.Event{PageID: testPageID, Kind: models.EventText, Text: "hi"})
	h.dispatcher.Dispatch(context.Background(), models.Event{SenderID: testSender, Kind: models.EventText, Text: "hi"})
	if len(h.transport.Sent()) != 0 {
		t.Errorf("malformed events must be dropped, got %+v", h.transport.Sent())
	}
}

func TestIncompletePageConfigApologizes(t *testing.T) {
	h := newHarness(&testutil.FakeConfig{Page: &models.PageConfig{
		PageID: testPageID, PageToken: "tok", // sheet IDs missing
	}})
	h.text("hello")
	if got := h.lastMessage(t); !strings.Contains(got.Text, "configuration error") {
		t.Errorf("expected config apology, got %q", got.Text)
	}
}
