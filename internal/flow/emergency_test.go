package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rodge1109/pagebot/internal/models"
	"github.com/rodge1109/pagebot/internal/session"
	"github.com/rodge1109/pagebot/internal/testutil"
)

type stubProfiles struct{ name string }

func (s stubProfiles) Profile(_ context.Context, _, _ string) models.Profile {
	if s.name == "" {
		return models.UnknownProfile()
	}
	return models.Profile{FullName: s.name}
}

func hotlines() []models.Hotline {
	return []models.Hotline{
		{Type: models.HotlineEmergency, Name: "Rescue", Number: "0917000001"},
		{Type: models.HotlineEmergency, Name: "Fire", Number: "0917000002"},
	}
}

func TestRequestLocationSetsPending(t *testing.T) {
	store := session.NewMemoryStore()
	e := NewEmergency(store, &testutil.FakeSMS{}, stubProfiles{}, &testutil.FakePersister{}, testClock)

	reply := e.RequestLocation("u1")
	if !store.PendingHelp("u1") {
		t.Error("expected pending help flag set")
	}
	if len(reply.Buttons) != 1 || reply.Buttons[0].Payload != PayloadShareLocation {
		t.Errorf("expected share-location button, got %+v", reply.Buttons)
	}
}

func TestAcceptTextRejectsShortInput(t *testing.T) {
	store := session.NewMemoryStore()
	e := NewEmergency(store, &testutil.FakeSMS{}, stubProfiles{}, &testutil.FakePersister{}, testClock)
	e.RequestLocation("u1")

	loc, reply := e.AcceptText("u1", "ab")
	if loc != nil {
		t.Fatal("expected short input rejected")
	}
	if !strings.Contains(reply.Text, "at least 3 characters") {
		t.Errorf("unexpected rejection text %q", reply.Text)
	}
	if !store.PendingHelp("u1") {
		t.Error("pending flag must survive a rejected answer")
	}

	loc, reply = e.AcceptText("u1", "Makati City")
	if loc == nil || reply != nil {
		t.Fatal("expected valid address accepted")
	}
	if !loc.Manual || loc.Address != "Makati City" {
		t.Errorf("unexpected location %+v", loc)
	}
	if _, ok := store.Location("u1", testClock()); !ok {
		t.Error("expected location cached")
	}
}

func TestAlertFansOutPerHotline(t *testing.T) {
	store := session.NewMemoryStore()
	sms := &testutil.FakeSMS{}
	logger := &testutil.FakePersister{}
	e := NewEmergency(store, sms, stubProfiles{name: "Jane Doe"}, logger, testClock)
	store.SetPendingHelp("u1")

	loc := &models.Location{
		Address: "Makati City",
		Coords:  &models.Coordinates{Lat: 14.55, Long: 121.02},
	}
	reply := e.Alert(context.Background(), "tok", "u1", hotlines(), loc)

	if store.PendingHelp("u1") {
		t.Error("expected pending flag cleared by alert")
	}
	if len(sms.Texts["0917000001"]) != 1 || len(sms.Texts["0917000002"]) != 1 {
		t.Fatalf("expected one SMS per hotline, got %+v", sms.Texts)
	}

	body := sms.Texts["0917000001"][0]
	if !strings.Contains(body, "HELP REQUEST ALERT") ||
		!strings.Contains(body, "From: Jane Doe") ||
		!strings.Contains(body, "Facebook ID: u1") {
		t.Errorf("unexpected alert body %q", body)
	}
	if !strings.Contains(body, "https://maps.google.com/?q=14.55,121.02") {
		t.Errorf("expected maps link in alert, got %q", body)
	}

	if !strings.Contains(reply.Text, "sent to 2 emergency contact(s)") {
		t.Errorf("unexpected confirmation %q", reply.Text)
	}

	if len(logger.Helps) != 1 {
		t.Fatalf("expected one audit record, got %d", len(logger.Helps))
	}
	if logger.Helps[0].Address != "Makati City" || logger.Helps[0].SenderName != "Jane Doe" {
		t.Errorf("unexpected audit record %+v", logger.Helps[0])
	}
}

func TestAlertPartialFailureStillConfirms(t *testing.T) {
	store := session.NewMemoryStore()
	sms := &testutil.FakeSMS{Fail: map[string]error{"0917000001": errors.New("gateway down")}}
	e := NewEmergency(store, sms, stubProfiles{}, &testutil.FakePersister{}, testClock)

	reply := e.Alert(context.Background(), "tok", "u1", hotlines(), nil)
	if !strings.Contains(reply.Text, "sent to 1 emergency contact(s)") {
		t.Errorf("expected partial success confirmation, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "❌ Rescue (failed)") || !strings.Contains(reply.Text, "✅ Fire") {
		t.Errorf("expected per-hotline results, got %q", reply.Text)
	}
}

func TestAlertAllFailed(t *testing.T) {
	store := session.NewMemoryStore()
	sms := &testutil.FakeSMS{Fail: map[string]error{
		"0917000001": errors.New("down"),
		"0917000002": errors.New("down"),
	}}
	e := NewEmergency(store, sms, stubProfiles{}, &testutil.FakePersister{}, testClock)

	reply := e.Alert(context.Background(), "tok", "u1", hotlines(), nil)
	if !strings.Contains(reply.Text, "Failed to send emergency alerts") {
		t.Errorf("expected failure message, got %q", reply.Text)
	}
}

func TestAlertWithoutHotlines(t *testing.T) {
	e := NewEmergency(session.NewMemoryStore(), &testutil.FakeSMS{}, stubProfiles{}, &testutil.FakePersister{}, testClock)
	reply := e.Alert(context.Background(), "tok", "u1", nil, nil)
	if !strings.Contains(reply.Text, "hotlines not configured") {
		t.Errorf("unexpected reply %q", reply.Text)
	}
}

func TestIsTrigger(t *testing.T) {
	for _, tok := range []string{"help", "emergency", "sos"} {
		if !IsTrigger(tok) {
			t.Errorf("IsTrigger(%q) = false", tok)
		}
	}
	if IsTrigger("helper") {
		t.Error("IsTrigger must match exact tokens only")
	}
}

func TestBillInquiryAnswer(t *testing.T) {
	cfg := &testutil.FakeConfig{Bill: &models.BillRecord{
		Conscode:    "12345",
		Consumption: "18",
		TotalAmount: "450.00",
		DueDate:     "June 30, 2025",
		DisconDate:  "July 5, 2025",
	}}
	bi := NewBillInquiry(cfg)

	if got := bi.Prompt(); !strings.Contains(got.Text, "Conscode") {
		t.Errorf("unexpected prompt %q", got.Text)
	}

	reply := bi.Answer(context.Background(), "u1", "12345")
	for _, want := range []string{"450.00", "18 cubic meter", "June 30, 2025", "July 5, 2025"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("expected %q in bill reply %q", want, reply.Text)
		}
	}

	miss := bi.Answer(context.Background(), "u1", "99999")
	if !strings.Contains(miss.Text, "couldn't find a record") {
		t.Errorf("unexpected miss reply %q", miss.Text)
	}
}
