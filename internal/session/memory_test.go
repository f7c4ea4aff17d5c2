package session

import (
	"testing"
	"time"

	"github.com/rodge1109/pagebot/internal/models"
)

var t0 = time.Date(2025, time.June, 15, 8, 0, 0, 0, time.UTC)

func TestSessionLifecycle(t *testing.T) {
	store := NewMemoryStore()

	if _, ok := store.Get("u1"); ok {
		t.Fatal("expected no session for fresh sender")
	}

	s := NewBillInquiry(t0)
	store.Put("u1", s)

	got, ok := store.Get("u1")
	if !ok || got.Kind != KindBillInquiry {
		t.Fatalf("Get() = %+v, %v", got, ok)
	}

	store.Delete("u1")
	if _, ok := store.Get("u1"); ok {
		t.Error("expected session removed after Delete")
	}
}

func TestSweepIdleEvictsOnlyStale(t *testing.T) {
	store := NewMemoryStore()
	store.Put("old", NewBillInquiry(t0))
	store.Put("fresh", NewBillInquiry(t0.Add(25*time.Minute)))

	now := t0.Add(31 * time.Minute)
	if n := store.SweepIdle(now, IdleTimeout); n != 1 {
		t.Errorf("SweepIdle() = %d, want 1", n)
	}
	if _, ok := store.Get("old"); ok {
		t.Error("expected stale session evicted")
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Error("expected fresh session kept")
	}
}

func TestMissCounter(t *testing.T) {
	store := NewMemoryStore()

	for want := 1; want <= 4; want++ {
		if got := store.IncrementMiss("u1", t0); got != want {
			t.Errorf("IncrementMiss() = %d, want %d", got, want)
		}
	}

	store.ResetMisses("u1")
	if got := store.IncrementMiss("u1", t0); got != 1 {
		t.Errorf("IncrementMiss() after reset = %d, want 1", got)
	}
}

func TestSweepMisses(t *testing.T) {
	store := NewMemoryStore()
	store.IncrementMiss("stale", t0)
	store.IncrementMiss("active", t0.Add(23*time.Hour))

	now := t0.Add(25 * time.Hour)
	if n := store.SweepMisses(now, MissTTL); n != 1 {
		t.Errorf("SweepMisses() = %d, want 1", n)
	}
	// The swept sender starts a new streak
	if got := store.IncrementMiss("stale", now); got != 1 {
		t.Errorf("IncrementMiss() after sweep = %d, want 1", got)
	}
	if got := store.IncrementMiss("active", now); got != 2 {
		t.Errorf("IncrementMiss() for kept sender = %d, want 2", got)
	}
}

func TestGreetedTracking(t *testing.T) {
	store := NewMemoryStore()

	if _, ok := store.LastGreeted("u1"); ok {
		t.Fatal("expected no greet mark for fresh sender")
	}

	store.MarkGreeted("u1", t0)
	when, ok := store.LastGreeted("u1")
	if !ok || !when.Equal(t0) {
		t.Fatalf("LastGreeted() = %v, %v", when, ok)
	}

	if n := store.SweepGreeted(t0.Add(25*time.Hour), GreetTTL); n != 1 {
		t.Errorf("SweepGreeted() = %d, want 1", n)
	}
	if _, ok := store.LastGreeted("u1"); ok {
		t.Error("expected greet mark swept")
	}
}

func TestLocationFreshness(t *testing.T) {
	store := NewMemoryStore()
	store.PutLocation("u1", models.Location{
		Address:  "123 Example St",
		Coords:   &models.Coordinates{Lat: 10.3, Long: 123.9},
		StoredAt: t0,
	})

	loc, ok := store.Location("u1", t0.Add(30*time.Minute))
	if !ok {
		t.Fatal("expected cached location within TTL")
	}
	if loc.Address != "123 Example St" {
		t.Errorf("unexpected address %q", loc.Address)
	}

	// Past the freshness window the entry is invisible even before a sweep
	if _, ok := store.Location("u1", t0.Add(LocationTTL+time.Minute)); ok {
		t.Error("expected stale location hidden at read time")
	}

	if n := store.SweepLocations(t0.Add(2*time.Hour), LocationTTL); n != 1 {
		t.Errorf("SweepLocations() = %d, want 1", n)
	}
}

func TestPendingHelp(t *testing.T) {
	store := NewMemoryStore()

	if store.PendingHelp("u1") {
		t.Fatal("expected no pending help for fresh sender")
	}
	store.SetPendingHelp("u1")
	if !store.PendingHelp("u1") {
		t.Error("expected pending help after set")
	}
	store.ClearPendingHelp("u1")
	if store.PendingHelp("u1") {
		t.Error("expected pending help cleared")
	}
}
