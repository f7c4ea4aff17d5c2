package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	got := GenerateRandomID("wh_", 16)
	if !strings.HasPrefix(got, "wh_") {
		t.Errorf("GenerateRandomID() = %v, want prefix wh_", got)
	}
	if len(got) != 19 {
		t.Errorf("GenerateRandomID() length = %v, want 19", len(got))
	}
	for _, r := range got[3:] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("GenerateRandomID() hex part contains %q", r)
		}
	}
}

func TestGenerateRandomHexLength(t *testing.T) {
	if got := GenerateRandomHex(0); got != "" {
		t.Errorf("GenerateRandomHex(0) = %q, want empty", got)
	}
	if got := GenerateRandomHex(-3); got != "" {
		t.Errorf("GenerateRandomHex(-3) = %q, want empty", got)
	}
	if got := GenerateRandomHex(8); len(got) != 8 {
		t.Errorf("GenerateRandomHex(8) length = %d", len(got))
	}
}

func TestGenerateRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate request ID %s", id)
		}
		seen[id] = true
	}
}
