package flow

import (
	"strings"
	"testing"

	"github.com/rodge1109/pagebot/internal/models"
)

func TestBookingSMSHeadline(t *testing.T) {
	c := &Completion{
		SenderID: "u1",
		Steps: []models.StepDefinition{
			{FieldKey: "name", Prompt: "What is your name?", Type: models.StepText},
			{FieldKey: "mobile", Prompt: "What is your contact number?", Type: models.StepMobile},
			{FieldKey: "date", Prompt: "When would you like to book?", Type: models.StepDate},
			{FieldKey: "guests", Prompt: "How many guests?", Type: models.StepText},
		},
		Answers: map[string]string{
			"name":   "Jane",
			"mobile": "09171234567",
			"date":   "December 25, 2025",
			"guests": "4",
		},
		MobileNumber: "09171234567",
	}

	got := BookingSMS(c)
	if !strings.Contains(got, "from Jane") {
		t.Errorf("expected name in headline, got %q", got)
	}
	if !strings.Contains(got, "scheduled for December 25, 2025") {
		t.Errorf("expected date in headline, got %q", got)
	}
	if strings.Contains(got, "09171234567") {
		t.Errorf("contact number must not appear in the alert, got %q", got)
	}
	if !strings.Contains(got, "guests: 4") {
		t.Errorf("expected last-word detail label, got %q", got)
	}
}

func TestBookingSMSSkipsEmptyAnswers(t *testing.T) {
	c := &Completion{
		Steps: []models.StepDefinition{
			{FieldKey: "name", Prompt: "What is your name?", Type: models.StepText},
			{FieldKey: "notes", Prompt: "Any special requests?", Type: models.StepText},
		},
		Answers: map[string]string{"name": "Jane", "notes": "N/A"},
	}

	got := BookingSMS(c)
	if strings.Contains(got, "requests") {
		t.Errorf("expected N/A answer skipped, got %q", got)
	}
	if !strings.HasPrefix(got, "Booking Alert! A new booking was received from Jane.") {
		t.Errorf("unexpected headline %q", got)
	}
}

func TestLastWordLabel(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"How many guests?", "guests"},
		{"What is your e-mail address?!", "address"},
		{"Room preference", "preference"},
		{"???", ""},
	}
	for _, tt := range tests {
		if got := lastWordLabel(tt.question); got != tt.want {
			t.Errorf("lastWordLabel(%q) = %q, want %q", tt.question, got, tt.want)
		}
	}
}
