// Package flow implements the conversational state machines: the booking
// interview, the bill-inquiry session and the emergency workflow. Each
// step consumes one inbound event and produces a reply plus a state
// transition; side effects on completion are the dispatcher's job.
package flow

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rodge1109/pagebot/internal/models"
	"github.com/rodge1109/pagebot/internal/session"
	"github.com/rodge1109/pagebot/internal/validate"
)

// Postback payload constants shared with the webhook layer.
const (
	PayloadBookingYes    = "BOOKING_YES"
	PayloadBookingNo     = "BOOKING_NO"
	PayloadAnswerPrefix  = "BOOKING_ANSWER_"
	PayloadShareLocation = "HELP_SHARE_LOCATION"
)

// CancelTokens end a booking from any non-complete state.
var CancelTokens = []string{"cancel", "stop", "exit"}

var (
	affirmativeTokens = []string{"yes", "oo", "sige"}
	negativeTokens    = []string{"no", "dili", "cancel"}
)

// User-facing copy for the booking interview.
const (
	confirmPrompt = "Great! I'll help you with your booking.\n\nAre you ready to proceed?"
	cancelledText = "Booking cancelled. No problem! Feel free to book anytime."
	brokenText    = "Something went wrong. Please type 'order' to start again."

	invalidMobileText = "Invalid mobile number!\n\nPlease enter exactly 11 digits starting with 09.\nExample: 09123456789\n\nType 'cancel' anytime to stop."
	invalidDateText   = "Invalid date format!\n\nPlease enter the date using a standard format like MM/DD/YYYY or Month DD, YYYY.\nExample: 12/25/2025 or December 25, 2025\n\nType 'cancel' anytime to stop."
	customDatePrompt  = "Please type your preferred date (e.g., December 15, 2025):"

	mobileHint = "\n\n(Please enter 11 digits, e.g., 09123456789)"
	dateHint   = "\n\n(Please enter the date as MM/DD/YYYY or Month DD, YYYY. Example: 12/25/2025)"
)

// Completion carries everything the dispatcher needs to fire the one-shot
// completion side effects after a booking finishes.
type Completion struct {
	SenderID     string
	Steps        []models.StepDefinition
	Answers      map[string]string
	MobileNumber string
}

// Booking drives the step-by-step interview over a sender's session.
type Booking struct {
	sessions session.Store
	clock    func() time.Time
}

// NewBooking creates the booking state machine over the given store.
func NewBooking(sessions session.Store, clock func() time.Time) *Booking {
	if clock == nil {
		clock = time.Now
	}
	return &Booking{sessions: sessions, clock: clock}
}

// Start opens a booking session at the confirmation step. The step
// sequence must be non-empty; the dispatcher checks that before calling.
func (b *Booking) Start(senderID string, steps []models.StepDefinition) *models.Reply {
	b.sessions.Put(senderID, session.NewBooking(steps, b.clock()))
	slog.Info("booking started", "senderID", senderID, "steps", len(steps))
	return &models.Reply{
		Text: confirmPrompt,
		Buttons: []models.Button{
			{Type: models.ButtonPostback, Title: "YES, Continue", Payload: PayloadBookingYes},
			{Type: models.ButtonPostback, Title: "NO, Cancel", Payload: PayloadBookingNo},
		},
	}
}

// Cancel destroys the sender's booking session with no partial persistence.
func (b *Booking) Cancel(senderID string) *models.Reply {
	b.sessions.Delete(senderID)
	slog.Info("booking cancelled", "senderID", senderID)
	return models.TextReply(cancelledText)
}

// IsCancelToken reports whether the lowercased input is a cancel command.
func IsCancelToken(input string) bool {
	for _, tok := range CancelTokens {
		if input == tok {
			return true
		}
	}
	return false
}

// HandleText consumes one free-text answer for the sender's booking
// session. It returns the next reply and, when the final answer was just
// stored, a non-nil Completion.
func (b *Booking) HandleText(senderID, input string) (*models.Reply, *Completion) {
	s, ok := b.sessions.Get(senderID)
	if !ok || s.Kind != session.KindBooking {
		return models.TextReply(brokenText), nil
	}

	lowered := strings.ToLower(strings.TrimSpace(input))

	if s.StepIndex == 0 {
		return b.handleConfirmation(senderID, s, lowered)
	}

	if s.AwaitingCustomDate {
		return b.handleCustomDate(senderID, s, input)
	}

	step := s.Steps[s.StepIndex-1]
	switch step.Type {
	case models.StepMobile:
		res := validate.MobileNumber(input)
		if !res.Valid {
			return models.TextReply(invalidMobileText), nil
		}
		s.Answers[step.FieldKey] = res.Normalized
	case models.StepDate:
		res := validate.Date(input)
		if !res.Valid {
			return models.TextReply(invalidDateText), nil
		}
		s.Answers[step.FieldKey] = res.Normalized
	default:
		s.Answers[step.FieldKey] = input
	}

	return b.advance(senderID, s)
}

// HandleChoice consumes a choice-typed answer delivered via postback. The
// reserved custom-date value routes into free-text date entry instead of
// advancing.
func (b *Booking) HandleChoice(senderID, value string) (*models.Reply, *Completion) {
	s, ok := b.sessions.Get(senderID)
	if !ok || s.Kind != session.KindBooking {
		return models.TextReply(brokenText), nil
	}

	if value == models.CustomDateChoice || value == "Other date" {
		s.AwaitingCustomDate = true
		b.sessions.Put(senderID, s)
		return models.TextReply(customDatePrompt), nil
	}

	if s.StepIndex >= 1 && s.StepIndex <= len(s.Steps) {
		step := s.Steps[s.StepIndex-1]
		s.Answers[step.FieldKey] = value
	}
	return b.advance(senderID, s)
}

// handleConfirmation resolves the yes/no gate at step 0. Input that is
// neither affirmative nor negative re-prompts the confirmation.
func (b *Booking) handleConfirmation(senderID string, s *session.Session, lowered string) (*models.Reply, *Completion) {
	if containsAny(lowered, affirmativeTokens) {
		s.StepIndex = 1
		b.sessions.Put(senderID, s)
		return b.askStep(s, 1), nil
	}
	if containsAny(lowered, negativeTokens) {
		return b.Cancel(senderID), nil
	}
	return &models.Reply{
		Text: confirmPrompt,
		Buttons: []models.Button{
			{Type: models.ButtonPostback, Title: "YES, Continue", Payload: PayloadBookingYes},
			{Type: models.ButtonPostback, Title: "NO, Cancel", Payload: PayloadBookingNo},
		},
	}, nil
}

// handleCustomDate validates the free-text date typed after the reserved
// custom-date choice. The sub-state clears on success; failure re-prompts
// without advancing.
func (b *Booking) handleCustomDate(senderID string, s *session.Session, input string) (*models.Reply, *Completion) {
	res := validate.Date(input)
	if !res.Valid {
		return models.TextReply(invalidDateText), nil
	}
	step := s.Steps[s.StepIndex-1]
	s.Answers[step.FieldKey] = res.Normalized
	s.AwaitingCustomDate = false
	return b.advance(senderID, s)
}

// advance moves the cursor past the just-answered step and either asks the
// next question or completes the interview.
func (b *Booking) advance(senderID string, s *session.Session) (*models.Reply, *Completion) {
	if s.StepIndex >= len(s.Steps) {
		return b.complete(senderID, s)
	}
	s.StepIndex++
	b.sessions.Put(senderID, s)
	return b.askStep(s, s.StepIndex), nil
}

// askStep renders the prompt for the 1-based step index.
func (b *Booking) askStep(s *session.Session, stepIndex int) *models.Reply {
	step := s.Steps[stepIndex-1]

	switch step.Type {
	case models.StepMobile:
		return models.TextReply(step.Prompt + mobileHint)
	case models.StepDate:
		return models.TextReply(step.Prompt + dateHint)
	case models.StepChoice:
		return choiceReply(step)
	default:
		return models.TextReply(step.Prompt)
	}
}

// choiceReply renders a fixed choice set: a button template when it fits,
// a carousel otherwise.
func choiceReply(step models.StepDefinition) *models.Reply {
	if len(step.Choices) <= models.MaxReplyButtons {
		buttons := make([]models.Button, 0, len(step.Choices))
		for _, c := range step.Choices {
			buttons = append(buttons, models.Button{
				Type:    models.ButtonPostback,
				Title:   c.Label,
				Payload: PayloadAnswerPrefix + c.Value,
			})
		}
		return &models.Reply{Text: step.Prompt, Buttons: buttons}
	}

	elements := make([]models.CarouselElement, 0, len(step.Choices))
	for _, c := range step.Choices {
		elements = append(elements, models.CarouselElement{
			Title: c.Label,
			Buttons: []models.Button{{
				Type:    models.ButtonPostback,
				Title:   "Choose " + c.Label,
				Payload: PayloadAnswerPrefix + c.Value,
			}},
		})
	}
	return &models.Reply{Carousel: elements}
}

// complete builds the summary, collects the completion payload and
// destroys the session. The dispatcher fires persistence and SMS once.
func (b *Booking) complete(senderID string, s *session.Session) (*models.Reply, *Completion) {
	var sb strings.Builder
	sb.WriteString("BOOKING RECEIVED!\n\nSummary:\n")

	mobile := ""
	for _, step := range s.Steps {
		answer, ok := s.Answers[step.FieldKey]
		if !ok || answer == "" {
			answer = "N/A"
		}
		fmt.Fprintf(&sb, "%s: %s\n", step.SummaryLabel(), answer)
		if step.Type == models.StepMobile && ok {
			mobile = answer
		}
	}
	sb.WriteString("\nThank you! We'll confirm your booking shortly.")
	if mobile != "" {
		sb.WriteString("\n\nA confirmation SMS will be sent to your number.")
	}

	s.Completed = true
	b.sessions.Delete(senderID)
	slog.Info("booking completed", "senderID", senderID, "answers", len(s.Answers))

	return models.TextReply(sb.String()), &Completion{
		SenderID:     senderID,
		Steps:        s.Steps,
		Answers:      s.Answers,
		MobileNumber: mobile,
	}
}

func containsAny(input string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(input, tok) {
			return true
		}
	}
	return false
}
