package models

import "strings"

// StepType is the closed set of answer types a booking step can require.
type StepType string

const (
	// StepText accepts any free text.
	StepText StepType = "text"
	// StepMobile requires an 11-digit mobile number starting with 09.
	StepMobile StepType = "mobile"
	// StepDate requires a calendar date within the booking window.
	StepDate StepType = "date"
	// StepChoice renders a fixed choice set instead of free text.
	StepChoice StepType = "buttons"
)

// ParseStepType maps the free-form type strings found in step config rows
// onto the closed StepType set. Unrecognized values fall back to StepText.
func ParseStepType(raw string) StepType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mobile", "phone", "contact":
		return StepMobile
	case "date", "when":
		return StepDate
	case "buttons", "choice", "options":
		return StepChoice
	default:
		return StepText
	}
}

// Choice is one selectable answer of a choice-typed step. Label is shown
// to the user; Value is what gets stored.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CustomDateChoice is the reserved choice value that routes a choice-typed
// step into free-text date entry instead of normal advancement.
const CustomDateChoice = "CUSTOM_DATE"

// StepDefinition is one question/answer unit of a booking interview.
// Sequences are ordered; the order is the interview order.
type StepDefinition struct {
	FieldKey string   `json:"field_key"`
	Prompt   string   `json:"prompt"`
	Type     StepType `json:"type"`
	Choices  []Choice `json:"choices,omitempty"`
}

// ParseChoices splits a comma-separated option cell into choices. Each
// option may be "Label-value"; a bare option uses itself as both.
func ParseChoices(raw string) []Choice {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	choices := make([]Choice, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if label, value, ok := strings.Cut(p, "-"); ok {
			choices = append(choices, Choice{Label: strings.TrimSpace(label), Value: strings.TrimSpace(value)})
		} else {
			choices = append(choices, Choice{Label: p, Value: p})
		}
	}
	return choices
}

// SummaryLabel is the label used for this step's line in the booking
// summary: the prompt minus question marks, truncated to 30 characters.
// Truncation counts runes so a multi-byte prompt never yields a split
// UTF-8 sequence.
func (s StepDefinition) SummaryLabel() string {
	label := strings.ReplaceAll(s.Prompt, "?", "")
	label = strings.TrimSpace(label)
	if runes := []rune(label); len(runes) > 30 {
		label = string(runes[:30])
	}
	return label
}
