package flow

import (
	"strings"
	"unicode"

	"github.com/rodge1109/pagebot/internal/models"
)

// BookingSMS composes the staff notification for a completed booking.
// Name- and date-typed answers become the headline; contact fields are
// skipped; every other answer is listed as "label: value" where the label
// is the final whitespace-delimited token of the cleaned question. The
// last-word heuristic is kept for output compatibility with existing
// notification consumers.
func BookingSMS(c *Completion) string {
	var name, date string
	var details []string

	for _, step := range c.Steps {
		answer := c.Answers[step.FieldKey]
		if answer == "" || answer == "N/A" {
			continue
		}

		prompt := strings.ToLower(step.Prompt)
		switch {
		case strings.Contains(prompt, "name"):
			name = answer
		case step.Type == models.StepDate ||
			strings.Contains(prompt, "date") || strings.Contains(prompt, "when") || strings.Contains(prompt, "pick"):
			date = answer
		case step.Type == models.StepMobile ||
			strings.Contains(prompt, "contact") || strings.Contains(prompt, "number"):
			// contact fields stay out of the alert body
		default:
			details = append(details, lastWordLabel(step.Prompt)+": "+answer)
		}
	}

	var sb strings.Builder
	sb.WriteString("Booking Alert! A new booking was received")
	if name != "" {
		sb.WriteString(" from " + name)
	}
	if date != "" {
		sb.WriteString(" scheduled for " + date)
	}
	sb.WriteString(".")
	if len(details) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(strings.Join(details, "\n"))
	}
	return sb.String()
}

// lastWordLabel cleans the question of punctuation and symbols and keeps
// only its last whitespace-delimited token.
func lastWordLabel(question string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, question)

	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return strings.TrimSpace(cleaned)
	}
	return fields[len(fields)-1]
}
