// Package validate provides pure field-typed input validators used by the
// booking interview. Validators normalize on success and report pass/fail
// only; corrective messaging is the caller's concern.
package validate

import (
	"regexp"
	"strings"
	"time"
)

// Result is a validation outcome. Normalized is empty unless Valid.
type Result struct {
	Valid      bool
	Normalized string
}

var (
	nonDigitRegex = regexp.MustCompile(`\D`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// MobileNumber validates an 11-digit mobile number starting with 09.
// All non-digit characters are stripped before checking, so inputs with
// separators or symbols normalize to the digits-only form.
func MobileNumber(input string) Result {
	cleaned := nonDigitRegex.ReplaceAllString(input, "")
	if len(cleaned) == 11 && strings.HasPrefix(cleaned, "09") {
		return Result{Valid: true, Normalized: cleaned}
	}
	return Result{}
}

// DateDisplayLayout is the canonical stored/displayed form of a date.
// Validating an already-normalized date succeeds and yields the same
// string again.
const DateDisplayLayout = "January 2, 2006"

// dateLayouts are the accepted input shapes, tried in order. The display
// layout comes first so normalization is idempotent.
var dateLayouts = []string{
	DateDisplayLayout,
	"Jan 2, 2006",
	"January 2 2006",
	"1/2/2006",
	"01/02/2006",
	"2006-01-02",
	"1-2-2006",
	"2 January 2006",
}

// Date validates a calendar date against the booking window using the
// current wall-clock date.
func Date(input string) Result {
	return DateAt(input, time.Now())
}

// DateAt validates a calendar date as of the given instant. Valid dates
// fall between today and December 31 two years out, inclusive. On success
// the normalized form is the long display layout.
func DateAt(input string, now time.Time) Result {
	cleaned := strings.TrimSpace(input)
	var parsed time.Time
	ok := false
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			parsed = t
			ok = true
			break
		}
	}
	if !ok {
		return Result{}
	}

	minDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	maxDate := time.Date(now.Year()+2, time.December, 31, 0, 0, 0, 0, time.UTC)
	if parsed.Before(minDate) || parsed.After(maxDate) {
		return Result{}
	}

	return Result{Valid: true, Normalized: parsed.Format(DateDisplayLayout)}
}

// Email validates a standard address-shape email. Retained for generic
// order flows; the booking interview does not use it.
func Email(input string) Result {
	cleaned := strings.TrimSpace(input)
	if emailRegex.MatchString(cleaned) {
		return Result{Valid: true, Normalized: cleaned}
	}
	return Result{}
}
