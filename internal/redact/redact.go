// Package redact masks personal data in transcripts before they leave the
// process through logs or the diagnostics event stream. The memory store
// keeps the original text.
package redact

import (
	"regexp"
	"strings"
)

const (
	EmailMarker = "[email]"
	CardMarker  = "[card]"
	PhoneMarker = "[phone]"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
)

// PII replaces emails, card numbers and phone numbers with markers and
// reports whether anything changed. Cards are matched before phones since a
// card number also looks like a long phone number.
func PII(input string) (string, bool) {
	out := emailPattern.ReplaceAllString(input, EmailMarker)
	out = cardPattern.ReplaceAllString(out, CardMarker)
	out = phonePattern.ReplaceAllString(out, PhoneMarker)
	return out, out != input
}

// Display redacts text and clips it to max runes. A max of zero or less
// disables clipping.
func Display(text string, max int) string {
	out, _ := PII(strings.TrimSpace(text))
	if max <= 0 {
		return out
	}
	r := []rune(out)
	if len(r) <= max {
		return out
	}
	return string(r[:max]) + "..."
}
