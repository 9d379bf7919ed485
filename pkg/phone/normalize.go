// Package phone canonicalizes Vietnamese mobile numbers to E.164.
package phone

import "strings"

const (
	// CountryCode is the E.164 prefix of every normalized number
	CountryCode = "+84"

	subscriberDigits = 9
)

// Normalize converts a free-form Vietnamese phone number to +84XXXXXXXXX.
// Accepted forms after stripping whitespace and punctuation are 0XXXXXXXXX,
// 84XXXXXXXXX and +84XXXXXXXXX. ok is false for anything else.
func Normalize(raw string) (normalized string, ok bool) {
	cleaned := clean(raw)

	var subscriber string
	switch {
	case strings.HasPrefix(cleaned, "+84"):
		subscriber = cleaned[3:]
	case strings.HasPrefix(cleaned, "84"):
		subscriber = cleaned[2:]
	case strings.HasPrefix(cleaned, "0"):
		subscriber = cleaned[1:]
	default:
		return "", false
	}

	if len(subscriber) != subscriberDigits || !allDigits(subscriber) {
		return "", false
	}
	return CountryCode + subscriber, true
}

// clean drops whitespace and the punctuation people type into phone fields.
// A '+' is kept only in leading position.
func clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '-' || r == '.' || r == '(' || r == ')' || r == '/':
		default:
			// letters and other symbols make the input unparseable
			return ""
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Mask hides the middle of a normalized number for logs, e.g. +8491****678
func Mask(normalized string) string {
	if len(normalized) < 8 {
		return "****"
	}
	return normalized[:5] + strings.Repeat("*", len(normalized)-8) + normalized[len(normalized)-3:]
}
