package normalizer

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// dateFormats is the ordered list of candidate layouts. The first that
// parses wins, so unambiguous layouts come before ambiguous slash forms.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"01-02-2006",
	"20060102",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
}

// ParseFlexibleDate tries preferredFormat first, then the ordered candidate
// list. The returned ambiguous flag is true when the value could plausibly be
// read as either DD/MM or MM/DD; the confidence scorer penalizes it.
func ParseFlexibleDate(raw string, preferredFormat string) (time.Time, bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false, fmt.Errorf("empty date")
	}

	if preferredFormat != "" {
		if t, err := time.Parse(preferredFormat, s); err == nil {
			return t, false, nil
		}
	}

	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, isAmbiguousDayMonth(s), nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized date format: %q", s)
}

// isAmbiguousDayMonth reports whether a slash/dash separated date could be
// read with day and month swapped (both lead parts <= 12).
func isAmbiguousDayMonth(s string) bool {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) < 3 {
		return false
	}
	first, ok1 := atoiPrefix(parts[0])
	second, ok2 := atoiPrefix(parts[1])
	if !ok1 || !ok2 {
		return false
	}
	// A four-digit leading year is never ambiguous.
	if len(parts[0]) == 4 {
		return false
	}
	return first >= 1 && first <= 12 && second >= 1 && second <= 12
}

func atoiPrefix(s string) (int, bool) {
	n := 0
	seen := false
	for _, r := range s {
		if !unicode.IsDigit(r) {
			break
		}
		n = n*10 + int(r-'0')
		seen = true
	}
	return n, seen
}

// DetectDateFormat inspects sample values and returns the layout that parses
// the most of them, preferring day-first when a sample proves day > 12.
func DetectDateFormat(samples []string) string {
	dayFirstProven := false
	for _, s := range samples {
		parts := strings.FieldsFunc(s, func(r rune) bool {
			return r == '/' || r == '-' || r == '.'
		})
		if len(parts) >= 2 {
			if first, ok := atoiPrefix(parts[0]); ok && first > 12 && first <= 31 {
				dayFirstProven = true
				break
			}
		}
	}

	best := ""
	bestHits := 0
	for _, layout := range dateFormats {
		hits := 0
		for _, s := range samples {
			if _, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = layout
		}
	}

	if dayFirstProven {
		switch best {
		case "01/02/2006":
			return "02/01/2006"
		case "01-02-2006":
			return "02-01-2006"
		}
	}
	return best
}

// CleanDescription trims and collapses internal whitespace.
func CleanDescription(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
