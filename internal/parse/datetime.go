package parse

import (
	"strings"
	"time"

	"github.com/JonMunkholm/mlready/internal/table"
)

// DefaultDatePatterns are tried in order; the first match wins. Four-digit
// year layouts come first because they are unambiguous.
var DefaultDatePatterns = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"02.01.2006",
	"2.1.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"20060102",
	"01/02/06",
	"1/2/06",
	"1-2-06",
	"02.01.06",
}

// twoDigitYearConfidence is lower than a 4-digit match since the century is
// a guess.
const twoDigitYearConfidence = 0.8

// DateTimeParser parses dates and timestamps against an ordered pattern list.
func DateTimeParser() Parser {
	return Parser{
		Kind:  KindDateTime,
		Parse: parseDateTime,
		Fit:   fitDateTime,
	}
}

// fitDateTime freezes the pattern that parses the most samples. Ties go to
// the earlier pattern.
func fitDateTime(samples []table.Cell, cfg Config) (Params, bool) {
	patterns := cfg.DatePatterns
	if len(patterns) == 0 {
		patterns = DefaultDatePatterns
	}

	best, bestCount := "", 0
	for _, layout := range patterns {
		count := 0
		for _, c := range samples {
			if c.Kind != table.CellText {
				continue
			}
			if _, err := time.Parse(layout, table.CleanCell(c.Text)); err == nil {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = layout, count
		}
	}

	if bestCount == 0 {
		return Params{}, false
	}
	return Params{DatePattern: best}, true
}

func parseDateTime(c table.Cell, p Params) Result {
	if c.Kind != table.CellText {
		return fail(ReasonNoDatePattern)
	}
	s := table.CleanCell(c.Text)

	patterns := DefaultDatePatterns
	if p.DatePattern != "" {
		patterns = []string{p.DatePattern}
	}

	for _, layout := range patterns {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		confidence := 1.0
		if isTwoDigitYear(layout) {
			confidence = twoDigitYearConfidence
		}
		return ok(table.DateTimeValue(t), confidence)
	}
	return fail(ReasonNoDatePattern)
}

func isTwoDigitYear(layout string) bool {
	return strings.Contains(strings.ReplaceAll(layout, "2006", ""), "06")
}
