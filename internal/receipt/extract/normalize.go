// Package extract turns raw receipt documents into canonical verification results.
//
// Extraction is pure: the same bytes always produce the same result or the same
// *ParseError. Each bank owns its own rules (PDF patterns or HTML label synonyms), so a
// page layout change touches one ruleset only.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"slipcheck/internal/receipt/models"
)

// Extractor converts a document body into a result.
type Extractor interface {
	Extract(body []byte) (*models.VerifyResult, error)
}

// ParseError reports a document that did not yield the required fields.
type ParseError struct {
	Format  string
	Missing []string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s receipt unreadable: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("%s receipt missing %s", e.Format, strings.Join(e.Missing, ", "))
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Flatten collapses all whitespace runs to single spaces.
func Flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeLabel lowercases, drops punctuation and collapses whitespace.
func NormalizeLabel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return Flatten(b.String())
}

// TitleCase renders a personal name as "John Doe".
func TitleCase(s string) string {
	return cases.Title(language.Und).String(strings.ToLower(Flatten(s)))
}

var nonAmount = regexp.MustCompile(`[^0-9.]`)

// ParseAmount keeps only digits and dots and parses the rest as a decimal.
// Returns nil when nothing numeric remains or the result is not a number.
func ParseAmount(s string) *decimal.Decimal {
	cleaned := nonAmount.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

var dayMonthYear = regexp.MustCompile(`(?i)^(\d{1,2})/(\d{1,2})/(\d{4})(?:[,\s]+(\d{1,2}):(\d{2})(?::(\d{2}))?\s*(AM|PM)?)?$`)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2, 2006 3:04:05 PM",
	"Jan 2, 2006, 3:04:05 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006",
	"2 Jan 2006 15:04",
	"2 Jan 2006",
	"Mon Jan 2 2006",
	time.RFC1123,
}

// ParseDate reads day/month/year with an optional time first, then falls back to a set
// of common layouts. Unparseable or impossible dates return nil.
func ParseDate(s string) *time.Time {
	s = Flatten(s)
	if s == "" {
		return nil
	}
	if t, ok := parseDayMonthYear(s); ok {
		return &t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func parseDayMonthYear(s string) (time.Time, bool) {
	m := dayMonthYear.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	var hour, minute, second int
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		if m[6] != "" {
			second, _ = strconv.Atoi(m[6])
		}
	}
	if meridiem := strings.ToUpper(m[7]); meridiem != "" {
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		switch {
		case meridiem == "AM" && hour == 12:
			hour = 0
		case meridiem == "PM" && hour != 12:
			hour += 12
		}
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
