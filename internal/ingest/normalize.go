package ingest

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents removes combining marks, so "Gewürztraminer" and
// "Gewurztraminer" normalize to the same label.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeLabel lowercases, trims and strips accents from a free-text
// label. Both alias keys (label_norm) and client codes go through this.
func NormalizeLabel(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// NormalizeColumn maps a raw CSV header to its canonical column name:
// accent-stripped, lowercase, spaces and hyphens folded to underscores.
func NormalizeColumn(s string) string {
	c := NormalizeLabel(s)
	c = strings.ReplaceAll(c, " ", "_")
	c = strings.ReplaceAll(c, "-", "_")
	return c
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02-01-2006",
}

// ParseDate parses a date permissively (ISO 8601, dd/mm/yyyy, datetime
// variants) and returns it as YYYY-MM-DD. Unparseable or empty input
// yields the empty string.
func ParseDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
