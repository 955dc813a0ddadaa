package command

import (
	"strings"
	"time"

	"github.com/valet-ai/valet/internal/gdrive"
)

// Search-argument markers, matched as whole words.
const (
	markerExt  = "Ext:"
	markerFrom = "From:"
	markerTo   = "To:"
)

// ParseFilter parses a search command's argument string. The text
// before the first marker is the case-folded name filter; each
// marker's value runs until the next marker. Unparseable date text
// yields no constraint rather than an error.
func ParseFilter(arg string, now time.Time) gdrive.Filter {
	var filter gdrive.Filter
	var nameWords, valueWords []string
	current := ""

	flush := func() {
		value := strings.TrimSpace(strings.Join(valueWords, " "))
		switch current {
		case markerExt:
			filter.Ext = strings.ToLower(strings.TrimPrefix(value, "."))
		case markerFrom:
			if t := resolveDate(value, now); t != nil {
				filter.From = t
			}
		case markerTo:
			if t := resolveDate(value, now); t != nil {
				end := endOfDay(*t)
				filter.To = &end
			}
		}
		valueWords = valueWords[:0]
	}

	for _, word := range strings.Fields(arg) {
		if isMarker(word) {
			flush()
			current = canonicalMarker(word)
			continue
		}
		if current == "" {
			nameWords = append(nameWords, word)
		} else {
			valueWords = append(valueWords, word)
		}
	}
	flush()

	filter.Name = strings.ToLower(strings.Join(nameWords, " "))
	return filter
}

func isMarker(word string) bool {
	return strings.EqualFold(word, markerExt) ||
		strings.EqualFold(word, markerFrom) ||
		strings.EqualFold(word, markerTo)
}

func canonicalMarker(word string) string {
	switch {
	case strings.EqualFold(word, markerExt):
		return markerExt
	case strings.EqualFold(word, markerFrom):
		return markerFrom
	default:
		return markerTo
	}
}

// dateLayouts are tried in order for date text that is not one of the
// natural literals.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// resolveDate interprets natural-date literals relative to now, then
// falls back to the layout list. Returns nil when nothing parses.
func resolveDate(value string, now time.Time) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	var t time.Time
	switch strings.ToLower(value) {
	case "today":
		t = startOfDay(now)
	case "yesterday":
		t = startOfDay(now.AddDate(0, 0, -1))
	case "last week":
		t = startOfDay(now.AddDate(0, 0, -7))
	case "last month":
		t = startOfDay(now.AddDate(0, -1, 0))
	case "last year":
		t = startOfDay(now.AddDate(-1, 0, 0))
	default:
		for _, layout := range dateLayouts {
			if parsed, err := time.ParseInLocation(layout, value, now.Location()); err == nil {
				t = startOfDay(parsed)
				return &t
			}
		}
		return nil
	}
	return &t
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// endOfDay makes a To: bound inclusive through the whole day.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999000000, t.Location())
}
