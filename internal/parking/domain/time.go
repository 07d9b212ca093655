package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DisplayStaleMinutes is the age at which a reading is shown as stale.
	DisplayStaleMinutes = 15
	// ApproximationThresholdMinutes is the age at which a reading may be approximated.
	ApproximationThresholdMinutes = 30

	placeholderTime = "--:--:--"
	defaultLocale   = "pl-PL"
)

var localTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

var localeTimeLayouts = map[string]string{
	"pl-PL": "15:04:05",
	"en-GB": "15:04:05",
	"de-DE": "15:04:05",
	"en-US": "3:04:05 PM",
}

// ParseTimestamp parses "YYYY-MM-DD HH:MM:SS" or ISO timestamps in the local zone.
func ParseTimestamp(raw string) (time.Time, bool) {
	return ParseTimestampIn(raw, time.Local)
}

// ParseTimestampIn parses a timestamp; values without an offset are read in loc.
func ParseTimestampIn(raw string, loc *time.Location) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	value = strings.Replace(value, " ", "T", 1)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	// Date-only values are UTC midnight.
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// AgeInMinutes returns whole minutes between from and to, never negative.
func AgeInMinutes(from, to time.Time) int {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	diff := to.Sub(from)
	if diff <= 0 {
		return 0
	}
	return int(diff / time.Minute)
}

// DataAge returns the age of a raw timestamp at now.
// A missing timestamp is infinitely old; an unparseable one has no age (NaN),
// which compares false against every threshold.
func DataAge(raw string, now time.Time) float64 {
	if strings.TrimSpace(raw) == "" {
		return math.Inf(1)
	}
	ts, ok := ParseTimestamp(raw)
	if !ok {
		return math.NaN()
	}
	return float64(AgeInMinutes(ts, now))
}

// FormatTime renders the time of day for a locale.
func FormatTime(t time.Time, locale string) string {
	if t.IsZero() {
		return placeholderTime
	}
	if locale == "" {
		locale = defaultLocale
	}
	layout, ok := localeTimeLayouts[locale]
	if !ok {
		layout = localeTimeLayouts[defaultLocale]
	}
	return t.In(time.Local).Format(layout)
}

// FormatTimestamp parses raw and renders it like FormatTime.
func FormatTimestamp(raw string, locale string) string {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return placeholderTime
	}
	return FormatTime(t, locale)
}

// IsStale reports whether ts is at least DisplayStaleMinutes old.
func IsStale(ts, now time.Time) bool {
	return IsStaleAfter(ts, now, DisplayStaleMinutes)
}

// IsStaleAfter reports whether ts is missing or at least thresholdMinutes old.
func IsStaleAfter(ts, now time.Time, thresholdMinutes int) bool {
	if ts.IsZero() {
		return true
	}
	return AgeInMinutes(ts, now) >= thresholdMinutes
}

// AgeLabel is a short age text plus its accessible description.
type AgeLabel struct {
	Display string `json:"display"`
	Aria    string `json:"aria"`
}

// FormatAgeLabel renders minutes as "N min ago", "N h ago" or "N d ago".
func FormatAgeLabel(ageMinutes float64) AgeLabel {
	if math.IsNaN(ageMinutes) || math.IsInf(ageMinutes, 0) {
		return AgeLabel{Display: "--", Aria: "Data age unavailable"}
	}
	minutes := int(math.Max(0, math.Round(ageMinutes)))

	if minutes < 60 {
		return AgeLabel{
			Display: fmt.Sprintf("%d min ago", minutes),
			Aria:    fmt.Sprintf("Data from %d minute%s ago", minutes, plural(minutes == 1)),
		}
	}
	if minutes < 1440 {
		hours := int(math.Round(float64(minutes) / 60))
		return AgeLabel{
			Display: fmt.Sprintf("%d h ago", hours),
			Aria:    fmt.Sprintf("Data from %d hour%s ago", hours, plural(hours == 1)),
		}
	}

	days := math.Round(float64(minutes)/1440*2) / 2
	value := strconv.FormatFloat(days, 'f', 1, 64)
	if days == math.Trunc(days) {
		value = strconv.FormatFloat(days, 'f', 0, 64)
	}
	return AgeLabel{
		Display: value + " d ago",
		Aria:    fmt.Sprintf("Data from %s day%s ago", value, plural(value == "1")),
	}
}

// AgeClass returns the styling class for a reading age.
func AgeClass(ageMinutes float64) string {
	if ageMinutes >= DisplayStaleMinutes {
		return "age-old"
	}
	if ageMinutes > 5 {
		return "age-medium"
	}
	return ""
}

func plural(singular bool) string {
	if singular {
		return ""
	}
	return "s"
}
