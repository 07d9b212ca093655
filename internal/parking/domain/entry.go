package domain

import (
	"strings"
	"time"
)

// TimestampedEntry is one facility reading at one instant.
// Value is nil when the source was empty or not numeric.
type TimestampedEntry struct {
	Raw   string
	Date  time.Time
	Value *float64
}

// ParseAPIEntry converts a live record; nil when its timestamp is missing or invalid.
func ParseAPIEntry(record *APIRecord) *TimestampedEntry {
	if record == nil {
		return nil
	}
	raw := strings.TrimSpace(record.Timestamp)
	if raw == "" {
		return nil
	}
	date, ok := ParseTimestamp(raw)
	if !ok {
		return nil
	}
	entry := &TimestampedEntry{Raw: raw, Date: date}
	if record.CurrentFreeGroupCounterValue.Valid {
		value := record.CurrentFreeGroupCounterValue.Value
		entry.Value = &value
	}
	return entry
}

// BuildEntryFromRow reads a time/value column pair from a history row.
func BuildEntryFromRow(row HistoryRow, timeAlias, valueAlias string) *TimestampedEntry {
	if row == nil {
		return nil
	}
	raw, _ := RowValue(row, timeAlias)
	date, ok := ParseTimestamp(raw)
	if !ok {
		return nil
	}
	entry := &TimestampedEntry{Raw: raw, Date: date}
	if text, found := RowValue(row, valueAlias); found {
		if value, ok := ParseNumber(text); ok {
			entry.Value = &value
		}
	}
	return entry
}

// NewerThan reports whether e is strictly later than other.
// A missing other counts as older than any entry.
func (e *TimestampedEntry) NewerThan(other *TimestampedEntry) bool {
	if e == nil {
		return false
	}
	if other == nil {
		return true
	}
	return e.Date.After(other.Date)
}

// CoveredBy reports whether other is at least as new as e.
func (e *TimestampedEntry) CoveredBy(other *TimestampedEntry) bool {
	if e == nil || other == nil {
		return false
	}
	return !e.Date.After(other.Date)
}
