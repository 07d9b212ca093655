package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FreeCount is a free-space counter as reported by a live feed.
// Feeds send numbers, numeric strings or null; anything else decodes as null.
type FreeCount struct {
	Value float64
	Valid bool
}

// NewFreeCount returns a valid count.
func NewFreeCount(value float64) FreeCount {
	return FreeCount{Value: value, Valid: true}
}

// OrZero returns the count, or 0 when it is null.
func (c FreeCount) OrZero() float64 {
	if !c.Valid {
		return 0
	}
	return c.Value
}

// String renders the count without trailing zeros; null renders empty.
func (c FreeCount) String() string {
	if !c.Valid {
		return ""
	}
	return formatNumber(c.Value)
}

// MarshalJSON implements json.Marshaler.
func (c FreeCount) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *FreeCount) UnmarshalJSON(data []byte) error {
	*c = FreeCount{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var number float64
	if err := json.Unmarshal(trimmed, &number); err == nil {
		*c = NewFreeCount(number)
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		if value, ok := ParseNumber(text); ok {
			*c = NewFreeCount(value)
		}
	}
	return nil
}

// APIRecord is one facility reading from a live feed.
type APIRecord struct {
	ParkingGroupName             string    `json:"ParkingGroupName"`
	CurrentFreeGroupCounterValue FreeCount `json:"CurrentFreeGroupCounterValue"`
	Timestamp                    string    `json:"Timestamp"`
}

// IsValidRecord reports whether a record names its facility and carries a timestamp.
func IsValidRecord(record *APIRecord) bool {
	if record == nil {
		return false
	}
	return record.ParkingGroupName != "" && strings.TrimSpace(record.Timestamp) != ""
}

// TotalFreeSpaces sums the free counts, treating null as zero.
func TotalFreeSpaces(records []APIRecord) float64 {
	total := 0.0
	for _, record := range records {
		total += record.CurrentFreeGroupCounterValue.OrZero()
	}
	return total
}

// CloneAPIResults copies a result set so callers can override entries safely.
func CloneAPIResults(results []APIRecord) []APIRecord {
	out := make([]APIRecord, len(results))
	copy(out, results)
	return out
}

// ParseNumber converts trimmed numeric text; empty and non-finite values fail.
func ParseNumber(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
