package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical history column names.
const (
	ColumnGDTime   = "gd_time"
	ColumnGDValue  = "greenday free"
	ColumnUniTime  = "uni_time"
	ColumnUniValue = "uni free"

	dedupeSeparator = "|||"
)

// HistoryRow is one history line keyed by its column headers.
// Header spelling varies, so lookups go through FindColumnKey.
type HistoryRow map[string]string

// UnmarshalJSON accepts rows whose cells were stored as numbers or null.
func (r *HistoryRow) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = nil
		return nil
	}
	row := make(HistoryRow, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			row[key] = ""
		case string:
			row[key] = v
		case float64:
			row[key] = formatNumber(v)
		default:
			row[key] = fmt.Sprint(v)
		}
	}
	*r = row
	return nil
}

// NormalizeKey trims and lower-cases a column name.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// FindColumnKey returns the row key matching target after normalisation.
// An exact match wins; otherwise the smallest matching key is chosen.
func FindColumnKey(row HistoryRow, target string) (string, bool) {
	if row == nil {
		return "", false
	}
	if _, ok := row[target]; ok {
		return target, true
	}
	want := NormalizeKey(target)
	found := ""
	ok := false
	for key := range row {
		if NormalizeKey(key) != want {
			continue
		}
		if !ok || key < found {
			found = key
			ok = true
		}
	}
	return found, ok
}

// RowValue returns the trimmed cell for a column alias.
func RowValue(row HistoryRow, alias string) (string, bool) {
	key, ok := FindColumnKey(row, alias)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(row[key]), true
}

// LastEntries holds the newest known reading per facility.
type LastEntries struct {
	GD  *TimestampedEntry
	Uni *TimestampedEntry
}

// ExtractLastEntry reads both facilities from the final row only.
func ExtractLastEntry(rows []HistoryRow) LastEntries {
	if len(rows) == 0 {
		return LastEntries{}
	}
	last := rows[len(rows)-1]
	return LastEntries{
		GD:  BuildEntryFromRow(last, ColumnGDTime, ColumnGDValue),
		Uni: BuildEntryFromRow(last, ColumnUniTime, ColumnUniValue),
	}
}

// DedupeHistoryRows keeps the first row per raw time pair, preserving order.
func DedupeHistoryRows(rows []HistoryRow) []HistoryRow {
	seen := make(map[string]struct{}, len(rows))
	result := make([]HistoryRow, 0, len(rows))
	for _, row := range rows {
		gd, _ := RowValue(row, ColumnGDTime)
		uni, _ := RowValue(row, ColumnUniTime)
		composite := gd + dedupeSeparator + uni
		if _, ok := seen[composite]; ok {
			continue
		}
		seen[composite] = struct{}{}
		result = append(result, row)
	}
	return result
}

// BuildCacheRowFromPayload maps two live records onto the canonical columns.
func BuildCacheRowFromPayload(gd, uni *APIRecord) HistoryRow {
	row := HistoryRow{
		ColumnGDTime:   "",
		ColumnGDValue:  "",
		ColumnUniTime:  "",
		ColumnUniValue: "",
	}
	if gd != nil {
		row[ColumnGDTime] = gd.Timestamp
		row[ColumnGDValue] = gd.CurrentFreeGroupCounterValue.String()
	}
	if uni != nil {
		row[ColumnUniTime] = uni.Timestamp
		row[ColumnUniValue] = uni.CurrentFreeGroupCounterValue.String()
	}
	return row
}
