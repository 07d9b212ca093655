package domain

import (
	"sort"
	"time"
)

// HistoryColumn binds a facility to its history columns.
type HistoryColumn struct {
	Key        string
	Name       string
	TimeAlias  string
	ValueAlias string
}

// HistoryColumns lists the tracked facilities in feed order.
var HistoryColumns = []HistoryColumn{
	{Key: "gd", Name: "Green Day", TimeAlias: ColumnGDTime, ValueAlias: ColumnGDValue},
	{Key: "uni", Name: "Uni Wroc", TimeAlias: ColumnUniTime, ValueAlias: ColumnUniValue},
}

// BuildSeries converts history rows into time-ordered points per facility key.
// Rows without a time or value are skipped; repeated raw/value pairs keep the first.
func BuildSeries(rows []HistoryRow) map[string][]Point {
	series := make(map[string][]Point, len(HistoryColumns))
	for _, col := range HistoryColumns {
		seen := make(map[string]struct{})
		points := make([]Point, 0, len(rows))
		for _, row := range rows {
			entry := BuildEntryFromRow(row, col.TimeAlias, col.ValueAlias)
			if entry == nil || entry.Value == nil {
				continue
			}
			key := entry.Raw + "|" + formatNumber(*entry.Value)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			points = append(points, Point{T: entry.Date, V: *entry.Value, Raw: entry.Raw})
		}
		sort.SliceStable(points, func(i, j int) bool { return points[i].T.Before(points[j].T) })
		series[col.Key] = points
	}
	return series
}

// SeriesStats summarises one facility series.
type SeriesStats struct {
	Count       int       `json:"count"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Avg         float64   `json:"avg"`
	Latest      float64   `json:"latest"`
	LatestAt    time.Time `json:"latestAt"`
	Capacity    int       `json:"capacity,omitempty"`
	FreePercent *float64  `json:"freePercent,omitempty"`
}

// ComputeStats summarises points; capacity <= 0 leaves FreePercent unset.
func ComputeStats(points []Point, capacity int) SeriesStats {
	stats := SeriesStats{Count: len(points), Capacity: capacity}
	if len(points) == 0 {
		return stats
	}
	sum := 0.0
	stats.Min = points[0].V
	stats.Max = points[0].V
	for _, p := range points {
		sum += p.V
		if p.V < stats.Min {
			stats.Min = p.V
		}
		if p.V > stats.Max {
			stats.Max = p.V
		}
	}
	last := points[len(points)-1]
	stats.Avg = sum / float64(len(points))
	stats.Latest = last.V
	stats.LatestAt = last.T
	if capacity > 0 {
		pct := last.V / float64(capacity) * 100
		stats.FreePercent = &pct
	}
	return stats
}
