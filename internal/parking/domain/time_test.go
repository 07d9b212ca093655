package domain

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func TestParseTimestampSpaceSeparated(t *testing.T) {
	got, ok := ParseTimestampIn("2024-05-01 10:20:30", time.UTC)
	if !ok {
		t.Fatalf("expected timestamp to parse")
	}
	want := time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestParseTimestampISOWithOffset(t *testing.T) {
	got, ok := ParseTimestampIn("2024-05-01T10:20:30+02:00", time.UTC)
	if !ok {
		t.Fatalf("expected timestamp to parse")
	}
	if got.UTC().Hour() != 8 {
		t.Fatalf("expected 08 UTC, got %s", got.UTC())
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a date", "2024-13-45 99:99:99"} {
		if _, ok := ParseTimestamp(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestAgeInMinutes(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if got := AgeInMinutes(base, base); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := AgeInMinutes(base.Add(10*time.Minute), base); got != 0 {
		t.Fatalf("expected future timestamp to clamp to 0, got %d", got)
	}
	if got := AgeInMinutes(base, base.Add(119*time.Second)); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := AgeInMinutes(time.Time{}, base); got != 0 {
		t.Fatalf("expected 0 for missing from, got %d", got)
	}
}

func TestDataAgeMissingIsInfinite(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		if age := DataAge(raw, time.Now()); !math.IsInf(age, 1) {
			t.Fatalf("expected +Inf for %q, got %v", raw, age)
		}
	}
}

func TestDataAgeUnparseableIsNaN(t *testing.T) {
	if age := DataAge("not a date", time.Now()); !math.IsNaN(age) {
		t.Fatalf("expected NaN, got %v", age)
	}
}

func TestIsStaleBoundary(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !IsStale(now.Add(-15*time.Minute), now) {
		t.Fatalf("expected 15 minutes to be stale")
	}
	if IsStale(now.Add(-14*time.Minute), now) {
		t.Fatalf("expected 14 minutes to be fresh")
	}
	if !IsStale(time.Time{}, now) {
		t.Fatalf("expected missing timestamp to be stale")
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(time.Time{}, "pl-PL"); got != "--:--:--" {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if got := FormatTimestamp("garbage", ""); got != "--:--:--" {
		t.Fatalf("expected placeholder, got %q", got)
	}
	ts := time.Date(2024, 5, 1, 14, 5, 9, 0, time.Local)
	if got := FormatTime(ts, "pl-PL"); got != "14:05:09" {
		t.Fatalf("expected 14:05:09, got %q", got)
	}
	if got := FormatTime(ts, "en-US"); got != "2:05:09 PM" {
		t.Fatalf("expected 2:05:09 PM, got %q", got)
	}
}

func TestFormatAgeLabel(t *testing.T) {
	cases := []struct {
		minutes float64
		display string
		aria    string
	}{
		{math.Inf(1), "--", "Data age unavailable"},
		{math.NaN(), "--", "Data age unavailable"},
		{-3, "0 min ago", "Data from 0 minutes ago"},
		{1, "1 min ago", "Data from 1 minute ago"},
		{59.6, "1 h ago", "Data from 1 hour ago"},
		{90, "2 h ago", "Data from 2 hours ago"},
		{1439, "24 h ago", "Data from 24 hours ago"},
		{1440, "1 d ago", "Data from 1 day ago"},
		{1800, "1.5 d ago", "Data from 1.5 days ago"},
		{2160, "1.5 d ago", "Data from 1.5 days ago"},
		{2880, "2 d ago", "Data from 2 days ago"},
	}
	for _, tc := range cases {
		got := FormatAgeLabel(tc.minutes)
		if got.Display != tc.display || got.Aria != tc.aria {
			t.Fatalf("minutes=%v: expected %q/%q, got %q/%q", tc.minutes, tc.display, tc.aria, got.Display, got.Aria)
		}
	}
}

func TestFormatAgeLabelMinuteRange(t *testing.T) {
	for m := 0; m < 60; m++ {
		got := FormatAgeLabel(float64(m))
		if want := fmt.Sprintf("%d min ago", m); got.Display != want {
			t.Fatalf("expected %q, got %q", want, got.Display)
		}
	}
}

func TestAgeClass(t *testing.T) {
	if got := AgeClass(3); got != "" {
		t.Fatalf("expected empty class, got %q", got)
	}
	if got := AgeClass(6); got != "age-medium" {
		t.Fatalf("expected age-medium, got %q", got)
	}
	if got := AgeClass(15); got != "age-old" {
		t.Fatalf("expected age-old, got %q", got)
	}
}
