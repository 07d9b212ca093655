package domain

import (
	"fmt"
	"math"
	"time"
)

const (
	reasonMissingData     = "Missing data"
	reasonUnknownCapacity = "Unknown capacity"
)

// ApproximationInfo describes how a displayed value relates to its reading.
type ApproximationInfo struct {
	IsApproximated bool     `json:"isApproximated"`
	Original       *float64 `json:"original"`
	Approximated   *float64 `json:"approximated"`
	// AgeMinutes is nil when the reading has no usable timestamp.
	AgeMinutes  *int     `json:"ageMinutes,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	FreshRatio  *float64 `json:"freshRatio,omitempty"`
	Calculation string   `json:"calculation,omitempty"`
}

// Facility is a live reading with its approximation attached.
type Facility struct {
	APIRecord
	Approximation ApproximationInfo `json:"approximationInfo"`
}

// DisplayValue is the value a dashboard should show.
func (f Facility) DisplayValue() float64 {
	if f.Approximation.Approximated != nil {
		return *f.Approximation.Approximated
	}
	return f.CurrentFreeGroupCounterValue.OrZero()
}

// Approximator estimates a lagging facility from its fresh sibling.
type Approximator struct {
	capacities CapacityTable
	threshold  float64
}

// ApproximatorOption configures an Approximator.
type ApproximatorOption func(*Approximator)

// WithCapacities replaces the capacity table.
func WithCapacities(table CapacityTable) ApproximatorOption {
	return func(a *Approximator) {
		if table != nil {
			a.capacities = table
		}
	}
}

// WithThreshold overrides the approximation age threshold.
func WithThreshold(minutes int) ApproximatorOption {
	return func(a *Approximator) {
		if minutes > 0 {
			a.threshold = float64(minutes)
		}
	}
}

// NewApproximator constructs an Approximator with the default capacities.
func NewApproximator(opts ...ApproximatorOption) *Approximator {
	a := &Approximator{
		capacities: DefaultCapacities(),
		threshold:  ApproximationThresholdMinutes,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Capacities returns the table used for lookups.
func (a *Approximator) Capacities() CapacityTable {
	return a.capacities
}

// Calculate approximates stale from fresh when stale is old enough and both capacities are known.
func (a *Approximator) Calculate(stale, fresh *APIRecord, now time.Time) ApproximationInfo {
	if stale == nil || fresh == nil {
		return ApproximationInfo{Reason: reasonMissingData}
	}

	staleAge := DataAge(stale.Timestamp, now)
	original := stale.CurrentFreeGroupCounterValue.OrZero()
	if staleAge < a.threshold {
		return passThrough(original, staleAge)
	}

	staleMax, okStale := a.capacities.MaxCapacity(stale.ParkingGroupName)
	freshMax, okFresh := a.capacities.MaxCapacity(fresh.ParkingGroupName)
	if !okStale || !okFresh {
		info := passThrough(original, staleAge)
		info.Reason = reasonUnknownCapacity
		return info
	}

	freshFree := fresh.CurrentFreeGroupCounterValue.OrZero()
	ratio := freshFree / float64(freshMax)
	approximated := math.Round(ratio * float64(staleMax))
	return ApproximationInfo{
		IsApproximated: true,
		Original:       &original,
		Approximated:   &approximated,
		AgeMinutes:     ageMinutes(staleAge),
		FreshRatio:     &ratio,
		Calculation:    fmt.Sprintf("(%s / %d) * %d = %s", formatNumber(freshFree), freshMax, staleMax, formatNumber(approximated)),
	}
}

// Apply attaches approximation info to each record.
// Only a pair of facilities where exactly one side is stale gets approximated.
func (a *Approximator) Apply(records []APIRecord, now time.Time) []Facility {
	out := make([]Facility, 0, len(records))
	if len(records) != 2 {
		for _, record := range records {
			age := DataAge(record.Timestamp, now)
			out = append(out, Facility{
				APIRecord:     record,
				Approximation: passThrough(record.CurrentFreeGroupCounterValue.OrZero(), age),
			})
		}
		return out
	}

	first, second := records[0], records[1]
	age1 := DataAge(first.Timestamp, now)
	age2 := DataAge(second.Timestamp, now)
	firstStale := age1 >= a.threshold && age2 < a.threshold
	secondStale := age2 >= a.threshold && age1 < a.threshold

	out = append(out, a.facility(first, second, age1, firstStale, now))
	out = append(out, a.facility(second, first, age2, secondStale, now))
	return out
}

func (a *Approximator) facility(record, sibling APIRecord, age float64, stale bool, now time.Time) Facility {
	if stale {
		return Facility{APIRecord: record, Approximation: a.Calculate(&record, &sibling, now)}
	}
	return Facility{
		APIRecord:     record,
		Approximation: passThrough(record.CurrentFreeGroupCounterValue.OrZero(), age),
	}
}

var defaultApproximator = NewApproximator()

// CalculateApproximation uses the built-in capacities and threshold.
func CalculateApproximation(stale, fresh *APIRecord, now time.Time) ApproximationInfo {
	return defaultApproximator.Calculate(stale, fresh, now)
}

// ApplyApproximations uses the built-in capacities and threshold.
func ApplyApproximations(records []APIRecord, now time.Time) []Facility {
	return defaultApproximator.Apply(records, now)
}

func passThrough(value, age float64) ApproximationInfo {
	original := value
	approximated := value
	return ApproximationInfo{
		Original:     &original,
		Approximated: &approximated,
		AgeMinutes:   ageMinutes(age),
	}
}

func ageMinutes(age float64) *int {
	if math.IsInf(age, 0) || math.IsNaN(age) {
		return nil
	}
	minutes := int(age)
	return &minutes
}
