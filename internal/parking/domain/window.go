package domain

import "time"

// Point is one charted reading.
type Point struct {
	T   time.Time `json:"t"`
	V   float64   `json:"v"`
	Raw string    `json:"raw"`
}

// Window is a visible time range; a zero bound leaves the window open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Bounded reports whether both edges are set.
func (w Window) Bounded() bool {
	return !w.Start.IsZero() && !w.End.IsZero()
}

// ParseWindow builds a window from two optional timestamps.
func ParseWindow(fromRaw, toRaw string) (Window, error) {
	var w Window
	if fromRaw != "" {
		from, ok := ParseTimestamp(fromRaw)
		if !ok {
			return Window{}, ErrInvalidTimestamp
		}
		w.Start = from
	}
	if toRaw != "" {
		to, ok := ParseTimestamp(toRaw)
		if !ok {
			return Window{}, ErrInvalidTimestamp
		}
		w.End = to
	}
	if w.Bounded() && w.End.Before(w.Start) {
		return Window{}, ErrInvalidWindow
	}
	return w, nil
}

// SliceWithConnectors returns the points inside w plus one neighbour on each side,
// so a line drawn through them reaches the window edges. When nothing falls
// inside, only the nearest point before and after are returned.
// points must be sorted by time.
func SliceWithConnectors(points []Point, w Window) []Point {
	if len(points) == 0 {
		return []Point{}
	}
	if !w.Bounded() {
		return append([]Point(nil), points...)
	}

	firstInside, lastInside := -1, -1
	for i, p := range points {
		if !p.T.Before(w.Start) && !p.T.After(w.End) {
			if firstInside == -1 {
				firstInside = i
			}
			lastInside = i
		}
	}

	result := make([]Point, 0, 4)
	if firstInside != -1 {
		if firstInside > 0 {
			result = append(result, points[firstInside-1])
		}
		result = append(result, points[firstInside:lastInside+1]...)
		if lastInside < len(points)-1 {
			result = append(result, points[lastInside+1])
		}
		return result
	}

	before, after := -1, -1
	for i, p := range points {
		if p.T.Before(w.Start) {
			before = i
		}
		if p.T.After(w.End) && after == -1 {
			after = i
		}
	}
	if before != -1 {
		result = append(result, points[before])
	}
	if after != -1 {
		result = append(result, points[after])
	}
	return result
}
