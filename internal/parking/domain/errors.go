package domain

import "errors"

var (
	// ErrInvalidTimestamp indicates a timestamp that cannot be parsed.
	ErrInvalidTimestamp = errors.New("parking: invalid timestamp")
	// ErrInvalidWindow indicates a history window whose end precedes its start.
	ErrInvalidWindow = errors.New("parking: invalid window")
)
