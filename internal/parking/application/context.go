package application

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const contextKeyCycle contextKey = "parking.cycle_id"

// WithCycleID tags ctx with a refresh cycle id.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, contextKeyCycle, cycleID)
}

// CycleIDFromContext returns the refresh cycle id, or "-" when absent.
func CycleIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return "-"
	}
	if id, ok := ctx.Value(contextKeyCycle).(string); ok && id != "" {
		return id
	}
	return "-"
}

func newCycleID() string {
	return uuid.NewString()
}
