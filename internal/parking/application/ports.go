package application

import (
	"context"
	"time"

	"parking-monitor/internal/parking/domain"
)

// Cache keys shared with the client apps.
const (
	CacheKeyRealtime = "parking_realtime_cache"
	CacheKeyHistory  = "parking_history_cache"
)

// Storage is a best-effort key/value mirror of the store.
// Get returns nil without error when the key is absent.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Clearer is implemented by storages that own a dedicated namespace and can drop it at once.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Fetcher retrieves remote documents.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string, out any) error
	FetchText(ctx context.Context, url string) (string, error)
}

// HistoryParser turns a history document into header-keyed rows.
// Malformed input yields no rows.
type HistoryParser interface {
	Parse(text string) []domain.HistoryRow
}

// FormSubmitter forwards a reading pair to the external form.
// Outcomes are not observable by the caller.
type FormSubmitter interface {
	Submit(ctx context.Context, gd, uni domain.APIRecord)
}

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }
