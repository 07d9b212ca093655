package application

import (
	"context"
	"encoding/json"
	"time"

	"parking-monitor/internal/observability/metrics"
	"parking-monitor/internal/parking/domain"
)

// isoLayout matches JavaScript's Date.toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

type cachePayload[T any] struct {
	Data      []T    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// CacheSnapshot is the persisted history plus its newest readings.
type CacheSnapshot struct {
	Rows      []domain.HistoryRow
	Timestamp string
	Last      domain.LastEntries
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func parseISO(raw string) time.Time {
	t, ok := domain.ParseTimestamp(raw)
	if !ok {
		return time.Time{}
	}
	return t
}

func (o *Orchestrator) readHistorySnapshot(ctx context.Context) CacheSnapshot {
	var payload cachePayload[domain.HistoryRow]
	if !o.readCache(ctx, CacheKeyHistory, &payload) {
		return CacheSnapshot{Rows: []domain.HistoryRow{}}
	}
	rows := payload.Data
	if rows == nil {
		rows = []domain.HistoryRow{}
	}
	return CacheSnapshot{
		Rows:      rows,
		Timestamp: payload.Timestamp,
		Last:      domain.ExtractLastEntry(rows),
	}
}

func (o *Orchestrator) loadRealtimeCache(ctx context.Context) {
	var payload cachePayload[domain.APIRecord]
	if !o.readCache(ctx, CacheKeyRealtime, &payload) {
		return
	}
	o.store.Update(func(st *State) {
		st.RealtimeData = payload.Data
		st.LastRealtimeUpdate = parseISO(payload.Timestamp)
	})
	o.logger.Printf("parking realtime cache loaded: cycle=%s records=%d", CycleIDFromContext(ctx), len(payload.Data))
}

// LoadHistoryCache seeds the store from the persisted history, if any.
func (o *Orchestrator) LoadHistoryCache(ctx context.Context) {
	snapshot := o.readHistorySnapshot(ctx)
	if len(snapshot.Rows) == 0 {
		return
	}
	o.store.Update(func(st *State) {
		st.HistoryData = snapshot.Rows
		st.LastHistoryUpdate = parseISO(snapshot.Timestamp)
	})
	o.logger.Printf("parking history cache loaded: rows=%d", len(snapshot.Rows))
}

// readCache decodes key into out; false on miss or any error.
func (o *Orchestrator) readCache(ctx context.Context, key string, out any) bool {
	raw, err := o.storage.Get(ctx, key)
	if err != nil {
		metrics.IncStorageError("get")
		o.logger.Printf("parking cache read error: key=%s err=%v", key, err)
		return false
	}
	if raw == nil {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		metrics.IncStorageError("decode")
		o.logger.Printf("parking cache decode error: key=%s err=%v", key, err)
		return false
	}
	return true
}

func (o *Orchestrator) writeCache(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		metrics.IncStorageError("encode")
		o.logger.Printf("parking cache encode error: key=%s err=%v", key, err)
		return
	}
	if err := o.storage.Set(ctx, key, raw); err != nil {
		metrics.IncStorageError("set")
		o.logger.Printf("parking cache write error: key=%s err=%v", key, err)
	}
}

func (o *Orchestrator) persistHistory(ctx context.Context, rows []domain.HistoryRow) {
	if rows == nil {
		rows = []domain.HistoryRow{}
	}
	now := o.clock.Now()
	o.store.Update(func(st *State) {
		st.HistoryData = rows
		st.LastHistoryUpdate = now
	})
	o.writeCache(ctx, CacheKeyHistory, cachePayload[domain.HistoryRow]{Data: rows, Timestamp: formatISO(now)})
	o.logger.Printf("parking history cache updated: cycle=%s rows=%d", CycleIDFromContext(ctx), len(rows))
}
