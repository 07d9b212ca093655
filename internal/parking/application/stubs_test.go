package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"parking-monitor/internal/parking/domain"
)

const (
	gdURL  = "https://feed.test/gd"
	uniURL = "https://feed.test/uni"
	csvURL = "https://feed.test/history.csv"
)

type stubStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	sets    map[string]int
	removed []string
	failSet bool
}

func newStubStorage() *stubStorage {
	return &stubStorage{data: map[string][]byte{}, sets: map[string]int{}}
}

func (s *stubStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *stubStorage) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errors.New("quota exceeded")
	}
	s.data[key] = value
	s.sets[key]++
	return nil
}

func (s *stubStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	s.removed = append(s.removed, key)
	return nil
}

func (s *stubStorage) setCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[key]
}

func (s *stubStorage) putHistory(t *testing.T, rows []domain.HistoryRow) {
	t.Helper()
	raw, err := json.Marshal(cachePayload[domain.HistoryRow]{Data: rows, Timestamp: "2024-05-01T08:00:00.000Z"})
	if err != nil {
		t.Fatalf("marshal history: %v", err)
	}
	s.data[CacheKeyHistory] = raw
}

func (s *stubStorage) history(t *testing.T) cachePayload[domain.HistoryRow] {
	t.Helper()
	var payload cachePayload[domain.HistoryRow]
	s.mu.Lock()
	raw := s.data[CacheKeyHistory]
	s.mu.Unlock()
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	return payload
}

type stubFetcher struct {
	mu        sync.Mutex
	records   map[string]domain.APIRecord
	errs      map[string]error
	text      string
	jsonCalls int
	textCalls int
	started   chan struct{}
	release   chan struct{}
}

func (f *stubFetcher) FetchJSON(ctx context.Context, url string, out any) error {
	f.mu.Lock()
	f.jsonCalls++
	started, release := f.started, f.release
	rec, err := f.records[url], f.errs[url]
	f.mu.Unlock()
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	*(out.(*domain.APIRecord)) = rec
	return nil
}

func (f *stubFetcher) FetchText(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	return f.text, nil
}

func (f *stubFetcher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jsonCalls, f.textCalls
}

// stubParser ignores the text and returns fixed rows.
type stubParser struct {
	rows []domain.HistoryRow
}

func (p stubParser) Parse(string) []domain.HistoryRow {
	return append([]domain.HistoryRow(nil), p.rows...)
}

type submission struct {
	gd  domain.APIRecord
	uni domain.APIRecord
}

type stubSubmitter struct {
	mu    sync.Mutex
	calls []submission
}

func (s *stubSubmitter) Submit(_ context.Context, gd, uni domain.APIRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, submission{gd: gd, uni: uni})
}

func (s *stubSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func apiRecord(name string, value float64, ts string) domain.APIRecord {
	return domain.APIRecord{
		ParkingGroupName:             name,
		CurrentFreeGroupCounterValue: domain.NewFreeCount(value),
		Timestamp:                    ts,
	}
}

func historyRow(gdTime, gdValue, uniTime, uniValue string) domain.HistoryRow {
	return domain.HistoryRow{
		"gd_time":       gdTime,
		"greenday free": gdValue,
		"uni_time":      uniTime,
		"uni free":      uniValue,
	}
}

type fixture struct {
	store     *Store
	storage   *stubStorage
	fetcher   *stubFetcher
	submitter *stubSubmitter
	orch      *Orchestrator
}

func newFixture(t *testing.T, csvRows []domain.HistoryRow) *fixture {
	t.Helper()
	storage := newStubStorage()
	store := NewStore(storage, nil)
	fetcher := &stubFetcher{
		records: map[string]domain.APIRecord{
			gdURL:  apiRecord("GreenDay", 100, "2024-05-01 10:00:00"),
			uniURL: apiRecord("Bank_1", 20, "2024-05-01 10:00:00"),
		},
		errs: map[string]error{},
		text: "csv",
	}
	submitter := &stubSubmitter{}
	orch, err := NewOrchestrator(store, storage, fetcher, stubParser{rows: csvRows},
		Endpoints{Realtime: []string{gdURL, uniURL}, History: csvURL},
		WithSubmitter(submitter),
		WithClock(fixedClock{now: time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)}),
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return &fixture{store: store, storage: storage, fetcher: fetcher, submitter: submitter, orch: orch}
}
