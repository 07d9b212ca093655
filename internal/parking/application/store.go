package application

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"parking-monitor/internal/parking/domain"
)

// ErrNoRefreshCallback is returned by Refresh before a refresher is registered.
var ErrNoRefreshCallback = errors.New("parking store: refresh callback not set")

// State is a point-in-time copy of the store.
// Zero times mean "never updated".
type State struct {
	RealtimeData       []domain.APIRecord
	RealtimeLoading    bool
	RealtimeError      string
	LastRealtimeUpdate time.Time
	HistoryData        []domain.HistoryRow
	HistoryLoading     bool
	LastHistoryUpdate  time.Time
	FetchInProgress    bool
	CacheCleared       bool
}

func initialState() State {
	return State{
		RealtimeData:    []domain.APIRecord{},
		RealtimeLoading: true,
		HistoryData:     []domain.HistoryRow{},
	}
}

// Store holds realtime and history data for readers.
// The orchestrator writes data fields; everything else only reads and subscribes.
type Store struct {
	mu              sync.RWMutex
	state           State
	refreshCallback func(context.Context) error
	stopAutoRefresh func()

	subMu       sync.RWMutex
	subscribers map[int]func(State)
	nextSubID   int

	storage Storage
	logger  *log.Logger
}

// NewStore constructs a store; storage may be nil.
func NewStore(storage Storage, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{
		state:       initialState(),
		subscribers: make(map[int]func(State)),
		storage:     storage,
		logger:      logger,
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyState()
}

func (s *Store) copyState() State {
	out := s.state
	out.RealtimeData = append([]domain.APIRecord(nil), s.state.RealtimeData...)
	out.HistoryData = append([]domain.HistoryRow(nil), s.state.HistoryData...)
	return out
}

// Subscribe registers fn for every change and returns its cancel func.
func (s *Store) Subscribe(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) update(apply func(*State)) {
	s.mu.Lock()
	apply(&s.state)
	snapshot := s.copyState()
	s.mu.Unlock()
	s.publish(snapshot)
}

func (s *Store) publish(state State) {
	s.subMu.RLock()
	handlers := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		handlers = append(handlers, fn)
	}
	s.subMu.RUnlock()
	for _, fn := range handlers {
		fn(state)
	}
}

// Update applies several field changes as one notification.
func (s *Store) Update(apply func(*State)) {
	if apply == nil {
		return
	}
	s.update(apply)
}

// SetRealtimeData replaces the live readings.
func (s *Store) SetRealtimeData(data []domain.APIRecord) {
	s.update(func(st *State) { st.RealtimeData = data })
}

// SetRealtimeLoading sets the realtime loading flag.
func (s *Store) SetRealtimeLoading(loading bool) {
	s.update(func(st *State) { st.RealtimeLoading = loading })
}

// SetRealtimeError sets the user-visible fetch error; empty clears it.
func (s *Store) SetRealtimeError(msg string) {
	s.update(func(st *State) { st.RealtimeError = msg })
}

// SetHistoryData replaces the history rows.
func (s *Store) SetHistoryData(rows []domain.HistoryRow) {
	s.update(func(st *State) { st.HistoryData = rows })
}

// SetHistoryLoading sets the history loading flag.
func (s *Store) SetHistoryLoading(loading bool) {
	s.update(func(st *State) { st.HistoryLoading = loading })
}

// SetLastHistoryUpdate stamps the last history refresh.
func (s *Store) SetLastHistoryUpdate(ts time.Time) {
	s.update(func(st *State) { st.LastHistoryUpdate = ts })
}

// SetFetchInProgress mirrors the orchestrator's in-flight flag.
func (s *Store) SetFetchInProgress(inProgress bool) {
	s.update(func(st *State) { st.FetchInProgress = inProgress })
}

// SetCacheCleared toggles the flag that suspends background fetching.
func (s *Store) SetCacheCleared(cleared bool) {
	s.update(func(st *State) { st.CacheCleared = cleared })
}

// CacheCleared reports whether background fetching is suspended.
func (s *Store) CacheCleared() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CacheCleared
}

// HistoryLen returns the number of in-memory history rows.
func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.HistoryData)
}

// SetRefreshCallback registers the manual refresh entry point.
func (s *Store) SetRefreshCallback(fn func(context.Context) error) {
	s.mu.Lock()
	s.refreshCallback = fn
	s.mu.Unlock()
}

// SetStopAutoRefresh registers the func that cancels the refresh timer.
func (s *Store) SetStopAutoRefresh(fn func()) {
	s.mu.Lock()
	s.stopAutoRefresh = fn
	s.mu.Unlock()
}

// Refresh runs the registered refresh callback.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	fn := s.refreshCallback
	s.mu.RUnlock()
	if fn == nil {
		s.logger.Printf("parking store: refresh callback not set yet")
		return ErrNoRefreshCallback
	}
	return fn(ctx)
}

// ResetStore restores every field and callback to its initial value.
func (s *Store) ResetStore() {
	s.mu.Lock()
	s.refreshCallback = nil
	s.stopAutoRefresh = nil
	s.mu.Unlock()
	s.update(func(st *State) { *st = initialState() })
}

// ClearCache drops both persisted caches and suspends background fetching.
// In-memory data is kept.
func (s *Store) ClearCache(ctx context.Context) {
	s.dropPersisted(ctx)

	s.update(func(st *State) {
		st.FetchInProgress = false
		st.CacheCleared = true
	})

	s.mu.RLock()
	stop := s.stopAutoRefresh
	s.mu.RUnlock()
	if stop != nil {
		s.callStop(stop)
	}
	s.logger.Printf("parking store: cache cleared and auto-refresh stopped")
}

// dropPersisted clears the storage namespace when supported, otherwise the two cache keys.
func (s *Store) dropPersisted(ctx context.Context) {
	if s.storage == nil {
		return
	}
	if clearer, ok := s.storage.(Clearer); ok {
		if err := clearer.Clear(ctx); err != nil {
			s.logger.Printf("parking store: cache clear error: err=%v", err)
		}
		return
	}
	for _, key := range []string{CacheKeyRealtime, CacheKeyHistory} {
		if err := s.storage.Remove(ctx, key); err != nil {
			s.logger.Printf("parking store: cache remove error: key=%s err=%v", key, err)
		}
	}
}

func (s *Store) callStop(stop func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("parking store: stop auto-refresh failed: %v", r)
		}
	}()
	stop()
}
