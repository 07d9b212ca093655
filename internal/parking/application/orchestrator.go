package application

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"parking-monitor/internal/observability/metrics"
	"parking-monitor/internal/parking/domain"
)

// RefreshState is the orchestrator's position within a refresh cycle.
type RefreshState int32

const (
	StateIdle RefreshState = iota
	StateFetchingRealtime
	StateCheckingHistory
	StateFastPathSatisfied
	StateFetchingHistoryCSV
	StateSubmittingNewRow
)

func (s RefreshState) String() string {
	switch s {
	case StateFetchingRealtime:
		return "fetching_realtime"
	case StateCheckingHistory:
		return "checking_history"
	case StateFastPathSatisfied:
		return "fast_path_satisfied"
	case StateFetchingHistoryCSV:
		return "fetching_history_csv"
	case StateSubmittingNewRow:
		return "submitting_new_row"
	default:
		return "idle"
	}
}

// Endpoints lists the remote sources of one refresh cycle.
// Realtime URLs are ordered GreenDay first, Uni second.
type Endpoints struct {
	Realtime []string
	History  string
}

// Orchestrator runs the fetch, cache and reconcile cycle.
type Orchestrator struct {
	store        *Store
	storage      Storage
	fetcher      Fetcher
	parser       HistoryParser
	submitter    FormSubmitter
	approximator *domain.Approximator
	clock        Clock
	logger       *log.Logger
	endpoints    Endpoints

	inFlight atomic.Bool
	state    atomic.Int32
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSubmitter sets the form submitter.
func WithSubmitter(submitter FormSubmitter) Option {
	return func(o *Orchestrator) {
		o.submitter = submitter
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithApproximator overrides the approximator used for facility metrics.
func WithApproximator(approximator *domain.Approximator) Option {
	return func(o *Orchestrator) {
		if approximator != nil {
			o.approximator = approximator
		}
	}
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(store *Store, storage Storage, fetcher Fetcher, parser HistoryParser, endpoints Endpoints, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("parking orchestrator: nil store")
	}
	if storage == nil {
		return nil, errors.New("parking orchestrator: nil storage")
	}
	if fetcher == nil {
		return nil, errors.New("parking orchestrator: nil fetcher")
	}
	if parser == nil {
		return nil, errors.New("parking orchestrator: nil history parser")
	}
	if len(endpoints.Realtime) == 0 {
		return nil, errors.New("parking orchestrator: no realtime endpoints")
	}
	o := &Orchestrator{
		store:        store,
		storage:      storage,
		fetcher:      fetcher,
		parser:       parser,
		approximator: domain.NewApproximator(),
		clock:        SystemClock{},
		logger:       log.New(io.Discard, "", 0),
		endpoints:    endpoints,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the current cycle state.
func (o *Orchestrator) State() RefreshState {
	return RefreshState(o.state.Load())
}

func (o *Orchestrator) setState(s RefreshState) {
	o.state.Store(int32(s))
}

// FetchRealtime runs one refresh cycle. A call made while another cycle is
// running, or after the cache was cleared, returns nil without doing anything.
// Fetch failures are recorded in the store and returned.
func (o *Orchestrator) FetchRealtime(ctx context.Context) error {
	if o.store.CacheCleared() {
		metrics.IncRefreshSkipped("cache_cleared")
		o.logger.Printf("parking refresh skipped: cache cleared")
		return nil
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		metrics.IncRefreshSkipped("in_flight")
		o.logger.Printf("parking refresh skipped: fetch already in progress")
		return nil
	}

	ctx = WithCycleID(ctx, newCycleID())
	start := time.Now()
	o.setState(StateFetchingRealtime)
	o.store.Update(func(st *State) {
		st.FetchInProgress = true
		st.RealtimeLoading = true
		st.RealtimeError = ""
	})
	defer func() {
		o.store.Update(func(st *State) {
			st.RealtimeLoading = false
			st.FetchInProgress = false
		})
		o.setState(StateIdle)
		o.inFlight.Store(false)
	}()

	o.loadRealtimeCache(ctx)

	results, err := o.fetchAll(ctx)
	if err != nil {
		o.store.SetRealtimeError(err.Error())
		metrics.ObserveRefresh(metrics.ResultError, time.Since(start))
		o.logger.Printf("parking realtime fetch error: cycle=%s err=%v", CycleIDFromContext(ctx), err)
		return err
	}

	now := o.clock.Now()
	o.store.Update(func(st *State) {
		st.RealtimeData = results
		st.LastRealtimeUpdate = now
	})
	o.writeCache(ctx, CacheKeyRealtime, cachePayload[domain.APIRecord]{Data: results, Timestamp: formatISO(now)})
	o.publishFacilities(results, now)

	o.CheckAndUpdateHistory(ctx, results)
	metrics.ObserveRefresh(metrics.ResultSuccess, time.Since(start))
	return nil
}

// fetchAll fetches every realtime endpoint concurrently; any failure fails the set.
func (o *Orchestrator) fetchAll(ctx context.Context) ([]domain.APIRecord, error) {
	results := make([]domain.APIRecord, len(o.endpoints.Realtime))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range o.endpoints.Realtime {
		i, url := i, url
		g.Go(func() error {
			var record domain.APIRecord
			if err := o.fetcher.FetchJSON(gctx, url, &record); err != nil {
				return err
			}
			results[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) publishFacilities(results []domain.APIRecord, now time.Time) {
	for _, facility := range o.approximator.Apply(results, now) {
		if !domain.IsValidRecord(&facility.APIRecord) {
			o.logger.Printf("parking facility metrics skipped: incomplete record name=%q", facility.ParkingGroupName)
			continue
		}
		name := domain.NormalizeParkingName(facility.ParkingGroupName)
		metrics.SetFacility(name, facility.Approximation.AgeMinutes, facility.Approximation.IsApproximated)
	}
}

// CheckAndUpdateHistory reconciles live readings with the history cache.
// The history document is refetched only when the cache does not already
// cover both live timestamps. Genuinely new readings are submitted to the
// form and appended to the cache.
func (o *Orchestrator) CheckAndUpdateHistory(ctx context.Context, apiResults []domain.APIRecord) {
	o.setState(StateCheckingHistory)
	cycle := CycleIDFromContext(ctx)

	apiGD := domain.ParseAPIEntry(recordAt(apiResults, 0))
	apiUni := domain.ParseAPIEntry(recordAt(apiResults, 1))
	o.logger.Printf("parking api timestamps: cycle=%s gd=%s uni=%s", cycle, entryTime(apiGD), entryTime(apiUni))

	snapshot := o.readHistorySnapshot(ctx)
	if len(snapshot.Rows) > 0 && o.store.HistoryLen() == 0 {
		o.seedHistory(snapshot)
	}

	gdSatisfied := apiGD == nil || apiGD.CoveredBy(snapshot.Last.GD)
	uniSatisfied := apiUni == nil || apiUni.CoveredBy(snapshot.Last.Uni)
	if len(snapshot.Rows) > 0 && gdSatisfied && uniSatisfied {
		o.setState(StateFastPathSatisfied)
		metrics.IncReconcile(metrics.PathFast)
		o.logger.Printf("parking fast path hit: cycle=%s", cycle)
		return
	}

	o.setState(StateFetchingHistoryCSV)
	metrics.IncReconcile(metrics.PathSlow)
	o.logger.Printf("parking slow path: cycle=%s fetching history", cycle)
	if err := o.FetchHistory(ctx); err != nil {
		o.logger.Printf("parking history fetch error: cycle=%s err=%v", cycle, err)
	}
	snapshot = o.readHistorySnapshot(ctx)
	if len(snapshot.Rows) > 0 {
		o.seedHistory(snapshot)
	}

	gdNew := apiGD.NewerThan(snapshot.Last.GD)
	uniNew := apiUni.NewerThan(snapshot.Last.Uni)
	if !gdNew && !uniNew {
		o.logger.Printf("parking reconcile: cycle=%s no newer timestamps", cycle)
		return
	}

	payload := domain.CloneAPIResults(apiResults)
	for len(payload) < 2 {
		payload = append(payload, domain.APIRecord{})
	}
	preferCached(&payload[0], apiGD, snapshot.Last.GD)
	preferCached(&payload[1], apiUni, snapshot.Last.Uni)

	o.setState(StateSubmittingNewRow)
	o.submit(ctx, payload)

	rows := make([]domain.HistoryRow, 0, len(snapshot.Rows)+1)
	rows = append(rows, snapshot.Rows...)
	rows = append(rows, domain.BuildCacheRowFromPayload(&payload[0], &payload[1]))
	o.persistHistory(ctx, domain.DedupeHistoryRows(rows))
}

// FetchHistory refetches and stores the full history document.
func (o *Orchestrator) FetchHistory(ctx context.Context) error {
	if o.store.CacheCleared() {
		o.logger.Printf("parking history fetch skipped: cache cleared")
		return nil
	}
	if o.endpoints.History == "" {
		return errors.New("parking orchestrator: no history endpoint")
	}
	o.store.SetHistoryLoading(true)
	defer o.store.SetHistoryLoading(false)

	text, err := o.fetcher.FetchText(ctx, o.endpoints.History)
	if err != nil {
		return err
	}
	rows := domain.DedupeHistoryRows(o.parser.Parse(text))
	o.persistHistory(ctx, rows)
	return nil
}

func (o *Orchestrator) seedHistory(snapshot CacheSnapshot) {
	o.store.Update(func(st *State) {
		st.HistoryData = snapshot.Rows
		if ts := parseISO(snapshot.Timestamp); !ts.IsZero() {
			st.LastHistoryUpdate = ts
		}
	})
}

func (o *Orchestrator) submit(ctx context.Context, payload []domain.APIRecord) {
	if len(payload) < 2 {
		o.logger.Printf("parking form submit skipped: missing data")
		return
	}
	if o.submitter == nil {
		o.logger.Printf("parking form submit skipped: no submitter configured")
		return
	}
	o.submitter.Submit(ctx, payload[0], payload[1])
}

// preferCached replaces record with the cached reading when the live
// timestamp is missing or older than the cache.
func preferCached(record *domain.APIRecord, api, cached *domain.TimestampedEntry) {
	if cached == nil {
		return
	}
	if api != nil && !api.Date.Before(cached.Date) {
		return
	}
	record.Timestamp = cached.Raw
	switch {
	case cached.Value != nil:
		record.CurrentFreeGroupCounterValue = domain.NewFreeCount(*cached.Value)
	case !record.CurrentFreeGroupCounterValue.Valid:
		record.CurrentFreeGroupCounterValue = domain.NewFreeCount(0)
	}
}

func recordAt(results []domain.APIRecord, i int) *domain.APIRecord {
	if i < 0 || i >= len(results) {
		return nil
	}
	return &results[i]
}

func entryTime(entry *domain.TimestampedEntry) string {
	if entry == nil {
		return "-"
	}
	return entry.Date.UTC().Format(time.RFC3339)
}
