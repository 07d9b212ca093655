package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"parking-monitor/internal/parking/application"
	"parking-monitor/internal/parking/domain"
	"parking-monitor/internal/parking/interfaces/export"
)

// StateReporter exposes the orchestrator's refresh phase.
type StateReporter interface {
	State() application.RefreshState
}

// Resumer restarts background refreshing after a cache clear.
type Resumer interface {
	Resume() error
}

// Handler provides parking HTTP endpoints.
type Handler struct {
	store        *application.Store
	approximator *domain.Approximator
	reporter     StateReporter
	resumer      Resumer
	locale       string
	staleMinutes float64
	now          func() time.Time
	logger       *log.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithStateReporter wires the refresh phase into /status.
func WithStateReporter(reporter StateReporter) Option {
	return func(h *Handler) { h.reporter = reporter }
}

// WithResumer wires /cache/resume.
func WithResumer(resumer Resumer) Option {
	return func(h *Handler) { h.resumer = resumer }
}

// WithLocale sets the locale used for formatted times.
func WithLocale(locale string) Option {
	return func(h *Handler) {
		if locale != "" {
			h.locale = locale
		}
	}
}

// WithStaleMinutes sets the age at which a reading is flagged stale.
func WithStaleMinutes(minutes int) Option {
	return func(h *Handler) {
		if minutes > 0 {
			h.staleMinutes = float64(minutes)
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a handler.
func NewHandler(store *application.Store, approximator *domain.Approximator, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, errors.New("parking handler: nil store")
	}
	if approximator == nil {
		approximator = domain.NewApproximator()
	}
	h := &Handler{
		store:        store,
		approximator: approximator,
		locale:       "pl-PL",
		staleMinutes: domain.DisplayStaleMinutes,
		now:          time.Now,
		logger:       log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles /api/v1/parking, /api/v1/history and the control routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/parking":
		h.get(w, r, h.handleParking)
	case "/api/v1/history":
		h.get(w, r, h.handleHistory)
	case "/api/v1/history/stats":
		h.get(w, r, h.handleStats)
	case "/api/v1/status":
		h.get(w, r, h.handleStatus)
	case "/api/v1/refresh":
		h.post(w, r, h.handleRefresh)
	case "/api/v1/cache/clear":
		h.post(w, r, h.handleClear)
	case "/api/v1/cache/resume":
		h.post(w, r, h.handleResume)
	case "/api/v1/exports/history.xlsx":
		h.get(w, r, h.handleHistoryExport)
	case "/api/v1/exports/status.pdf":
		h.get(w, r, h.handleStatusExport)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	fn(w, r)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	fn(w, r)
}

type facilityView struct {
	domain.Facility
	Name          string          `json:"name"`
	DisplayValue  float64         `json:"displayValue"`
	Capacity      int             `json:"capacity,omitempty"`
	Age           domain.AgeLabel `json:"age"`
	AgeClass      string          `json:"ageClass"`
	Stale         bool            `json:"stale"`
	Valid         bool            `json:"valid"`
	FormattedTime string          `json:"formattedTime"`
}

type parkingResponse struct {
	Facilities []facilityView `json:"facilities"`
	TotalFree  float64        `json:"totalFree"`
	LastUpdate *time.Time     `json:"lastUpdate,omitempty"`
	Loading    bool           `json:"loading"`
	Error      string         `json:"error,omitempty"`
}

func (h *Handler) handleParking(w http.ResponseWriter, r *http.Request) {
	state := h.store.Snapshot()
	now := h.now()
	facilities := h.approximator.Apply(state.RealtimeData, now)

	resp := parkingResponse{
		Facilities: make([]facilityView, 0, len(facilities)),
		LastUpdate: timePtr(state.LastRealtimeUpdate),
		Loading:    state.RealtimeLoading,
		Error:      state.RealtimeError,
	}
	for _, f := range facilities {
		age := domain.DataAge(f.Timestamp, now)
		name := domain.NormalizeParkingName(f.ParkingGroupName)
		capacity, _ := h.approximator.Capacities().MaxCapacity(name)
		view := facilityView{
			Facility:      f,
			Name:          name,
			DisplayValue:  f.DisplayValue(),
			Capacity:      capacity,
			Age:           domain.FormatAgeLabel(age),
			AgeClass:      domain.AgeClass(age),
			Stale:         age >= h.staleMinutes,
			Valid:         domain.IsValidRecord(&f.APIRecord),
			FormattedTime: domain.FormatTimestamp(f.Timestamp, h.locale),
		}
		resp.TotalFree += view.DisplayValue
		resp.Facilities = append(resp.Facilities, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	From   *time.Time                `json:"from,omitempty"`
	To     *time.Time                `json:"to,omitempty"`
	Series map[string][]domain.Point `json:"series"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	window, err := domain.ParseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	series := domain.BuildSeries(h.store.Snapshot().HistoryData)
	for key, points := range series {
		series[key] = domain.SliceWithConnectors(points, window)
	}
	writeJSON(w, http.StatusOK, historyResponse{
		From:   timePtr(window.Start),
		To:     timePtr(window.End),
		Series: series,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	series := domain.BuildSeries(h.store.Snapshot().HistoryData)
	out := make(map[string]domain.SeriesStats, len(domain.HistoryColumns))
	for _, col := range domain.HistoryColumns {
		capacity, _ := h.approximator.Capacities().MaxCapacity(col.Name)
		out[col.Key] = domain.ComputeStats(series[col.Key], capacity)
	}
	writeJSON(w, http.StatusOK, out)
}

type statusResponse struct {
	Phase              string     `json:"phase"`
	FetchInProgress    bool       `json:"fetchInProgress"`
	CacheCleared       bool       `json:"cacheCleared"`
	RealtimeLoading    bool       `json:"realtimeLoading"`
	RealtimeError      string     `json:"realtimeError,omitempty"`
	HistoryLoading     bool       `json:"historyLoading"`
	HistoryRows        int        `json:"historyRows"`
	LastRealtimeUpdate *time.Time `json:"lastRealtimeUpdate,omitempty"`
	LastHistoryUpdate  *time.Time `json:"lastHistoryUpdate,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) status() statusResponse {
	state := h.store.Snapshot()
	phase := application.StateIdle.String()
	if h.reporter != nil {
		phase = h.reporter.State().String()
	}
	return statusResponse{
		Phase:              phase,
		FetchInProgress:    state.FetchInProgress,
		CacheCleared:       state.CacheCleared,
		RealtimeLoading:    state.RealtimeLoading,
		RealtimeError:      state.RealtimeError,
		HistoryLoading:     state.HistoryLoading,
		HistoryRows:        len(state.HistoryData),
		LastRealtimeUpdate: timePtr(state.LastRealtimeUpdate),
		LastHistoryUpdate:  timePtr(state.LastHistoryUpdate),
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Refresh(r.Context()); err != nil {
		if errors.Is(err, application.ErrNoRefreshCallback) {
			http.Error(w, "refresh not ready", http.StatusServiceUnavailable)
			return
		}
		h.logger.Printf("parking handler: refresh error: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.store.ClearCache(r.Context())
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	if h.resumer == nil {
		http.Error(w, "resume not available", http.StatusServiceUnavailable)
		return
	}
	if err := h.resumer.Resume(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	series := domain.BuildSeries(h.store.Snapshot().HistoryData)
	data, err := export.BuildHistoryXLSX(series, h.approximator.Capacities())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="parking-history.xlsx"`)
	_, _ = w.Write(data)
}

func (h *Handler) handleStatusExport(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	facilities := h.approximator.Apply(h.store.Snapshot().RealtimeData, now)
	data, err := export.BuildStatusPDF(facilities, now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="parking-status.pdf"`)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
