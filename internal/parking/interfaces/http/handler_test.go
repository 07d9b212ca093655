package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parking-monitor/internal/parking/application"
	"parking-monitor/internal/parking/domain"
)

const tsLayout = "2006-01-02 15:04:05"

type stubReporter struct{ state application.RefreshState }

func (s stubReporter) State() application.RefreshState { return s.state }

type stubResumer struct {
	calls int
	err   error
}

func (s *stubResumer) Resume() error {
	s.calls++
	return s.err
}

func newTestHandler(t *testing.T, now time.Time, opts ...Option) (*Handler, *application.Store) {
	t.Helper()
	store := application.NewStore(nil, nil)
	opts = append([]Option{WithNow(func() time.Time { return now })}, opts...)
	h, err := NewHandler(store, domain.NewApproximator(), opts...)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h, store
}

func TestHandler_ParkingApproximatesStaleSide(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 2, 0, 0, time.Local)
	h, store := newTestHandler(t, now)
	store.SetRealtimeData([]domain.APIRecord{
		{ParkingGroupName: "GreenDay", CurrentFreeGroupCounterValue: domain.NewFreeCount(100), Timestamp: now.Add(-60 * time.Minute).Format(tsLayout)},
		{ParkingGroupName: "Bank_1", CurrentFreeGroupCounterValue: domain.NewFreeCount(20), Timestamp: now.Add(-2 * time.Minute).Format(tsLayout)},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/parking", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Facilities []struct {
			Name              string  `json:"name"`
			DisplayValue      float64 `json:"displayValue"`
			Stale             bool    `json:"stale"`
			AgeClass          string  `json:"ageClass"`
			ApproximationInfo struct {
				IsApproximated bool `json:"isApproximated"`
			} `json:"approximationInfo"`
		} `json:"facilities"`
		TotalFree float64 `json:"totalFree"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Facilities) != 2 {
		t.Fatalf("expected 2 facilities, got %d", len(resp.Facilities))
	}
	gd := resp.Facilities[0]
	if gd.Name != "GreenDay" || !gd.ApproximationInfo.IsApproximated || gd.DisplayValue != 91 {
		t.Fatalf("unexpected greenday view: %+v", gd)
	}
	if !gd.Stale || gd.AgeClass != "age-old" {
		t.Fatalf("expected stale greenday, got %+v", gd)
	}
	uni := resp.Facilities[1]
	if uni.Name != "Uni Wroc" || uni.Stale || uni.ApproximationInfo.IsApproximated {
		t.Fatalf("unexpected uni view: %+v", uni)
	}
	if resp.TotalFree != 111 {
		t.Fatalf("expected total 111, got %v", resp.TotalFree)
	}
}

func TestHandler_HistoryWindow(t *testing.T) {
	h, store := newTestHandler(t, time.Now())
	rows := []domain.HistoryRow{}
	for i, v := range []string{"10", "20", "30", "40"} {
		rows = append(rows, domain.HistoryRow{
			domain.ColumnGDTime:  time.Date(2024, 5, 1, 10, i*10, 0, 0, time.Local).Format(tsLayout),
			domain.ColumnGDValue: v,
		})
	}
	store.SetHistoryData(rows)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history?from=2024-05-01+10:12:00&to=2024-05-01+10:18:00", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Series map[string][]domain.Point `json:"series"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	gd := resp.Series["gd"]
	if len(gd) != 2 || gd[0].V != 20 || gd[1].V != 30 {
		t.Fatalf("expected connectors 20 and 30, got %+v", gd)
	}
	if len(resp.Series["uni"]) != 0 {
		t.Fatalf("expected empty uni series, got %+v", resp.Series["uni"])
	}
}

func TestHandler_HistoryRejectsBadWindow(t *testing.T) {
	h, _ := newTestHandler(t, time.Now())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history?from=garbage", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_StatusReportsPhase(t *testing.T) {
	h, _ := newTestHandler(t, time.Now(), WithStateReporter(stubReporter{state: application.StateIdle}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Phase != "idle" || !resp.RealtimeLoading {
		t.Fatalf("unexpected status %+v", resp)
	}
}

func TestHandler_RefreshWithoutCallback(t *testing.T) {
	h, store := newTestHandler(t, time.Now())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	calls := 0
	store.SetRefreshCallback(func(context.Context) error {
		calls++
		return nil
	})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	if rec.Code != http.StatusOK || calls != 1 {
		t.Fatalf("expected refresh to run once, got code=%d calls=%d", rec.Code, calls)
	}

	store.SetRefreshCallback(func(context.Context) error { return errors.New("feed down") })
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestHandler_ClearAndResume(t *testing.T) {
	resumer := &stubResumer{}
	h, store := newTestHandler(t, time.Now(), WithResumer(resumer))

	stopped := false
	store.SetStopAutoRefresh(func() { stopped = true })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/clear", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !store.CacheCleared() || !stopped {
		t.Fatalf("expected cache cleared and auto-refresh stopped")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/resume", nil))
	if rec.Code != http.StatusOK || resumer.calls != 1 {
		t.Fatalf("expected resume, got code=%d calls=%d", rec.Code, resumer.calls)
	}
}

func TestHandler_MethodAndRouteChecks(t *testing.T) {
	h, _ := newTestHandler(t, time.Now())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/parking", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/resume", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandler_Exports(t *testing.T) {
	h, _ := newTestHandler(t, time.Now())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exports/status.pdf", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Fatalf("expected pdf, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exports/history.xlsx", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("expected xlsx, got %d", rec.Code)
	}
}

func TestHandler_ParkingFlagsIncompleteRecords(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 2, 0, 0, time.Local)
	h, store := newTestHandler(t, now)
	store.SetRealtimeData([]domain.APIRecord{
		{ParkingGroupName: "GreenDay", CurrentFreeGroupCounterValue: domain.NewFreeCount(100)},
		{ParkingGroupName: "Bank_1", CurrentFreeGroupCounterValue: domain.NewFreeCount(20), Timestamp: now.Add(-2 * time.Minute).Format(tsLayout)},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/parking", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Facilities []struct {
			Name  string `json:"name"`
			Valid bool   `json:"valid"`
		} `json:"facilities"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Facilities) != 2 {
		t.Fatalf("expected 2 facilities, got %d", len(resp.Facilities))
	}
	if resp.Facilities[0].Valid {
		t.Fatalf("expected record without timestamp to be invalid, got %+v", resp.Facilities[0])
	}
	if !resp.Facilities[1].Valid {
		t.Fatalf("expected complete record to be valid, got %+v", resp.Facilities[1])
	}
}
