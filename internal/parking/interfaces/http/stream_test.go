package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parking-monitor/internal/parking/application"
)

func TestSSEBroker_WatchForwardsStoreChanges(t *testing.T) {
	store := application.NewStore(nil, nil)
	broker := NewSSEBroker()
	cancel := broker.Watch(store)
	defer cancel()

	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	store.SetFetchInProgress(true)

	select {
	case payload := <-ch:
		var event stateEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !event.FetchInProgress {
			t.Fatalf("expected fetchInProgress, got %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected state event")
	}
}

func TestStreamHandler_SendsReadyThenState(t *testing.T) {
	broker := NewSSEBroker()
	srv := httptest.NewServer(NewStreamHandler(broker, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "event: ready" {
		t.Fatalf("expected ready event, got %q %v", line, err)
	}
	_, _ = reader.ReadString('\n')
	_, _ = reader.ReadString('\n')

	broker.Notify(application.State{CacheCleared: true})

	line, err = reader.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "event: state" {
		t.Fatalf("expected state event, got %q %v", line, err)
	}
	data, err := reader.ReadString('\n')
	if err != nil || !strings.Contains(data, `"cacheCleared":true`) {
		t.Fatalf("unexpected data line %q %v", data, err)
	}
}

func TestStreamHandler_RejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStreamHandler(NewSSEBroker(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/stream", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestStreamHandler_NewClientGetsCurrentState(t *testing.T) {
	store := application.NewStore(nil, nil)
	store.SetCacheCleared(true)
	srv := httptest.NewServer(NewStreamHandler(NewSSEBroker(), store))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "event: ready" {
		t.Fatalf("expected ready event, got %q %v", line, err)
	}
	_, _ = reader.ReadString('\n')
	_, _ = reader.ReadString('\n')

	line, err = reader.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "event: state" {
		t.Fatalf("expected initial state event, got %q %v", line, err)
	}
	data, err := reader.ReadString('\n')
	if err != nil || !strings.Contains(data, `"cacheCleared":true`) {
		t.Fatalf("unexpected data line %q %v", data, err)
	}
}
