package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"parking-monitor/internal/parking/application"
	"parking-monitor/internal/parking/domain"
)

// SSEBroker fans out store changes to connected clients.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan []byte]struct{})}
}

type stateEvent struct {
	RealtimeData       []domain.APIRecord `json:"realtimeData"`
	RealtimeLoading    bool               `json:"realtimeLoading"`
	RealtimeError      string             `json:"realtimeError,omitempty"`
	LastRealtimeUpdate *time.Time         `json:"lastRealtimeUpdate,omitempty"`
	HistoryLoading     bool               `json:"historyLoading"`
	HistoryRows        int                `json:"historyRows"`
	LastHistoryUpdate  *time.Time         `json:"lastHistoryUpdate,omitempty"`
	FetchInProgress    bool               `json:"fetchInProgress"`
	CacheCleared       bool               `json:"cacheCleared"`
}

// Watch forwards every store change to subscribers until the returned func is called.
func (b *SSEBroker) Watch(store *application.Store) func() {
	if b == nil || store == nil {
		return func() {}
	}
	return store.Subscribe(b.Notify)
}

// Notify broadcasts one state change.
func (b *SSEBroker) Notify(state application.State) {
	if b == nil {
		return
	}
	payload, err := encodeState(state)
	if err != nil {
		return
	}
	b.broadcast(payload)
}

func encodeState(state application.State) ([]byte, error) {
	return json.Marshal(stateEvent{
		RealtimeData:       state.RealtimeData,
		RealtimeLoading:    state.RealtimeLoading,
		RealtimeError:      state.RealtimeError,
		LastRealtimeUpdate: timePtr(state.LastRealtimeUpdate),
		HistoryLoading:     state.HistoryLoading,
		HistoryRows:        len(state.HistoryData),
		LastHistoryUpdate:  timePtr(state.LastHistoryUpdate),
		FetchInProgress:    state.FetchInProgress,
		CacheCleared:       state.CacheCleared,
	})
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

func (b *SSEBroker) broadcast(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// StreamHandler serves the store change stream.
type StreamHandler struct {
	broker *SSEBroker
	store  *application.Store
}

// NewStreamHandler constructs a stream handler. When store is set, each new
// client receives the current state right after the ready event.
func NewStreamHandler(broker *SSEBroker, store *application.Store) *StreamHandler {
	return &StreamHandler{broker: broker, store: store}
}

// ServeHTTP handles GET /api/v1/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	if h.store != nil {
		if payload, err := encodeState(h.store.Snapshot()); err == nil {
			writeStateEvent(w, payload)
		}
	}
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			writeStateEvent(w, payload)
			flusher.Flush()
		case <-done:
			return
		}
	}
}

func writeStateEvent(w http.ResponseWriter, payload []byte) {
	_, _ = w.Write([]byte("event: state\ndata: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
