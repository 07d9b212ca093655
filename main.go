package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"parking-monitor/internal/config"
	"parking-monitor/internal/observability/metrics"
	"parking-monitor/internal/parking/application"
	"parking-monitor/internal/parking/domain"
	"parking-monitor/internal/parking/infrastructure/csvhistory"
	"parking-monitor/internal/parking/infrastructure/feed"
	"parking-monitor/internal/parking/infrastructure/memory"
	"parking-monitor/internal/parking/infrastructure/postgres"
	"parking-monitor/internal/parking/infrastructure/redis"
	"parking-monitor/internal/parking/infrastructure/sqlite"
	parkinghttp "parking-monitor/internal/parking/interfaces/http"
	"parking-monitor/internal/parking/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("timezone error: %v", err)
	}
	time.Local = loc

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, closeStorage, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("storage error: %v", err)
	}
	defer closeStorage()

	store := application.NewStore(storage, logger)
	metrics.Init(store, logger)

	approximator := domain.NewApproximator(
		domain.WithCapacities(domain.DefaultCapacities().Merge(cfg.Capacities)),
		domain.WithThreshold(cfg.Thresholds.ApproximationMinutes),
	)

	fetcher := feed.NewClient(
		feed.WithTimeout(cfg.Feed.RequestTimeout),
		feed.WithCacheBusting(cfg.Feed.CacheBust),
		feed.WithMaxBodyLen(cfg.Feed.MaxBodyBytes),
	)
	opts := []application.Option{
		application.WithLogger(logger),
		application.WithApproximator(approximator),
	}
	if cfg.Form.Enabled {
		submitter := notify.NewGoogleFormSubmitter(cfg.Form.URL, notify.FormEntries{
			GreenDayValue: cfg.Form.Entries.GreenDayValue,
			GreenDayTime:  cfg.Form.Entries.GreenDayTime,
			UniValue:      cfg.Form.Entries.UniValue,
			UniTime:       cfg.Form.Entries.UniTime,
		}, notify.WithFormLogger(logger))
		opts = append(opts, application.WithSubmitter(submitter))
	}

	orchestrator, err := application.NewOrchestrator(store, storage, fetcher, csvhistory.NewParser(), application.Endpoints{
		Realtime: cfg.Feed.RealtimeURLs,
		History:  cfg.Feed.HistoryURL,
	}, opts...)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}
	orchestrator.LoadHistoryCache(ctx)
	store.SetRefreshCallback(orchestrator.FetchRealtime)

	scheduler, err := application.NewScheduler(orchestrator, store, cfg.RefreshInterval, logger)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatalf("scheduler start error: %v", err)
	}
	defer scheduler.Stop()

	broker := parkinghttp.NewSSEBroker()
	stopWatch := broker.Watch(store)
	defer stopWatch()

	parkingHandler, err := parkinghttp.NewHandler(store, approximator,
		parkinghttp.WithStateReporter(orchestrator),
		parkinghttp.WithResumer(scheduler),
		parkinghttp.WithLocale(cfg.Locale),
		parkinghttp.WithStaleMinutes(cfg.Thresholds.StaleMinutes),
		parkinghttp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("parking handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/parking", parkingHandler)
	mux.Handle("/api/v1/history", parkingHandler)
	mux.Handle("/api/v1/history/stats", parkingHandler)
	mux.Handle("/api/v1/status", parkingHandler)
	mux.Handle("/api/v1/refresh", parkingHandler)
	mux.Handle("/api/v1/cache/", parkingHandler)
	mux.Handle("/api/v1/exports/", parkingHandler)
	mux.Handle("/api/v1/stream", parkinghttp.NewStreamHandler(broker, store))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func openStorage(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (application.Storage, func(), error) {
	noop := func() {}
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewStorage(), noop, nil
	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		storage, err := postgres.NewStorage(db, postgres.WithTable(cfg.PostgresTable))
		if err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		if err := storage.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		logger.Printf("storage: postgres table=%s", cfg.PostgresTable)
		return storage, func() { _ = db.Close() }, nil
	case config.DriverRedis:
		client, err := redis.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		storage, err := redis.NewStorage(client, redis.WithPrefix(cfg.RedisPrefix), redis.WithTTL(cfg.RedisTTL))
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		logger.Printf("storage: redis addr=%s prefix=%s", cfg.RedisAddr, cfg.RedisPrefix)
		return storage, func() { _ = client.Close() }, nil
	default:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, noop, err
			}
		}
		storage, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		logger.Printf("storage: sqlite path=%s", cfg.SQLitePath)
		return storage, func() { _ = storage.Close() }, nil
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the event stream working behind the middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
