package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRefreshInterval is the auto-refresh period.
const DefaultRefreshInterval = 5 * time.Minute

// Refresher runs one refresh cycle.
type Refresher interface {
	FetchRealtime(ctx context.Context) error
}

// Scheduler triggers refresh cycles on a fixed interval.
type Scheduler struct {
	refresher Refresher
	store     *Store
	interval  time.Duration
	logger    *log.Logger

	mu     sync.Mutex
	base   context.Context
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewScheduler constructs a Scheduler.
func NewScheduler(refresher Refresher, store *Store, interval time.Duration, logger *log.Logger) (*Scheduler, error) {
	if refresher == nil {
		return nil, errors.New("parking scheduler: nil refresher")
	}
	if store == nil {
		return nil, errors.New("parking scheduler: nil store")
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scheduler{refresher: refresher, store: store, interval: interval, logger: logger}, nil
}

// Start runs a refresh immediately, then every interval until ctx ends or
// Stop is called. Start does nothing while the cache is cleared or when
// already running.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.store.CacheCleared() {
		s.logger.Printf("parking scheduler: cache cleared, auto-refresh not started")
		return nil
	}

	s.mu.Lock()
	if s.base == nil {
		s.base = ctx
	}
	if s.cron != nil {
		s.mu.Unlock()
		return nil
	}
	// runCtx bounds the timer only; cycles run detached so stopping never aborts one mid-flight.
	runCtx, cancel := context.WithCancel(ctx)
	jobCtx := context.WithoutCancel(ctx)
	c := cron.New(cron.WithLogger(cron.PrintfLogger(s.logger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.run(runCtx, jobCtx) }); err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("parking scheduler: %w", err)
	}
	s.cron = c
	s.cancel = cancel
	s.mu.Unlock()

	s.store.SetStopAutoRefresh(s.Stop)
	c.Start()
	go s.run(runCtx, jobCtx)
	go func() {
		<-runCtx.Done()
		s.stop(c)
	}()
	s.logger.Printf("parking scheduler: auto-refresh every %s", s.interval)
	return nil
}

// Stop cancels the timer. A cycle already running completes and writes its results.
func (s *Scheduler) Stop() {
	s.stop(nil)
}

// stop halts target, or whichever timer is active when target is nil.
func (s *Scheduler) stop(target *cron.Cron) {
	s.mu.Lock()
	if target != nil && s.cron != target {
		s.mu.Unlock()
		return
	}
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	c.Stop()
	cancel()
	s.logger.Printf("parking scheduler: auto-refresh stopped")
}

// Running reports whether the timer is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Resume lifts the cache-cleared suspension and restarts the timer under
// the context of the first Start.
func (s *Scheduler) Resume() error {
	s.store.SetCacheCleared(false)
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	return s.Start(base)
}

func (s *Scheduler) run(runCtx, jobCtx context.Context) {
	if runCtx.Err() != nil {
		return
	}
	if err := s.refresher.FetchRealtime(jobCtx); err != nil {
		s.logger.Printf("parking scheduler: refresh error: %v", err)
	}
}
