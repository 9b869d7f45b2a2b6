package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives a tick function on a fixed cadence. Ticks are
// single-flight: tick N+1 never starts while tick N is still running,
// regardless of how long a tick takes relative to the interval.
type Scheduler struct {
	interval time.Duration
	tickFn   func(context.Context)

	running  atomic.Bool
	inFlight atomic.Bool

	mu        sync.Mutex
	cron      *cron.Cron
	cancel    context.CancelFunc
	firstDone chan struct{}
}

func New(interval time.Duration, tickFn func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
	}, nil
}

// Start begins ticking. The first tick runs immediately; subsequent
// ticks follow the configured interval. Returns false when already
// running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.cron = cron.New()
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.runTick(ctx)
	}))
	s.cron.Start()
	s.running.Store(true)

	slog.Info("scheduler started", "interval", s.interval.String())

	s.firstDone = make(chan struct{})
	go func() {
		defer close(s.firstDone)
		s.runTick(ctx)
	}()

	return true
}

// Stop cancels the tick context and waits for any in-flight tick to
// finish. Returns false when not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	<-s.firstDone
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) runTick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		slog.Warn("previous tick still running, skipping")
		return
	}
	defer s.inFlight.Store(false)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	s.tickFn(ctx)
	slog.Info("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}
