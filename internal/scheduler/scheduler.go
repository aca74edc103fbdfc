// Package scheduler runs named periodic tasks on one shared clock.
// Heartbeat emission, liveness classification and stale sweeps all used to
// be candidates for ad-hoc tickers scattered across subsystems; owning them
// here keeps timers process-wide singletons with a single start/stop
// lifecycle, and the injectable clock lets tests drive ticks
// deterministically.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Task is one unit of periodic work. It must return promptly; the ticker
// does not fire concurrently for the same task.
type Task func(ctx context.Context)

type task struct {
	name     string
	interval time.Duration
	fn       Task
	cancel   context.CancelFunc
}

// Scheduler owns named periodic tasks. Start once, stop once; subsystems
// register interest instead of starting their own timers.
type Scheduler struct {
	logger *zap.Logger
	clock  clock.Clock

	mu      sync.Mutex
	tasks   map[string]*task
	started bool
	stopped bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a scheduler on the given clock. A nil clock means wall time.
func New(logger *zap.Logger, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger.Named("scheduler"),
		clock:  clk,
		tasks:  make(map[string]*task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every registers a named periodic task. Names are unique; registering a
// duplicate is a wiring error. Tasks registered after Start begin ticking
// immediately.
func (s *Scheduler) Every(name string, interval time.Duration, fn Task) error {
	if name == "" || fn == nil {
		return fmt.Errorf("scheduler: task name and function are required")
	}
	if interval <= 0 {
		return fmt.Errorf("scheduler: task %q needs a positive interval", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler: already stopped")
	}
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("scheduler: task %q already registered", name)
	}
	t := &task{name: name, interval: interval, fn: fn}
	s.tasks[name] = t
	if s.started {
		ctx, cancel := context.WithCancel(s.ctx)
		t.cancel = cancel
		s.spawn(ctx, t)
	}
	return nil
}

// Cancel detaches one task. Unknown names are a no-op.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	if ok && t.cancel != nil {
		t.cancel()
	}
}

// Start launches every registered task. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	for _, t := range s.tasks {
		ctx, cancel := context.WithCancel(s.ctx)
		t.cancel = cancel
		s.spawn(ctx, t)
	}
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.tasks)))
}

func (s *Scheduler) spawn(ctx context.Context, t *task) {
	s.wg.Add(1)
	ticker := s.clock.Ticker(t.interval)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.fn(ctx)
			}
		}
	}()
}

// Stop cancels every task and waits for them to finish. Idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.cancel()
		s.wg.Wait()
		s.logger.Info("scheduler stopped")
	})
}
