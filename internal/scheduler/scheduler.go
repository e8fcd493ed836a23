// Package scheduler drives the update cycle: once at startup, then again
// each time the schedule fires after the previous cycle has finished.
//
// Cycles never overlap. A cycle that returns an error or panics is logged
// and the loop carries on; only cancelling the context stops it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gitlab.bluewillows.net/root/ncddns/internal/metrics"
)

// CycleFunc runs one update cycle. It logs its own failures; the scheduler
// only records the returned error.
type CycleFunc func(ctx context.Context) error

// ErrPanic wraps the value recovered from a panicking cycle.
var ErrPanic = errors.New("cycle panicked")

// Scheduler runs a CycleFunc on a cron.Schedule.
type Scheduler struct {
	cycle    CycleFunc
	schedule cron.Schedule
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
	lastErr error
	runs    int
}

// Option is a functional option for configuring the Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSchedule replaces the fixed interval with an arbitrary schedule, such
// as one returned by ParseSchedule.
func WithSchedule(schedule cron.Schedule) Option {
	return func(s *Scheduler) {
		if schedule != nil {
			s.schedule = schedule
		}
	}
}

// ParseSchedule parses a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 5m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// New creates a scheduler that runs cycle every interval. Intervals are
// rounded down to whole seconds, with a minimum of one second.
func New(cycle CycleFunc, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		cycle:    cycle,
		schedule: cron.Every(interval),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes a cycle immediately and then on every schedule activation
// until ctx is cancelled. The next activation is computed from the time the
// previous cycle finished. Run returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.runOnce(ctx)

		if ctx.Err() != nil {
			return nil
		}

		next := s.schedule.Next(time.Now())
		s.logger.Debug("next update cycle scheduled",
			slog.Time("at", next),
			slog.Duration("in", time.Until(next).Round(time.Second)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Start runs the scheduler in a goroutine. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done

	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	s.logger.Info("scheduler started")
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// LastRun returns when the most recent cycle finished and the error it
// returned. The time is zero until the first cycle completes.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// Runs returns the number of completed cycles.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Period estimates the gap between two activations starting now. For a
// fixed interval this is the interval itself.
func (s *Scheduler) Period() time.Duration {
	first := s.schedule.Next(time.Now())
	return s.schedule.Next(first).Sub(first)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	err := s.safeCycle(ctx)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.runs++
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil && !errors.Is(err, ErrPanic) {
		s.logger.Debug("update cycle returned an error", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CyclePanicsTotal.Inc()
			s.logger.Error("update cycle panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return s.cycle(ctx)
}
