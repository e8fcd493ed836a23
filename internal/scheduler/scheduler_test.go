package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"gitlab.bluewillows.net/root/ncddns/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastSchedule fires a fixed, sub-second delay after the given time.
type fastSchedule time.Duration

func (f fastSchedule) Next(t time.Time) time.Time {
	return t.Add(time.Duration(f))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRun_FirstCycleImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := New(func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, time.Hour, WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("first cycle did not run immediately")
	}
}

func TestRun_RepeatsUntilCancelled(t *testing.T) {
	var count atomic.Int32
	s := New(func(context.Context) error {
		count.Add(1)
		return nil
	}, time.Hour, WithLogger(testLogger()), WithSchedule(fastSchedule(10*time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	waitFor(t, func() bool { return count.Load() >= 3 })
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestRun_SurvivesErrorsAndPanics(t *testing.T) {
	before := testutil.ToFloat64(metrics.CyclePanicsTotal)

	var count atomic.Int32
	s := New(func(context.Context) error {
		switch count.Add(1) {
		case 1:
			return errors.New("resolution failed")
		case 2:
			panic("boom")
		}
		return nil
	}, time.Hour, WithLogger(testLogger()), WithSchedule(fastSchedule(5*time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	waitFor(t, func() bool { return count.Load() >= 3 })

	if got := testutil.ToFloat64(metrics.CyclePanicsTotal); got < before+1 {
		t.Errorf("cycle_panics_total = %v, want at least %v", got, before+1)
	}
}

// syncBuffer is a bytes.Buffer safe for a logger and a reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_CycleErrorNotLoggedAgainAsError(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := New(func(context.Context) error {
		return errors.New("resolving public address: all endpoints failed")
	}, time.Hour, WithLogger(logger), WithSchedule(fastSchedule(time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return s.Runs() >= 1 })
	cancel()
	<-done

	out := logs.String()
	if strings.Contains(out, "level=ERROR") {
		t.Errorf("cycle error repeated at error level:\n%s", out)
	}
	if !strings.Contains(out, "all endpoints failed") {
		t.Errorf("cycle error not recorded at debug level:\n%s", out)
	}
}

func TestRun_CyclesNeverOverlap(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		overlap bool
		count   atomic.Int32
	)
	s := New(func(context.Context) error {
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		count.Add(1)
		return nil
	}, time.Hour, WithLogger(testLogger()), WithSchedule(fastSchedule(time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	waitFor(t, func() bool { return count.Load() >= 3 })

	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Error("cycles overlapped")
	}
}

func TestLastRun(t *testing.T) {
	cycleErr := errors.New("nope")
	s := New(func(context.Context) error { return cycleErr }, time.Hour, WithLogger(testLogger()))

	if last, _ := s.LastRun(); !last.IsZero() {
		t.Errorf("LastRun() before any cycle = %v, want zero", last)
	}

	s.Start(context.Background())
	waitFor(t, func() bool { return s.Runs() >= 1 })
	s.Stop()

	last, err := s.LastRun()
	if last.IsZero() {
		t.Error("LastRun() time should be set")
	}
	if !errors.Is(err, cycleErr) {
		t.Errorf("LastRun() error = %v, want %v", err, cycleErr)
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	s := New(func(context.Context) error { return nil }, time.Hour, WithLogger(testLogger()))

	s.Start(context.Background())
	s.Start(context.Background())
	waitFor(t, func() bool { return s.Runs() >= 1 })
	s.Stop()
	s.Stop()

	if got := s.Runs(); got != 1 {
		t.Errorf("Runs() = %d, want 1", got)
	}
}

func TestPeriod(t *testing.T) {
	s := New(func(context.Context) error { return nil }, 5*time.Minute)
	if got := s.Period(); got != 5*time.Minute {
		t.Errorf("Period() = %v, want 5m", got)
	}

	hourly, err := ParseSchedule("@hourly")
	if err != nil {
		t.Fatalf("ParseSchedule() error = %v", err)
	}
	s = New(func(context.Context) error { return nil }, time.Minute, WithSchedule(hourly))
	if got := s.Period(); got != time.Hour {
		t.Errorf("Period() with @hourly = %v, want 1h", got)
	}
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"@every 10m", false},
		{"@daily", false},
		{"not a schedule", true},
		{"* * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := ParseSchedule(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}
