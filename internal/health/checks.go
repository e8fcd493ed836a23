package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ncddns/internal/reconciler"
)

// RunTracker reports when the update loop last completed a cycle.
type RunTracker interface {
	LastRun() (time.Time, error)
	Period() time.Duration
}

// ResultSource exposes the most recent cycle result.
type ResultSource interface {
	LastResult() *reconciler.Result
}

// staleFactor is how many periods may pass without a completed cycle
// before the loop counts as stuck.
const staleFactor = 3

// SchedulerChecker fails until the first cycle has completed and whenever
// the last one finished more than three periods ago.
func SchedulerChecker(t RunTracker) Checker {
	return func(context.Context) error {
		last, _ := t.LastRun()
		if last.IsZero() {
			return errors.New("no update cycle has completed yet")
		}
		limit := staleFactor * t.Period()
		if age := time.Since(last); age > limit {
			return fmt.Errorf("last update cycle finished %s ago, limit %s",
				age.Round(time.Second), limit)
		}
		return nil
	}
}

// PublishChecker reports degraded when the last cycle could not resolve the
// address, left hosts unpublished, or failed to commit state.
func PublishChecker(src ResultSource) DegradedChecker {
	return func(context.Context) (bool, string) {
		result := src.LastResult()
		if result == nil {
			return false, ""
		}

		switch result.Status() {
		case reconciler.StatusResolveFailed:
			return true, "public address could not be determined"
		case reconciler.StatusPartial, reconciler.StatusFailed:
			hosts := make([]string, 0, len(result.Failed()))
			for _, o := range result.Failed() {
				hosts = append(hosts, o.Host)
			}
			return true, "update failed for " + strings.Join(hosts, ", ")
		case reconciler.StatusCommitFailed:
			return true, "state could not be saved"
		}
		return false, ""
	}
}
