package reconciler

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ncddns/pkg/provider"
)

// Phase is the step of the update cycle being executed.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseResolving  Phase = "resolving"
	PhaseComparing  Phase = "comparing"
	PhasePublishing Phase = "publishing"
	PhaseCommitting Phase = "committing"
)

// Status summarises how a cycle ended.
type Status string

const (
	// StatusUnchanged means the stored address already matched.
	StatusUnchanged Status = "unchanged"
	// StatusUpdated means every host was published and the state committed.
	StatusUpdated Status = "updated"
	// StatusCommitFailed means every host was published but the state write failed.
	StatusCommitFailed Status = "commit_failed"
	// StatusPartial means some hosts failed. Nothing was committed.
	StatusPartial Status = "partial"
	// StatusFailed means every host failed.
	StatusFailed Status = "failed"
	// StatusDryRun means a change was detected but not published.
	StatusDryRun Status = "dry_run"
	// StatusResolveFailed means no address could be determined.
	StatusResolveFailed Status = "resolve_failed"
)

// Verification is the post-publish DNS check for one host.
type Verification struct {
	Host    string
	Name    string
	Answers []netip.Addr
	Match   bool
	Err     error
}

// Result holds everything that happened during one cycle.
type Result struct {
	// ID correlates the cycle's log lines.
	ID string

	StartTime time.Time
	EndTime   time.Time

	// Phase is the last phase the cycle reached.
	Phase Phase

	Resolved    netip.Addr
	Previous    netip.Addr
	HadPrevious bool

	// Outcomes has one entry per host, in configured order. Empty when
	// nothing needed publishing.
	Outcomes []provider.Outcome

	Committed bool
	CommitErr error

	Verifications []Verification

	DryRun bool
}

// NewResult creates a Result with the start time set to now.
func NewResult(id string, dryRun bool) *Result {
	return &Result{
		ID:        id,
		StartTime: time.Now(),
		Phase:     PhaseIdle,
		DryRun:    dryRun,
	}
}

// Complete marks the result as complete with the end time set to now.
func (r *Result) Complete() {
	r.EndTime = time.Now()
}

// Duration returns the cycle duration.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// Changed reports whether the resolved address differs from the stored one.
func (r *Result) Changed() bool {
	return r.Resolved.IsValid() && (!r.HadPrevious || r.Previous != r.Resolved)
}

// Succeeded returns the outcomes that succeeded.
func (r *Result) Succeeded() []provider.Outcome {
	var out []provider.Outcome
	for _, o := range r.Outcomes {
		if o.Success() {
			out = append(out, o)
		}
	}
	return out
}

// Failed returns the outcomes that failed.
func (r *Result) Failed() []provider.Outcome {
	var out []provider.Outcome
	for _, o := range r.Outcomes {
		if !o.Success() {
			out = append(out, o)
		}
	}
	return out
}

// HasErrors reports whether any host failed.
func (r *Result) HasErrors() bool {
	return len(r.Failed()) > 0
}

// Status classifies the cycle.
func (r *Result) Status() Status {
	switch {
	case !r.Resolved.IsValid():
		return StatusResolveFailed
	case !r.Changed():
		return StatusUnchanged
	case r.DryRun:
		return StatusDryRun
	case len(r.Failed()) == len(r.Outcomes):
		return StatusFailed
	case r.HasErrors():
		return StatusPartial
	case r.CommitErr != nil:
		return StatusCommitFailed
	default:
		return StatusUpdated
	}
}

// Summary returns a human-readable summary of the cycle.
func (r *Result) Summary() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Update cycle %s (%s) in %s\n", r.Status(), r.Phase, r.Duration().Round(time.Millisecond))
	if r.Resolved.IsValid() {
		fmt.Fprintf(&sb, "  Resolved: %s\n", r.Resolved)
	}
	if r.HadPrevious {
		fmt.Fprintf(&sb, "  Stored: %s\n", r.Previous)
	} else {
		sb.WriteString("  Stored: none\n")
	}
	for _, o := range r.Outcomes {
		fmt.Fprintf(&sb, "    - %s\n", o)
	}
	if r.Committed {
		sb.WriteString("  State committed\n")
	}
	if r.CommitErr != nil {
		fmt.Fprintf(&sb, "  Commit failed: %v\n", r.CommitErr)
	}
	return sb.String()
}
