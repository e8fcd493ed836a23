// Package reconciler runs the update cycle: resolve the public address,
// compare it with the stored one, publish it to every host when it changed,
// and commit it once every host accepted it.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"

	"gitlab.bluewillows.net/root/ncddns/internal/metrics"
	"gitlab.bluewillows.net/root/ncddns/pkg/provider"
)

// Resolver determines the current public address.
type Resolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

// StateStore persists the last published address.
type StateStore interface {
	Load(ctx context.Context) (netip.Addr, bool)
	Commit(ctx context.Context, addr netip.Addr) error
}

// Verifier looks up the A records currently served for a name.
type Verifier interface {
	LookupA(ctx context.Context, name string) ([]netip.Addr, error)
}

// ErrNoTargets is returned by New when there is nothing to publish.
var ErrNoTargets = errors.New("at least one host target is required")

// Config holds reconciler configuration options.
type Config struct {
	// DryRun logs what would be published without calling the provider or
	// committing state.
	DryRun bool
}

// Reconciler runs update cycles. Cycles must not overlap; the scheduler
// guarantees that.
type Reconciler struct {
	resolver Resolver
	store    StateStore
	updater  provider.Updater
	targets  []provider.HostTarget
	verifier Verifier
	config   Config
	logger   *slog.Logger

	mu   sync.RWMutex
	last *Result
}

// Option is a functional option for configuring the Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger for the reconciler.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConfig sets the reconciler configuration.
func WithConfig(cfg Config) Option {
	return func(r *Reconciler) {
		r.config = cfg
	}
}

// WithVerifier enables a DNS lookup of every published host after a
// successful commit. Mismatches are only logged.
func WithVerifier(v Verifier) Option {
	return func(r *Reconciler) {
		r.verifier = v
	}
}

// New creates a Reconciler publishing to targets in the given order.
func New(resolver Resolver, store StateStore, updater provider.Updater, targets []provider.HostTarget, opts ...Option) (*Reconciler, error) {
	if resolver == nil || store == nil || updater == nil {
		return nil, errors.New("resolver, store and updater are required")
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	r := &Reconciler{
		resolver: resolver,
		store:    store,
		updater:  updater,
		targets:  append([]provider.HostTarget(nil), targets...),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reconcile runs one update cycle. The returned error is non-nil only when
// the public address could not be resolved; publish and commit failures are
// reported in the Result and logged.
func (r *Reconciler) Reconcile(ctx context.Context) (*Result, error) {
	result := NewResult(newCycleID(), r.config.DryRun)
	logger := r.logger.With(slog.String("cycle", result.ID))

	defer func() {
		result.Complete()
		r.recordMetrics(result)
		r.mu.Lock()
		r.last = result
		r.mu.Unlock()
	}()

	// Resolving
	result.Phase = PhaseResolving
	addr, err := r.resolver.Resolve(ctx)
	if err != nil {
		logger.Error("could not determine public address", slog.String("error", err.Error()))
		return result, fmt.Errorf("resolving public address: %w", err)
	}
	result.Resolved = addr

	// Comparing
	result.Phase = PhaseComparing
	result.Previous, result.HadPrevious = r.store.Load(ctx)
	if !result.Changed() {
		logger.Info("public address unchanged, nothing to do",
			slog.String("ip", addr.String()),
		)
		return result, nil
	}

	previous := "none"
	if result.HadPrevious {
		previous = result.Previous.String()
	}
	logger.Info("public address changed",
		slog.String("previous", previous),
		slog.String("current", addr.String()),
		slog.Int("hosts", len(r.targets)),
	)

	// Publishing
	result.Phase = PhasePublishing
	if r.config.DryRun {
		for _, t := range r.targets {
			logger.Info("dry run: would update host",
				slog.String("host", t.Host),
				slog.String("fqdn", t.FQDN()),
				slog.String("ip", addr.String()),
			)
		}
		return result, nil
	}

	r.publish(ctx, logger, result)

	if result.HasErrors() {
		logger.Warn("not committing state, some hosts failed",
			slog.Int("failed", len(result.Failed())),
			slog.Int("succeeded", len(result.Succeeded())),
		)
		return result, nil
	}

	// Committing
	result.Phase = PhaseCommitting
	if err := r.store.Commit(ctx, addr); err != nil {
		result.CommitErr = err
		logger.Error("failed to commit state, hosts will be published again next cycle",
			slog.String("error", err.Error()),
		)
		return result, nil
	}
	result.Committed = true

	logger.Info("public address published",
		slog.String("ip", addr.String()),
		slog.Int("hosts", len(result.Outcomes)),
	)

	if r.verifier != nil {
		r.verify(ctx, logger, result)
	}

	return result, nil
}

// publish updates every target sequentially in configured order.
func (r *Reconciler) publish(ctx context.Context, logger *slog.Logger, result *Result) {
	for _, t := range r.targets {
		outcome := r.updater.Update(ctx, t, result.Resolved)
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Success() {
			logger.Info("host updated",
				slog.String("host", t.Host),
				slog.String("ip", outcome.Published.String()),
			)
			continue
		}

		attrs := []any{
			slog.String("host", t.Host),
			slog.String("kind", string(outcome.Failure.Kind)),
			slog.String("error", outcome.Failure.Error()),
		}
		if outcome.Failure.Code != "" {
			attrs = append(attrs, slog.String("code", outcome.Failure.Code))
		}
		logger.Error("host update failed", attrs...)
	}
}

// verify checks each published name against public DNS. Wildcard hosts are
// skipped since they have no single name to query.
func (r *Reconciler) verify(ctx context.Context, logger *slog.Logger, result *Result) {
	for _, t := range r.targets {
		if strings.Contains(t.Host, "*") {
			continue
		}

		v := Verification{Host: t.Host, Name: t.FQDN()}
		v.Answers, v.Err = r.verifier.LookupA(ctx, v.Name)
		for _, a := range v.Answers {
			if a == result.Resolved {
				v.Match = true
				break
			}
		}
		result.Verifications = append(result.Verifications, v)

		switch {
		case v.Err != nil:
			logger.Info("DNS verification lookup failed",
				slog.String("name", v.Name),
				slog.String("error", v.Err.Error()),
			)
		case !v.Match:
			logger.Info("published address not yet visible in DNS",
				slog.String("name", v.Name),
				slog.Any("answers", v.Answers),
			)
		default:
			logger.Debug("published address visible in DNS", slog.String("name", v.Name))
		}
	}
}

// LastResult returns the result of the most recent cycle, or nil.
func (r *Reconciler) LastResult() *Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Targets returns the hosts published to, in order.
func (r *Reconciler) Targets() []provider.HostTarget {
	return append([]provider.HostTarget(nil), r.targets...)
}

func (r *Reconciler) recordMetrics(result *Result) {
	metrics.CyclesTotal.WithLabelValues(string(result.Status())).Inc()
	metrics.CycleDuration.Observe(result.Duration().Seconds())

	if result.Changed() && !result.DryRun {
		metrics.PublicIPChangesTotal.Inc()
	}
	if result.Committed {
		metrics.LastPublishTimestamp.Set(float64(result.EndTime.Unix()))
	}
}

func newCycleID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Sprintf("cycle-%d", time.Now().UnixNano())
	}
	return id
}
