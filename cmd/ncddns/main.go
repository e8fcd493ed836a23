// ncddns keeps Namecheap dynamic DNS host records pointed at the current
// public IPv4 address. It detects the address periodically and calls the
// update API only when the address changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/ncddns/internal/config"
	"gitlab.bluewillows.net/root/ncddns/internal/health"
	"gitlab.bluewillows.net/root/ncddns/internal/logging"
	"gitlab.bluewillows.net/root/ncddns/internal/metrics"
	"gitlab.bluewillows.net/root/ncddns/internal/reconciler"
	"gitlab.bluewillows.net/root/ncddns/internal/scheduler"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-01-03"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("ncddns", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.StringP("config", "c", "", "path to a YAML or TOML config file (or NC_CONFIG)")
	once := flags.Bool("once", false, "run a single update cycle and exit")
	showVersion := flags.BoolP("version", "v", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *showVersion {
		fmt.Fprintf(stdout, "ncddns %s (built %s, %s)\n", Version, BuildDate, runtime.Version())
		return exitOK
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailed
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, stdout)
	slog.SetDefault(logger)
	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Info("ncddns starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.String("domain", cfg.Domain),
		slog.String("hosts", cfg.HostList()),
		slog.String("state", cfg.RedactedStatePath()),
		slog.Bool("dry_run", cfg.DryRun),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := newApp(cfg, Version, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		return exitFailed
	}
	defer deps.Close()

	if *once {
		return runOnce(ctx, deps.reconciler, logger)
	}

	if err := serve(ctx, cfg, deps, logger); err != nil {
		logger.Error("fatal error", slog.String("error", err.Error()))
		return exitFailed
	}
	logger.Info("ncddns shutdown complete")
	return exitOK
}

// runOnce runs one cycle and maps its status to an exit code.
func runOnce(ctx context.Context, rec *reconciler.Reconciler, logger *slog.Logger) int {
	result, err := rec.Reconcile(ctx)
	if err != nil {
		return exitFailed
	}
	logger.Info("update cycle finished",
		slog.String("status", string(result.Status())),
		slog.Duration("duration", result.Duration()),
	)
	switch result.Status() {
	case reconciler.StatusUnchanged, reconciler.StatusUpdated, reconciler.StatusDryRun:
		return exitOK
	}
	return exitFailed
}

// serve runs the scheduler and, when enabled, the health server until ctx
// is cancelled.
func serve(ctx context.Context, cfg *config.Config, deps *app, logger *slog.Logger) error {
	opts := []scheduler.Option{scheduler.WithLogger(logger)}
	if cfg.Schedule != "" {
		schedule, err := scheduler.ParseSchedule(cfg.Schedule)
		if err != nil {
			return err
		}
		opts = append(opts, scheduler.WithSchedule(schedule))
		logger.Info("using cron schedule", slog.String("schedule", cfg.Schedule))
	} else {
		logger.Info("using fixed interval", slog.Duration("interval", cfg.Interval))
	}

	sched := scheduler.New(func(ctx context.Context) error {
		result, err := deps.reconciler.Reconcile(ctx)
		if err != nil {
			return err
		}
		logger.Debug("update cycle finished",
			slog.String("status", string(result.Status())),
			slog.Duration("duration", result.Duration()),
		)
		return nil
	}, cfg.Interval, opts...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx)
	})

	if cfg.HealthPort > 0 {
		srv := health.New(cfg.HealthPort, health.WithLogger(logger))
		srv.RegisterChecker("scheduler", health.SchedulerChecker(sched))
		srv.RegisterDegradedChecker("publish", health.PublishChecker(deps.reconciler))
		g.Go(func() error {
			// Updates keep running without the health endpoints.
			if err := srv.Run(ctx); err != nil {
				metrics.HealthServerErrorsTotal.Inc()
				logger.Error("health server stopped, updates continue",
					slog.Int("port", cfg.HealthPort),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}

	return g.Wait()
}
