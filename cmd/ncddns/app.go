package main

import (
	"fmt"
	"io"
	"log/slog"

	"gitlab.bluewillows.net/root/ncddns/internal/config"
	"gitlab.bluewillows.net/root/ncddns/internal/reconciler"
	"gitlab.bluewillows.net/root/ncddns/internal/resolver"
	"gitlab.bluewillows.net/root/ncddns/internal/state"
	"gitlab.bluewillows.net/root/ncddns/pkg/dnsquery"
	"gitlab.bluewillows.net/root/ncddns/pkg/httputil"
	"gitlab.bluewillows.net/root/ncddns/pkg/provider"
	"gitlab.bluewillows.net/root/ncddns/pkg/sshutil"
	"gitlab.bluewillows.net/root/ncddns/providers/namecheap"
)

// app holds the wired components and anything that must be closed on exit.
type app struct {
	reconciler *reconciler.Reconciler
	closers    []io.Closer
	logger     *slog.Logger
}

func newApp(cfg *config.Config, version string, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}
	userAgent := "ncddns/" + version

	res, err := resolver.New(cfg.IPProviders,
		resolver.WithLogger(logger),
		resolver.WithTimeout(cfg.HTTPTimeout),
		resolver.WithHTTPClient(httputil.NewClient(&httputil.ClientConfig{
			Timeout:   cfg.HTTPTimeout,
			UserAgent: userAgent,
			Logger:    logger,
		})),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resolver: %w", err)
	}

	store, err := a.newStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	updater, err := namecheap.NewClient(namecheap.Config{
		Endpoint:  cfg.UpdateURL,
		Timeout:   cfg.HTTPTimeout,
		UserAgent: userAgent,
	}, namecheap.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating update client: %w", err)
	}

	opts := []reconciler.Option{
		reconciler.WithLogger(logger),
		reconciler.WithConfig(reconciler.Config{DryRun: cfg.DryRun}),
	}
	if cfg.VerifyDNS {
		verifier, err := dnsquery.New(cfg.VerifyResolver,
			dnsquery.WithLogger(logger),
			dnsquery.WithTimeout(cfg.HTTPTimeout),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating DNS verifier: %w", err)
		}
		opts = append(opts, reconciler.WithVerifier(verifier))
		logger.Info("post-publish DNS verification enabled", slog.String("resolver", verifier.Server()))
	}

	targets := provider.Targets(cfg.Domain, cfg.Password, cfg.Hosts)
	rec, err := reconciler.New(res, store, updater, targets, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating reconciler: %w", err)
	}
	a.reconciler = rec

	endpoints := make([]string, 0, len(res.Endpoints()))
	for _, e := range res.Endpoints() {
		endpoints = append(endpoints, e.String())
	}
	logger.Debug("components ready",
		slog.Any("ip_providers", endpoints),
		slog.String("update_url", cfg.UpdateURL),
		slog.Int("targets", len(targets)),
	)
	return a, nil
}

// newStore returns a local store, or an SFTP-backed one for sftp:// paths.
func (a *app) newStore(cfg *config.Config) (*state.Store, error) {
	if !cfg.StateIsRemote() {
		return state.NewStore(cfg.StatePath, state.WithLogger(a.logger)), nil
	}

	sc, remotePath, err := cfg.SSHConfig()
	if err != nil {
		return nil, fmt.Errorf("state location: %w", err)
	}
	client, err := sshutil.NewClient(sc, sshutil.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("creating SSH client: %w", err)
	}
	fsys := sshutil.NewSFTPFileSystem(client, sshutil.WithSFTPLogger(a.logger))
	a.closers = append(a.closers, fsys)

	return state.NewStore(remotePath,
		state.WithLogger(a.logger),
		state.WithFileSystem(fsys),
	), nil
}

// Close releases remote connections.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Debug("close failed", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
