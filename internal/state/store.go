// Package state persists the single address last published for the
// domain's hosts, so unchanged cycles make no provider calls.
package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"strings"

	"gitlab.bluewillows.net/root/ncddns/internal/metrics"
	"gitlab.bluewillows.net/root/ncddns/pkg/publicip"
)

// DefaultPath is where the record lives when nothing else is configured.
const DefaultPath = "/data/last_ip"

const filePerm = 0o644

// WriteError is returned when a commit could not be persisted. The
// previously stored record is left untouched.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing state %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Store holds the single last-published address.
type Store struct {
	path   string
	fs     FileSystem
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFileSystem replaces the local disk with another backend.
func WithFileSystem(fsys FileSystem) Option {
	return func(s *Store) {
		if fsys != nil {
			s.fs = fsys
		}
	}
}

// NewStore creates a store at path. An empty path uses DefaultPath.
func NewStore(path string, opts ...Option) *Store {
	if path == "" {
		path = DefaultPath
	}
	s := &Store{
		path:   path,
		fs:     LocalFS{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns where the record is stored.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored address. Any problem reading it is logged and
// reported as absent so the caller publishes again.
func (s *Store) Load(ctx context.Context) (netip.Addr, bool) {
	data, err := s.fs.ReadFile(ctx, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("no stored address, treating as first run",
				slog.String("path", s.path),
			)
		} else {
			s.logger.Warn("could not read stored address",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return netip.Addr{}, false
	}

	addr, err := publicip.Parse(string(data))
	if err != nil {
		s.logger.Warn("stored address is not a valid IPv4 address, ignoring it",
			slog.String("path", s.path),
			slog.String("content", truncate(strings.TrimSpace(string(data)), 64)),
		)
		return netip.Addr{}, false
	}
	return addr, true
}

// Commit durably replaces the stored address with addr.
func (s *Store) Commit(ctx context.Context, addr netip.Addr) error {
	if !addr.Is4() {
		return &WriteError{Path: s.path, Err: fmt.Errorf("refusing to store non-IPv4 address %q", addr)}
	}

	if err := s.fs.WriteFileAtomic(ctx, s.path, []byte(addr.String()+"\n"), filePerm); err != nil {
		metrics.StateCommitsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return &WriteError{Path: s.path, Err: err}
	}

	metrics.StateCommitsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Debug("stored address committed",
		slog.String("path", s.path),
		slog.String("ip", addr.String()),
	)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
