package state

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var ctx = context.Background()

func newTestStore(t *testing.T, path string, opts ...Option) (*Store, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewStore(path, append([]Option{WithLogger(logger)}, opts...)...), &buf
}

func TestStore_LoadMissing(t *testing.T) {
	store, logs := newTestStore(t, filepath.Join(t.TempDir(), "last_ip"))

	if _, ok := store.Load(ctx); ok {
		t.Error("expected absent for missing file")
	}
	if !strings.Contains(logs.String(), "level=INFO") {
		t.Errorf("missing file should log at info, got %q", logs.String())
	}
}

func TestStore_CommitThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "last_ip")
	store, _ := newTestStore(t, path)

	addr := netip.MustParseAddr("203.0.113.7")
	if err := store.Commit(ctx, addr); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, ok := store.Load(ctx)
	if !ok || got != addr {
		t.Errorf("Load() = %v, %v; want %v", got, ok, addr)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "203.0.113.7\n" {
		t.Errorf("unexpected file content %q", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}

func TestStore_LoadTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_ip")
	if err := os.WriteFile(path, []byte("  198.51.100.4 \r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, _ := newTestStore(t, path)
	got, ok := store.Load(ctx)
	if !ok || got.String() != "198.51.100.4" {
		t.Errorf("Load() = %v, %v", got, ok)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	for _, content := range []string{"", "garbage", "2001:db8::1", "203.0.113.7 198.51.100.1"} {
		path := filepath.Join(t.TempDir(), "last_ip")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		store, logs := newTestStore(t, path)
		if _, ok := store.Load(ctx); ok {
			t.Errorf("content %q: expected absent", content)
		}
		if !strings.Contains(logs.String(), "level=WARN") {
			t.Errorf("content %q: expected a warning, got %q", content, logs.String())
		}
	}
}

func TestStore_LoadUnreadable(t *testing.T) {
	// A directory at the state path cannot be read as a file.
	path := t.TempDir()

	store, logs := newTestStore(t, path)
	if _, ok := store.Load(ctx); ok {
		t.Error("expected absent")
	}
	if !strings.Contains(logs.String(), "level=WARN") {
		t.Errorf("expected a warning, got %q", logs.String())
	}
}

type failingFS struct {
	data []byte
}

func (f *failingFS) ReadFile(context.Context, string) ([]byte, error) { return f.data, nil }

func (f *failingFS) WriteFileAtomic(context.Context, string, []byte, os.FileMode) error {
	return errors.New("disk full")
}

func TestStore_CommitFailureKeepsPrevious(t *testing.T) {
	fsys := &failingFS{data: []byte("203.0.113.7\n")}
	store, _ := newTestStore(t, "/state/last_ip", WithFileSystem(fsys))

	err := store.Commit(ctx, netip.MustParseAddr("198.51.100.1"))

	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
	if werr.Path != "/state/last_ip" {
		t.Errorf("unexpected path %q", werr.Path)
	}

	got, ok := store.Load(ctx)
	if !ok || got.String() != "203.0.113.7" {
		t.Errorf("previous record lost: %v, %v", got, ok)
	}
}

func TestStore_CommitRejectsIPv6(t *testing.T) {
	store, _ := newTestStore(t, filepath.Join(t.TempDir(), "last_ip"))

	err := store.Commit(ctx, netip.MustParseAddr("2001:db8::1"))
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Errorf("expected *WriteError, got %v", err)
	}
}

func TestStore_CommitReadOnlyDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "last_ip")
	store, _ := newTestStore(t, path)

	if err := store.Commit(ctx, netip.MustParseAddr("203.0.113.7")); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	if err := store.Commit(ctx, netip.MustParseAddr("198.51.100.1")); err == nil {
		t.Fatal("expected commit into read-only directory to fail")
	}

	got, ok := store.Load(ctx)
	if !ok || got.String() != "203.0.113.7" {
		t.Errorf("previous record lost: %v, %v", got, ok)
	}
}

type ctxKey struct{}

// recordingFS remembers the contexts it was called with.
type recordingFS struct {
	readCtx, writeCtx context.Context
}

func (f *recordingFS) ReadFile(ctx context.Context, _ string) ([]byte, error) {
	f.readCtx = ctx
	return []byte("203.0.113.7\n"), nil
}

func (f *recordingFS) WriteFileAtomic(ctx context.Context, _ string, _ []byte, _ os.FileMode) error {
	f.writeCtx = ctx
	return nil
}

func TestStore_PassesContextToFileSystem(t *testing.T) {
	fsys := &recordingFS{}
	store, _ := newTestStore(t, "/state/last_ip", WithFileSystem(fsys))
	cycleCtx := context.WithValue(ctx, ctxKey{}, "cycle")

	store.Load(cycleCtx)
	if err := store.Commit(cycleCtx, netip.MustParseAddr("198.51.100.1")); err != nil {
		t.Fatal(err)
	}

	for name, got := range map[string]context.Context{"ReadFile": fsys.readCtx, "WriteFileAtomic": fsys.writeCtx} {
		if got == nil || got.Value(ctxKey{}) != "cycle" {
			t.Errorf("%s did not receive the caller's context", name)
		}
	}
}

func TestStore_CommitCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_ip")
	store, _ := newTestStore(t, path)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	err := store.Commit(cancelled, netip.MustParseAddr("203.0.113.7"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Commit() error = %v, want context.Canceled", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("a cancelled commit must not write the file")
	}
}

func TestLocalFS_WriteFileAtomicPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "last_ip")

	if err := (LocalFS{}).WriteFileAtomic(ctx, path, []byte("203.0.113.7\n"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}

func TestNewStore_DefaultPath(t *testing.T) {
	if NewStore("").Path() != DefaultPath {
		t.Errorf("expected default path %s", DefaultPath)
	}
}
