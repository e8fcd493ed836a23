package reconciler

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"sync"

	"gitlab.bluewillows.net/root/ncddns/pkg/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockResolver struct {
	addr  netip.Addr
	err   error
	calls int
}

func (m *mockResolver) Resolve(context.Context) (netip.Addr, error) {
	m.calls++
	return m.addr, m.err
}

type mockStore struct {
	mu        sync.Mutex
	addr      netip.Addr
	has       bool
	commitErr error
	commits   []netip.Addr
}

func (m *mockStore) Load(context.Context) (netip.Addr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr, m.has
}

func (m *mockStore) Commit(_ context.Context, addr netip.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits = append(m.commits, addr)
	m.addr, m.has = addr, true
	return nil
}

// mockUpdater fails the hosts listed in failures and succeeds for the rest.
type mockUpdater struct {
	mu       sync.Mutex
	failures map[string]*provider.Failure
	echo     netip.Addr
	calls    []string
}

func (m *mockUpdater) Name() string { return "mock" }

func (m *mockUpdater) Update(_ context.Context, t provider.HostTarget, ip netip.Addr) provider.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, t.Host)
	if f, ok := m.failures[t.Host]; ok {
		return provider.Failed(t.Host, ip, f)
	}
	published := ip
	if m.echo.IsValid() {
		published = m.echo
	}
	return provider.Succeeded(t.Host, ip, published)
}

func (m *mockUpdater) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type mockVerifier struct {
	answers map[string][]netip.Addr
	err     error
	names   []string
}

func (m *mockVerifier) LookupA(_ context.Context, name string) ([]netip.Addr, error) {
	m.names = append(m.names, name)
	if m.err != nil {
		return nil, m.err
	}
	return m.answers[name], nil
}

func targets(hosts ...string) []provider.HostTarget {
	return provider.Targets("example.com", "secret", hosts)
}
