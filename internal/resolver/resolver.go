// Package resolver determines the caller's public IPv4 address by asking a
// list of detection endpoints in order until one gives a usable answer.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/ncddns/internal/metrics"
	"gitlab.bluewillows.net/root/ncddns/pkg/dnsquery"
	"gitlab.bluewillows.net/root/ncddns/pkg/httputil"
	"gitlab.bluewillows.net/root/ncddns/pkg/publicip"
)

// DefaultTimeout bounds each endpoint attempt.
const DefaultTimeout = 10 * time.Second

// ErrResolutionFailed is returned when every endpoint failed.
var ErrResolutionFailed = errors.New("public IP resolution failed")

// Resolver tries endpoints in order.
type Resolver struct {
	endpoints  []Endpoint
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimeout sets the per-endpoint timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithHTTPClient sets the client used for HTTP endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// New creates a resolver over urls. An empty list uses DefaultEndpoints.
func New(urls []string, opts ...Option) (*Resolver, error) {
	if len(urls) == 0 {
		urls = DefaultEndpoints
	}

	r := &Resolver{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	var errs []error
	for _, raw := range urls {
		e, err := ParseEndpoint(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.endpoints = append(r.endpoints, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if r.httpClient == nil {
		r.httpClient = httputil.NewClient(&httputil.ClientConfig{
			Timeout: r.timeout,
			Logger:  r.logger,
		})
	}
	return r, nil
}

// Endpoints returns the configured endpoints in query order.
func (r *Resolver) Endpoints() []Endpoint {
	return append([]Endpoint(nil), r.endpoints...)
}

// Resolve returns the first plausible IPv4 address reported by an endpoint.
// Later endpoints are not contacted once one succeeds.
func (r *Resolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var errs []error

	for _, e := range r.endpoints {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		addr, err := r.query(ctx, e)
		if err != nil {
			metrics.IPLookupsTotal.WithLabelValues(e.URL, metrics.ResultFailure).Inc()
			r.logger.Debug("IP detection endpoint failed",
				slog.String("endpoint", e.URL),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", e.URL, err))
			continue
		}

		metrics.IPLookupsTotal.WithLabelValues(e.URL, metrics.ResultSuccess).Inc()
		r.logger.Debug("public IP detected",
			slog.String("endpoint", e.URL),
			slog.String("ip", addr.String()),
		)
		return addr, nil
	}

	return netip.Addr{}, fmt.Errorf("%w: %w", ErrResolutionFailed, errors.Join(errs...))
}

func (r *Resolver) query(ctx context.Context, e Endpoint) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	switch e.Kind {
	case KindDNS:
		return r.queryDNS(ctx, e)
	default:
		return r.queryHTTP(ctx, e)
	}
}

func (r *Resolver) queryHTTP(ctx context.Context, e Endpoint) (netip.Addr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "text/plain")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return netip.Addr{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return netip.Addr{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := httputil.ReadBody(resp.Body)
	if err != nil {
		return netip.Addr{}, err
	}
	return publicip.Extract(body)
}

func (r *Resolver) queryDNS(ctx context.Context, e Endpoint) (netip.Addr, error) {
	client, err := dnsquery.New(e.server, dnsquery.WithTimeout(r.timeout), dnsquery.WithLogger(r.logger))
	if err != nil {
		return netip.Addr{}, err
	}

	if e.qtype == dns.TypeA {
		addrs, err := client.LookupA(ctx, e.name)
		if err != nil {
			return netip.Addr{}, err
		}
		return addrs[0], nil
	}

	txts, err := client.LookupTXT(ctx, e.name, e.qclass)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, txt := range txts {
		if addr, err := publicip.Extract([]byte(txt)); err == nil {
			return addr, nil
		}
	}
	return netip.Addr{}, publicip.ErrNoAddress
}
