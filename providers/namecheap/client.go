// Package namecheap implements the dynamic DNS update client for the
// Namecheap DDNS HTTP API.
package namecheap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"time"

	"gitlab.bluewillows.net/root/ncddns/internal/logging"
	"gitlab.bluewillows.net/root/ncddns/internal/metrics"
	"gitlab.bluewillows.net/root/ncddns/pkg/httputil"
	"gitlab.bluewillows.net/root/ncddns/pkg/provider"
)

// Name is the backend name used in logs.
const Name = "namecheap"

// Client issues update calls.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates an update client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}

	c := &Client{
		endpoint: endpoint,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(&httputil.ClientConfig{
			Timeout:   cfg.Timeout,
			UserAgent: cfg.UserAgent,
			Logger:    c.logger,
		})
	}

	return c, nil
}

// Name implements provider.Updater.
func (c *Client) Name() string {
	return Name
}

// Update publishes addr for target with a single GET request.
func (c *Client) Update(ctx context.Context, target provider.HostTarget, addr netip.Addr) provider.Outcome {
	start := time.Now()
	outcome := c.update(ctx, target, addr)

	result := metrics.ResultSuccess
	if !outcome.Success() {
		result = metrics.ResultFailure
	}
	metrics.UpdatesTotal.WithLabelValues(target.Host, result).Inc()
	metrics.UpdateDuration.WithLabelValues(target.Host).Observe(time.Since(start).Seconds())

	return outcome
}

func (c *Client) update(ctx context.Context, target provider.HostTarget, addr netip.Addr) provider.Outcome {
	host := target.Host

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(target, addr), nil)
	if err != nil {
		return provider.Failed(host, addr, provider.TransportFailure(fmt.Errorf("creating request: %w", err)))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Failed(host, addr, provider.TransportFailure(scrubURLError(err)))
	}
	defer resp.Body.Close()

	body, err := httputil.ReadBody(resp.Body)
	if err != nil {
		return provider.Failed(host, addr, provider.TransportFailure(err))
	}

	logging.Trace(ctx, c.logger, "update response body",
		slog.String("host", host),
		slog.Int("status", resp.StatusCode),
		slog.String("body", string(body)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return provider.Failed(host, addr, provider.StatusFailure(resp.StatusCode))
	}

	parsed, err := ParseResponse(body)
	if err != nil {
		c.logger.Debug("unparseable update response",
			slog.String("host", host),
			slog.String("error", err.Error()),
		)
		return provider.Failed(host, addr, provider.MalformedFailure(err))
	}

	if parsed.Failed() {
		first := parsed.FirstError()
		for _, extra := range parsed.Errors[min(1, len(parsed.Errors)):] {
			logging.Trace(ctx, c.logger, "additional provider error",
				slog.String("host", host),
				slog.String("code", extra.Code),
				slog.String("description", extra.Description),
			)
		}
		return provider.Failed(host, addr, provider.ProviderFailure(first.Code, first.Description))
	}

	published := addr
	if echoed, ok := parsed.EchoedIP(); ok {
		published = echoed
		if echoed != addr {
			c.logger.Warn("provider set a different address than requested",
				slog.String("host", host),
				slog.String("requested", addr.String()),
				slog.String("published", echoed.String()),
			)
		}
	}

	return provider.Succeeded(host, addr, published)
}

func (c *Client) requestURL(target provider.HostTarget, addr netip.Addr) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("host", target.Host)
	q.Set("domain", target.Domain)
	q.Set("password", target.Password)
	q.Set("ip", addr.String())
	u.RawQuery = q.Encode()
	return u.String()
}

// scrubURLError strips the request URL, which carries the password, from
// errors returned by http.Client.
func scrubURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
