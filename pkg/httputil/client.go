// Package httputil provides the HTTP client shared by IP detection and the
// update client.
package httputil

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultTimeout bounds every outbound request unless overridden.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is sent when ClientConfig.UserAgent is empty.
	DefaultUserAgent = "ncddns/dev"

	// MaxBodyBytes caps how much of a response body ReadBody will return.
	MaxBodyBytes = 64 << 10
)

// redacted lists query parameters whose values never reach the logs.
var redacted = map[string]struct{}{
	"password": {},
	"token":    {},
	"key":      {},
	"secret":   {},
}

// ClientConfig contains configuration for creating an HTTP client.
type ClientConfig struct {
	// Timeout is the whole-request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// UserAgent defaults to DefaultUserAgent.
	UserAgent string

	// Logger enables debug logging of requests. Nil disables it.
	Logger *slog.Logger
}

// loggingTransport sets the User-Agent and logs requests with secrets
// removed from the URL.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	if t.logger != nil {
		attrs := []any{
			slog.String("method", req.Method),
			slog.String("url", RedactURL(req.URL)),
			slog.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		} else {
			attrs = append(attrs, slog.Int("status", resp.StatusCode))
		}
		t.logger.Debug("HTTP request", attrs...)
	}

	return resp, err
}

// NewClient creates an HTTP client with the specified configuration.
// A nil cfg yields the defaults.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &loggingTransport{
			base:      http.DefaultTransport,
			userAgent: userAgent,
			logger:    cfg.Logger,
		},
	}
}

// RedactURL renders u with the values of sensitive query parameters and any
// userinfo password replaced by "REDACTED".
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	if c.User != nil {
		if _, ok := c.User.Password(); ok {
			c.User = url.UserPassword(c.User.Username(), "REDACTED")
		}
	}
	if c.RawQuery != "" {
		q := c.Query()
		for k := range q {
			if _, ok := redacted[k]; ok {
				q.Set(k, "REDACTED")
			}
		}
		c.RawQuery = q.Encode()
	}
	return c.String()
}

// ReadBody reads at most MaxBodyBytes from r. A body exceeding the limit is
// an error rather than silently truncated.
func ReadBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxBodyBytes)
	}
	return body, nil
}
