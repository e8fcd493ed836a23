// Package dnsquery performs the small set of DNS lookups ncddns needs:
// A and TXT queries against one explicitly chosen server.
package dnsquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultTimeout bounds a single exchange.
const DefaultTimeout = 5 * time.Second

var (
	// ErrQueryFailed is returned when the exchange fails or the server answers
	// with a non-success rcode.
	ErrQueryFailed = errors.New("dns query failed")

	// ErrNoAnswer is returned when a successful response carries no usable record.
	ErrNoAnswer = errors.New("no matching answer")
)

// Client queries a single DNS server.
type Client struct {
	server string
	client *dns.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout sets the per-exchange timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithTCP makes the client query over TCP instead of UDP.
func WithTCP() Option {
	return func(c *Client) {
		c.client.Net = "tcp"
	}
}

// New creates a client for server. A server without a port gets port 53.
func New(server string, opts ...Option) (*Client, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return nil, errors.New("dns server is required")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
	}

	c := &Client{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Server returns the host:port the client queries.
func (c *Client) Server() string {
	return c.server
}

// LookupA returns the IPv4 addresses in the answer section for name.
func (c *Client) LookupA(ctx context.Context, name string) ([]netip.Addr, error) {
	resp, err := c.exchange(ctx, name, dns.TypeA, dns.ClassINET)
	if err != nil {
		return nil, err
	}

	var addrs []netip.Addr
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: A %s", ErrNoAnswer, name)
	}
	return addrs, nil
}

// LookupTXT returns every TXT string in the answer section for name in the
// given class (dns.ClassINET or dns.ClassCHAOS).
func (c *Client) LookupTXT(ctx context.Context, name string, class uint16) ([]string, error) {
	resp, err := c.exchange(ctx, name, dns.TypeTXT, class)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			out = append(out, txt.Txt...)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: TXT %s", ErrNoAnswer, name)
	}
	return out, nil
}

func (c *Client) exchange(ctx context.Context, name string, qtype, qclass uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.Question[0].Qclass = qclass
	msg.RecursionDesired = true

	resp, rtt, err := c.client.ExchangeContext(ctx, msg, c.server)
	if err != nil {
		return nil, fmt.Errorf("%w: %s @%s: %w", ErrQueryFailed, name, c.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: %s @%s: %s", ErrQueryFailed, name, c.server, dns.RcodeToString[resp.Rcode])
	}

	c.logger.Debug("dns query answered",
		slog.String("name", name),
		slog.String("type", dns.TypeToString[qtype]),
		slog.String("server", c.server),
		slog.Duration("rtt", rtt),
		slog.Int("answers", len(resp.Answer)),
	)
	return resp, nil
}
