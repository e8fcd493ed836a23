package resolver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/miekg/dns"
)

// Kind selects how an endpoint is queried.
type Kind string

const (
	// KindHTTP endpoints answer a GET with the address in a plain-text body.
	KindHTTP Kind = "http"

	// KindDNS endpoints answer an A or TXT query with the caller's address.
	KindDNS Kind = "dns"
)

// DefaultEndpoints are tried in this order when none are configured.
var DefaultEndpoints = []string{
	"https://ifconfig.me/ip",
	"https://ipv4.icanhazip.com",
	"https://api.ipify.org",
}

// Endpoint is one parsed detection source.
type Endpoint struct {
	URL  string
	Kind Kind

	// DNS endpoints only.
	server string
	name   string
	qtype  uint16
	qclass uint16
}

func (e Endpoint) String() string {
	return e.URL
}

// ParseEndpoint validates a detection URL. HTTP endpoints use http or https.
// DNS endpoints are written dns://server[:port]/name with optional
// type=A|TXT and class=IN|CH query parameters, for example
// dns://resolver1.opendns.com/myip.opendns.com.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return Endpoint{}, fmt.Errorf("invalid endpoint %q: missing host", raw)
		}
		return Endpoint{URL: raw, Kind: KindHTTP}, nil

	case "dns":
		return parseDNSEndpoint(raw, u)

	default:
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
}

func parseDNSEndpoint(raw string, u *url.URL) (Endpoint, error) {
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: missing DNS server", raw)
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: missing query name", raw)
	}

	e := Endpoint{
		URL:    raw,
		Kind:   KindDNS,
		server: u.Host,
		name:   name,
		qtype:  dns.TypeA,
		qclass: dns.ClassINET,
	}

	q := u.Query()
	switch strings.ToUpper(q.Get("type")) {
	case "", "A":
	case "TXT":
		e.qtype = dns.TypeTXT
	default:
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: type must be A or TXT", raw)
	}
	switch strings.ToUpper(q.Get("class")) {
	case "", "IN":
	case "CH", "CHAOS":
		e.qclass = dns.ClassCHAOS
	default:
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: class must be IN or CH", raw)
	}
	if e.qtype == dns.TypeA && e.qclass != dns.ClassINET {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: A queries must use class IN", raw)
	}

	return e, nil
}
