// Package provider defines what the update cycle needs from a DDNS backend:
// the hosts to publish, the per-host outcome, and the Updater interface.
package provider

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// Updater publishes an address for a single host record.
type Updater interface {
	// Name identifies the backend in logs (e.g. "namecheap").
	Name() string

	// Update issues exactly one update call and never retries. Every failure
	// is reported through Outcome.Failure rather than a Go error.
	Update(ctx context.Context, target HostTarget, addr netip.Addr) Outcome
}

// HostTarget is one host label of a domain together with the credential
// used to update it.
type HostTarget struct {
	Host     string
	Domain   string
	Password string
}

// FQDN returns the fully qualified name the target's A record lives at.
// "@" maps to the apex and "*" to the wildcard.
func (t HostTarget) FQDN() string {
	if t.Host == "@" || t.Host == "" {
		return t.Domain
	}
	return t.Host + "." + t.Domain
}

// String returns the FQDN. The password is never included.
func (t HostTarget) String() string {
	return t.FQDN()
}

// Targets builds the ordered target set for hosts. Labels are trimmed,
// empty labels dropped and duplicates removed keeping the first occurrence.
func Targets(domain, password string, hosts []string) []HostTarget {
	seen := make(map[string]struct{}, len(hosts))
	out := make([]HostTarget, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		key := strings.ToLower(h)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, HostTarget{Host: h, Domain: domain, Password: password})
	}
	return out
}

// Outcome is the result of publishing one address to one host.
type Outcome struct {
	Host      string
	Requested netip.Addr

	// Published is the address the provider reports it set. Only
	// meaningful when Failure is nil.
	Published netip.Addr

	Failure *Failure
}

// Success reports whether the provider accepted the update.
func (o Outcome) Success() bool {
	return o.Failure == nil
}

func (o Outcome) String() string {
	if o.Success() {
		return fmt.Sprintf("%s: published %s", o.Host, o.Published)
	}
	return fmt.Sprintf("%s: %v", o.Host, o.Failure)
}

// Succeeded returns a successful outcome.
func Succeeded(host string, requested, published netip.Addr) Outcome {
	return Outcome{Host: host, Requested: requested, Published: published}
}

// Failed returns a failed outcome.
func Failed(host string, requested netip.Addr, f *Failure) Outcome {
	return Outcome{Host: host, Requested: requested, Failure: f}
}
