// Package publicip parses and extracts public IPv4 addresses.
package publicip

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"unicode"
)

var (
	// ErrNotIPv4 is returned when the input is not a dotted-decimal IPv4 literal.
	ErrNotIPv4 = errors.New("not an IPv4 address")

	// ErrNoAddress is returned when a body contains no IPv4 literal.
	ErrNoAddress = errors.New("no IPv4 address found")
)

// Parse parses s as a dotted-decimal IPv4 address. Surrounding whitespace is
// ignored. IPv6 literals, IPv4-mapped IPv6 and zoned addresses are rejected.
func Parse(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrNotIPv4, s)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrNotIPv4, s)
	}
	return addr, nil
}

// Extract returns the first IPv4 literal in body. The trimmed body is tried
// as a whole first; otherwise it is split on anything that cannot be part of
// an address and each token is tried in order.
func Extract(body []byte) (netip.Addr, error) {
	text := string(body)
	if addr, err := Parse(text); err == nil {
		return addr, nil
	}

	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r != '.' && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".")
		if addr, err := Parse(tok); err == nil {
			return addr, nil
		}
	}
	return netip.Addr{}, ErrNoAddress
}
