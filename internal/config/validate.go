package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"gitlab.bluewillows.net/root/ncddns/internal/resolver"
	"gitlab.bluewillows.net/root/ncddns/internal/scheduler"
	"gitlab.bluewillows.net/root/ncddns/pkg/provider"
	"gitlab.bluewillows.net/root/ncddns/providers/namecheap"
)

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// hostLabelPattern accepts "@", "*", and DNS labels that may contain
// wildcards and dots for multi-level hosts such as "*.dev".
var hostLabelPattern = regexp.MustCompile(`^(@|[A-Za-z0-9_*]([A-Za-z0-9_*.-]*[A-Za-z0-9_*])?)$`)

// validate normalizes cfg in place and returns every problem found.
func validate(cfg *Config) []string {
	var errs []string

	cfg.Domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(cfg.Domain)), ".")
	if cfg.Domain == "" {
		errs = append(errs, "NC_DOMAIN: is required")
	} else if err := validateDomain(cfg.Domain); err != nil {
		errs = append(errs, "NC_DOMAIN: "+err.Error())
	}

	if cfg.Password == "" {
		errs = append(errs, "NC_PASSWORD: is required (or NC_PASSWORD_FILE)")
	}

	cfg.Hosts = dedupeHosts(cfg.Hosts)
	if len(cfg.Hosts) == 0 {
		errs = append(errs, "NC_HOSTS: at least one host is required")
	}
	for _, h := range cfg.Hosts {
		if !hostLabelPattern.MatchString(h) {
			errs = append(errs, fmt.Sprintf("NC_HOSTS: invalid host label %q", h))
		}
	}

	if cfg.Interval < time.Second {
		errs = append(errs, fmt.Sprintf("NC_INTERVAL: must be at least 1s, got %s", cfg.Interval))
	}
	if cfg.Schedule != "" {
		if _, err := scheduler.ParseSchedule(cfg.Schedule); err != nil {
			errs = append(errs, "NC_SCHEDULE: "+err.Error())
		}
	}

	for _, raw := range cfg.IPProviders {
		if _, err := resolver.ParseEndpoint(raw); err != nil {
			errs = append(errs, "NC_IP_PROVIDERS: "+err.Error())
		}
	}

	if cfg.StatePath == "" {
		errs = append(errs, "NC_STATE_FILE: must not be empty")
	} else if cfg.StateIsRemote() {
		if _, _, err := cfg.SSHConfig(); err != nil {
			errs = append(errs, "NC_STATE_FILE: "+err.Error())
		}
	}

	nc := namecheap.Config{Endpoint: cfg.UpdateURL}
	if err := nc.Validate(); err != nil {
		var cfgErr *provider.ConfigError
		if errors.As(err, &cfgErr) {
			errs = append(errs, fmt.Sprintf("NC_UPDATE_URL: invalid value %q (%s)", cfg.UpdateURL, cfgErr.Message))
		} else {
			errs = append(errs, "NC_UPDATE_URL: "+err.Error())
		}
	} else {
		cfg.UpdateURL = nc.Endpoint
	}

	if cfg.HTTPTimeout <= 0 {
		errs = append(errs, "NC_HTTP_TIMEOUT: must be positive")
	}

	if cfg.VerifyDNS {
		if strings.TrimSpace(cfg.VerifyResolver) == "" {
			errs = append(errs, "NC_VERIFY_RESOLVER: is required when NC_VERIFY_DNS is enabled")
		}
	}

	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("NC_LOG_LEVEL: invalid value %q (must be trace, debug, info, warn, or error)", cfg.LogLevel))
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("NC_LOG_FORMAT: invalid value %q (must be json or text)", cfg.LogFormat))
	}

	if cfg.HealthPort < 0 || cfg.HealthPort > 65535 {
		errs = append(errs, fmt.Sprintf("NC_HEALTH_PORT: must be between 0 and 65535, got %d", cfg.HealthPort))
	}

	return errs
}

// validateDomain requires a registrable domain (eTLD+1), which is what the
// dynamic DNS API expects; subdomains go in the host labels.
func validateDomain(domain string) error {
	apex, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return fmt.Errorf("%q is not a valid domain: %w", domain, err)
	}
	if apex != domain {
		return fmt.Errorf("%q is a subdomain; use %q and put the rest in NC_HOSTS", domain, apex)
	}
	return nil
}

// dedupeHosts trims labels and drops blanks and case-insensitive duplicates,
// keeping the first occurrence.
func dedupeHosts(hosts []string) []string {
	seen := make(map[string]bool, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		key := strings.ToLower(h)
		if h == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}
