package namecheap

import (
	"net/url"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ncddns/pkg/provider"
)

// DefaultEndpoint is the dynamic DNS update URL.
const DefaultEndpoint = "https://dynamicdns.park-your-domain.com/update"

// Config holds the update client settings.
type Config struct {
	// Endpoint is the update URL. Defaults to DefaultEndpoint.
	Endpoint string

	// Timeout bounds each update call. Zero uses the HTTP client default.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// Validate checks the configuration and fills defaults.
// Errors are *provider.ConfigError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = DefaultEndpoint
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return provider.ErrConfigInvalid("endpoint", c.Endpoint, "not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return provider.ErrConfigInvalid("endpoint", c.Endpoint, "scheme must be http or https")
	}
	if u.Host == "" {
		return provider.ErrConfigMissing("endpoint host")
	}
	if c.Timeout < 0 {
		return provider.ErrConfigInvalid("timeout", c.Timeout.String(), "must be non-negative")
	}
	return nil
}
