// Package config loads ncddns configuration from NC_* environment variables
// and an optional YAML or TOML file. Environment variables override file
// values; every problem found is reported at once in a *ValidationError.
package config

import (
	"fmt"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/ncddns/internal/state"
	"gitlab.bluewillows.net/root/ncddns/pkg/sshutil"
	"gitlab.bluewillows.net/root/ncddns/providers/namecheap"
)

// Defaults.
const (
	DefaultInterval       = 300 * time.Second
	DefaultHTTPTimeout    = 10 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultHealthPort     = 8080
	DefaultVerifyResolver = "1.1.1.1:53"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// Domain is the registered domain whose hosts are updated.
	Domain string
	// Password is the dynamic DNS password for Domain.
	Password string
	// Hosts are the host labels to update, deduplicated, in order.
	Hosts []string

	Interval time.Duration
	// Schedule is an optional cron expression used instead of Interval.
	Schedule string

	// IPProviders overrides the built-in detection endpoints when set.
	IPProviders []string

	// StatePath is a local file or an sftp:// URL.
	StatePath string
	StateSFTP SFTPConfig

	UpdateURL   string
	HTTPTimeout time.Duration

	DryRun         bool
	VerifyDNS      bool
	VerifyResolver string

	LogLevel  string
	LogFormat string

	// HealthPort is the port for /health, /ready and /metrics. Zero
	// disables the server.
	HealthPort int

	// File is the configuration file that was loaded, if any.
	File string
}

// SFTPConfig holds credentials for an sftp:// state location.
type SFTPConfig struct {
	Password       string
	KeyFile        string
	KeyPassphrase  string
	KnownHostsFile string
	Insecure       bool
}

// Default returns a Config with every optional setting at its default.
func Default() *Config {
	return &Config{
		Interval:       DefaultInterval,
		StatePath:      state.DefaultPath,
		UpdateURL:      namecheap.DefaultEndpoint,
		HTTPTimeout:    DefaultHTTPTimeout,
		VerifyResolver: DefaultVerifyResolver,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		HealthPort:     DefaultHealthPort,
	}
}

// Load builds the configuration. path names a config file; when empty,
// NC_CONFIG is consulted, and without either only the environment is used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = getEnv("NC_CONFIG")
	}

	cfg := Default()
	var errs []string

	if path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			errs = append(errs, "config file: "+err.Error())
		} else {
			errs = append(errs, fc.apply(cfg)...)
			cfg.File = path
		}
	}

	errs = append(errs, applyEnv(cfg)...)
	errs = append(errs, validate(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// StateIsRemote reports whether state is kept on an SFTP server.
func (c *Config) StateIsRemote() bool {
	return sshutil.IsURL(c.StatePath)
}

// SSHConfig returns connection settings and the remote file path for an
// sftp:// state location. Credentials in the URL win over StateSFTP.
func (c *Config) SSHConfig() (*sshutil.Config, string, error) {
	sc, remotePath, err := sshutil.ParseURL(c.StatePath)
	if err != nil {
		return nil, "", err
	}
	if sc.Password == "" {
		sc.Password = c.StateSFTP.Password
	}
	sc.KeyFile = c.StateSFTP.KeyFile
	sc.KeyPassphrase = c.StateSFTP.KeyPassphrase
	sc.KnownHostsFile = c.StateSFTP.KnownHostsFile
	sc.InsecureIgnoreHostKey = c.StateSFTP.Insecure

	if err := sc.Validate(); err != nil {
		return nil, "", err
	}
	return sc, remotePath, nil
}

// RedactedStatePath is StatePath with any embedded password masked.
func (c *Config) RedactedStatePath() string {
	if !c.StateIsRemote() {
		return c.StatePath
	}
	sc, remotePath, err := sshutil.ParseURL(c.StatePath)
	if err != nil {
		return "sftp://(invalid)"
	}
	user := sc.User
	if user != "" {
		user += "@"
	}
	return fmt.Sprintf("sftp://%s%s%s", user, sc.Address(), remotePath)
}

// HostList joins Hosts for logging.
func (c *Config) HostList() string {
	return strings.Join(c.Hosts, ",")
}
