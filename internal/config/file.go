package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk configuration. The same keys are used for YAML
// and TOML files.
type FileConfig struct {
	Domain      string   `yaml:"domain,omitempty" toml:"domain"`
	Password    string   `yaml:"password,omitempty" toml:"password"`
	Hosts       []string `yaml:"hosts,omitempty" toml:"hosts"`
	Interval    string   `yaml:"interval,omitempty" toml:"interval"` // seconds or Go duration
	Schedule    string   `yaml:"schedule,omitempty" toml:"schedule"`
	IPProviders []string `yaml:"ip_providers,omitempty" toml:"ip_providers"`
	UpdateURL   string   `yaml:"update_url,omitempty" toml:"update_url"`
	HTTPTimeout string   `yaml:"http_timeout,omitempty" toml:"http_timeout"`
	DryRun      *bool    `yaml:"dry_run,omitempty" toml:"dry_run"`

	State   *FileStateConfig   `yaml:"state,omitempty" toml:"state"`
	Verify  *FileVerifyConfig  `yaml:"verify,omitempty" toml:"verify"`
	Logging *FileLoggingConfig `yaml:"logging,omitempty" toml:"logging"`
	Server  *FileServerConfig  `yaml:"server,omitempty" toml:"server"`
}

// FileStateConfig holds the state location.
type FileStateConfig struct {
	Path string          `yaml:"path,omitempty" toml:"path"` // local path or sftp:// URL
	SFTP *FileSFTPConfig `yaml:"sftp,omitempty" toml:"sftp"`
}

// FileSFTPConfig holds credentials for an sftp:// state location.
type FileSFTPConfig struct {
	Password      string `yaml:"password,omitempty" toml:"password"`
	KeyFile       string `yaml:"key_file,omitempty" toml:"key_file"`
	KeyPassphrase string `yaml:"key_passphrase,omitempty" toml:"key_passphrase"`
	KnownHosts    string `yaml:"known_hosts,omitempty" toml:"known_hosts"`
	Insecure      *bool  `yaml:"insecure,omitempty" toml:"insecure"`
}

// FileVerifyConfig holds the post-publish DNS check settings.
type FileVerifyConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty" toml:"enabled"`
	Resolver string `yaml:"resolver,omitempty" toml:"resolver"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`   // trace, debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format"` // json, text
}

// FileServerConfig holds health/metrics server settings.
type FileServerConfig struct {
	Port *int `yaml:"port,omitempty" toml:"port"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return groups[2]
	})
}

func (c *FileConfig) interpolateEnvVars() {
	for _, s := range []*string{&c.Domain, &c.Password, &c.Interval, &c.Schedule, &c.UpdateURL, &c.HTTPTimeout} {
		*s = InterpolateEnvVars(*s)
	}
	for i := range c.Hosts {
		c.Hosts[i] = InterpolateEnvVars(c.Hosts[i])
	}
	for i := range c.IPProviders {
		c.IPProviders[i] = InterpolateEnvVars(c.IPProviders[i])
	}

	if c.State != nil {
		c.State.Path = InterpolateEnvVars(c.State.Path)
		if s := c.State.SFTP; s != nil {
			s.Password = InterpolateEnvVars(s.Password)
			s.KeyFile = InterpolateEnvVars(s.KeyFile)
			s.KeyPassphrase = InterpolateEnvVars(s.KeyPassphrase)
			s.KnownHosts = InterpolateEnvVars(s.KnownHosts)
		}
	}
	if c.Verify != nil {
		c.Verify.Resolver = InterpolateEnvVars(c.Verify.Resolver)
	}
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}
}

// LoadFile reads a YAML (.yaml, .yml) or TOML (.toml) configuration file.
// Unknown keys are rejected. Environment variables in ${VAR} format are
// interpolated into string values.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("unknown keys in TOML config: %s", strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (use .yaml, .yml or .toml)", ext)
	}

	cfg.interpolateEnvVars()
	return &cfg, nil
}

// apply copies the values set in the file onto cfg.
func (c *FileConfig) apply(cfg *Config) []string {
	var errs []string

	if c.Domain != "" {
		cfg.Domain = c.Domain
	}
	if c.Password != "" {
		cfg.Password = c.Password
	}
	if len(c.Hosts) > 0 {
		cfg.Hosts = c.Hosts
	}
	if c.Interval != "" {
		d, err := parseInterval(c.Interval)
		if err != nil {
			errs = append(errs, "interval: "+err.Error())
		} else {
			cfg.Interval = d
		}
	}
	if c.Schedule != "" {
		cfg.Schedule = c.Schedule
	}
	if len(c.IPProviders) > 0 {
		cfg.IPProviders = c.IPProviders
	}
	if c.UpdateURL != "" {
		cfg.UpdateURL = c.UpdateURL
	}
	if c.HTTPTimeout != "" {
		d, err := parseInterval(c.HTTPTimeout)
		if err != nil {
			errs = append(errs, "http_timeout: "+err.Error())
		} else {
			cfg.HTTPTimeout = d
		}
	}
	if c.DryRun != nil {
		cfg.DryRun = *c.DryRun
	}

	if c.State != nil {
		if c.State.Path != "" {
			cfg.StatePath = c.State.Path
		}
		if s := c.State.SFTP; s != nil {
			cfg.StateSFTP.Password = s.Password
			cfg.StateSFTP.KeyFile = s.KeyFile
			cfg.StateSFTP.KeyPassphrase = s.KeyPassphrase
			cfg.StateSFTP.KnownHostsFile = s.KnownHosts
			if s.Insecure != nil {
				cfg.StateSFTP.Insecure = *s.Insecure
			}
		}
	}

	if c.Verify != nil {
		if c.Verify.Enabled != nil {
			cfg.VerifyDNS = *c.Verify.Enabled
		}
		if c.Verify.Resolver != "" {
			cfg.VerifyResolver = c.Verify.Resolver
		}
	}

	if c.Logging != nil {
		if c.Logging.Level != "" {
			cfg.LogLevel = strings.ToLower(c.Logging.Level)
		}
		if c.Logging.Format != "" {
			cfg.LogFormat = strings.ToLower(c.Logging.Format)
		}
	}

	if c.Server != nil && c.Server.Port != nil {
		cfg.HealthPort = *c.Server.Port
	}

	return errs
}
