package config

import (
	"strconv"
	"strings"
)

// applyEnv overrides cfg with every NC_* variable that is set.
func applyEnv(cfg *Config) []string {
	var errs []string

	if v := getEnv("NC_DOMAIN"); v != "" {
		cfg.Domain = v
	}

	if v, err := getEnvOrFile("NC_PASSWORD"); err != nil {
		errs = append(errs, err.Error())
	} else if v != "" {
		cfg.Password = v
	}

	if v := getEnv("NC_HOSTS"); v != "" {
		cfg.Hosts = splitList(v)
	}

	// NC_INTERVAL_SECONDS is the older name and only counts when
	// NC_INTERVAL is unset.
	if v := getEnv("NC_INTERVAL"); v != "" {
		if d, err := parseInterval(v); err != nil {
			errs = append(errs, "NC_INTERVAL: "+err.Error())
		} else {
			cfg.Interval = d
		}
	} else if v := getEnv("NC_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err != nil {
			errs = append(errs, "NC_INTERVAL_SECONDS: must be an integer, got "+strconv.Quote(v))
		} else {
			cfg.Interval = secondsToDuration(n)
		}
	}

	if v := getEnv("NC_SCHEDULE"); v != "" {
		cfg.Schedule = strings.TrimSpace(v)
	}

	if v := getEnv("NC_IP_PROVIDERS"); v != "" {
		cfg.IPProviders = splitList(v)
	}

	if v := getEnv("NC_STATE_FILE"); v != "" {
		cfg.StatePath = strings.TrimSpace(v)
	}
	if v, err := getEnvOrFile("NC_STATE_SFTP_PASSWORD"); err != nil {
		errs = append(errs, err.Error())
	} else if v != "" {
		cfg.StateSFTP.Password = v
	}
	if v := getEnv("NC_STATE_SFTP_KEY_FILE"); v != "" {
		cfg.StateSFTP.KeyFile = v
	}
	if v, err := getEnvOrFile("NC_STATE_SFTP_KEY_PASSPHRASE"); err != nil {
		errs = append(errs, err.Error())
	} else if v != "" {
		cfg.StateSFTP.KeyPassphrase = v
	}
	if v := getEnv("NC_STATE_SFTP_KNOWN_HOSTS"); v != "" {
		cfg.StateSFTP.KnownHostsFile = v
	}
	errs = appendBool(errs, "NC_STATE_SFTP_INSECURE", &cfg.StateSFTP.Insecure)

	if v := getEnv("NC_UPDATE_URL"); v != "" {
		cfg.UpdateURL = strings.TrimSpace(v)
	}
	if v := getEnv("NC_HTTP_TIMEOUT"); v != "" {
		if d, err := parseInterval(v); err != nil {
			errs = append(errs, "NC_HTTP_TIMEOUT: "+err.Error())
		} else {
			cfg.HTTPTimeout = d
		}
	}

	errs = appendBool(errs, "NC_DRY_RUN", &cfg.DryRun)
	errs = appendBool(errs, "NC_VERIFY_DNS", &cfg.VerifyDNS)
	if v := getEnv("NC_VERIFY_RESOLVER"); v != "" {
		cfg.VerifyResolver = strings.TrimSpace(v)
	}

	if v := getEnv("NC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := getEnv("NC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(v))
	} else if v := getEnv("LOG_STYLE"); v != "" {
		cfg.LogFormat = logStyleFormat(v)
	}

	if v := getEnv("NC_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err != nil {
			errs = append(errs, "NC_HEALTH_PORT: invalid integer "+strconv.Quote(v))
		} else {
			cfg.HealthPort = port
		}
	}

	return errs
}

func appendBool(errs []string, key string, dst *bool) []string {
	v := getEnv(key)
	if v == "" {
		return errs
	}
	b, err := parseBool(v)
	if err != nil {
		return append(errs, key+": "+err.Error())
	}
	*dst = b
	return errs
}

// logStyleFormat maps the LOG_STYLE values of older deployments
// (default, compact, raw, json) onto a handler format.
func logStyleFormat(style string) string {
	if strings.EqualFold(strings.TrimSpace(style), "json") {
		return "json"
	}
	return "text"
}
