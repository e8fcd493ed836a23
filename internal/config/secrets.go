package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrFile returns the contents of the file named by key+"_FILE" when
// set (Docker secrets), otherwise the value of key. File contents are
// trimmed. A _FILE variable pointing at an unreadable file is an error.
func getEnvOrFile(key string) (string, error) {
	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%s: %w", fileKey, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(key), nil
}

// parseBool accepts true/false, 1/0, yes/no and on/off in any case.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// parseInterval accepts a Go duration ("5m") or a bare number of seconds.
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return secondsToDuration(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use seconds or a format like 90s, 5m)", s)
	}
	return d, nil
}

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// splitList splits a comma separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
