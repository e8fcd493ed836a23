package sshutil

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "password with known_hosts",
			config: Config{Host: "backup.lan", User: "ddns", Password: "pw", KnownHostsFile: "/etc/ssh/known_hosts"},
		},
		{
			name:   "key with insecure",
			config: Config{Host: "backup.lan", User: "ddns", KeyFile: "/keys/id", InsecureIgnoreHostKey: true},
		},
		{
			name:    "missing host",
			config:  Config{User: "ddns", Password: "pw", InsecureIgnoreHostKey: true},
			wantErr: "host is required",
		},
		{
			name:    "missing auth",
			config:  Config{Host: "h", User: "ddns", InsecureIgnoreHostKey: true},
			wantErr: "key file or password",
		},
		{
			name:    "no host key policy",
			config:  Config{Host: "h", User: "ddns", Password: "pw"},
			wantErr: "known_hosts",
		},
		{
			name:    "bad port",
			config:  Config{Host: "h", User: "ddns", Password: "pw", Port: 70000, InsecureIgnoreHostKey: true},
			wantErr: "port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_AddressAndTimeout(t *testing.T) {
	c := Config{Host: "backup.lan"}
	if c.Address() != "backup.lan:22" {
		t.Errorf("unexpected address %s", c.Address())
	}
	if c.GetTimeout() != DefaultSSHTimeout {
		t.Errorf("unexpected timeout %v", c.GetTimeout())
	}

	c = Config{Host: "::1", Port: 2222, Timeout: time.Second}
	if c.Address() != "[::1]:2222" {
		t.Errorf("unexpected address %s", c.Address())
	}
	if c.GetTimeout() != time.Second {
		t.Errorf("unexpected timeout %v", c.GetTimeout())
	}
}

func TestParseURL(t *testing.T) {
	cfg, p, err := ParseURL("sftp://ddns:pw@backup.lan:2222/srv/ncddns/last_ip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "backup.lan" || cfg.Port != 2222 || cfg.User != "ddns" || cfg.Password != "pw" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if p != "/srv/ncddns/last_ip" {
		t.Errorf("unexpected path %q", p)
	}

	cfg, _, err = ParseURL("sftp://ddns@backup.lan/last_ip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != DefaultSSHPort || cfg.Password != "" {
		t.Errorf("unexpected config %+v", cfg)
	}

	for _, bad := range []string{
		"https://backup.lan/last_ip",
		"sftp:///last_ip",
		"sftp://backup.lan",
		"sftp://backup.lan/dir/",
		"sftp://backup.lan:0/last_ip",
	} {
		if _, _, err := ParseURL(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestIsURL(t *testing.T) {
	if !IsURL("SFTP://host/file") {
		t.Error("expected sftp URL to be recognised")
	}
	if IsURL("/data/last_ip") {
		t.Error("local path treated as URL")
	}
}
