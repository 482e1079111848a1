package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.toml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		path    string // if set, use this path instead of temp file
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config",
			content: `
endpoint = "imap.example.com:993"
timeout_ms = 30000
max_reads = 500
validate_certificate = true
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Endpoint != "imap.example.com:993" {
					t.Errorf("endpoint = %q", cfg.Endpoint)
				}
				if cfg.TimeoutMS != 30000 {
					t.Errorf("timeout_ms = %d", cfg.TimeoutMS)
				}
				if cfg.Proxy != nil {
					t.Errorf("expected no proxy table")
				}
			},
		},
		{
			name:    "file not found",
			path:    filepath.Join(t.TempDir(), "nonexistent.toml"),
			wantErr: true,
		},
		{
			name:    "invalid TOML syntax",
			content: `endpoint = this is not valid toml!!!`,
			wantErr: true,
		},
		{
			name:    "missing endpoint",
			content: `timeout_ms = 1000`,
			wantErr: true,
		},
		{
			name: "negative timeout",
			content: `
endpoint = "h:1"
timeout_ms = -1
`,
			wantErr: true,
		},
		{
			name: "valid proxy table",
			content: `
endpoint = "smtp.example.com:587"

[proxy]
kind = "socks5"
host = "proxy.example.com"
port = 1080
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Proxy == nil {
					t.Fatal("expected proxy config")
				}
				if cfg.Proxy.Kind != "socks5" || cfg.Proxy.Port != 1080 {
					t.Errorf("unexpected proxy: %+v", cfg.Proxy)
				}
			},
		},
		{
			name: "unknown proxy kind",
			content: `
endpoint = "h:1"

[proxy]
kind = "wireguard"
host = "p"
port = 1
`,
			wantErr: true,
		},
		{
			name: "proxy missing host",
			content: `
endpoint = "h:1"

[proxy]
kind = "http"
port = 8080
`,
			wantErr: true,
		},
		{
			name: "proxy port out of range",
			content: `
endpoint = "h:1"

[proxy]
kind = "http"
host = "p"
port = 70000
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = writeTemp(t, tt.content)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
