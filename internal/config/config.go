// Package config decodes the demo CLI's dial target from TOML, in the
// teacher's decode-then-validate style (internal/config/config.go).
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Endpoint            string `toml:"endpoint"`
	TimeoutMS           int    `toml:"timeout_ms"`
	MaxReads            int    `toml:"max_reads"`
	MaxEmptyReads       int    `toml:"max_empty_reads"`
	ValidateCertificate bool   `toml:"validate_certificate"`

	Proxy *ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Kind string `toml:"kind"` // "http", "socks4", "socks4a", "socks5"
	Host string `toml:"host"`
	Port int    `toml:"port"`
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// Load reads a TOML config file from path, validates it, and returns the Config.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("config: endpoint is required")
	}
	if c.TimeoutMS < 0 {
		return fmt.Errorf("config: timeout_ms must not be negative")
	}
	if c.MaxReads < 0 || c.MaxEmptyReads < 0 {
		return fmt.Errorf("config: max_reads and max_empty_reads must not be negative")
	}
	if c.Proxy == nil {
		return nil
	}
	switch c.Proxy.Kind {
	case "http", "socks4", "socks4a", "socks5":
	default:
		return fmt.Errorf("config: proxy.kind %q is not one of http, socks4, socks4a, socks5", c.Proxy.Kind)
	}
	if c.Proxy.Host == "" {
		return fmt.Errorf("config: proxy.host is required when [proxy] is set")
	}
	if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("config: proxy.port %d out of range", c.Proxy.Port)
	}
	return nil
}
