// Package config loads hlink settings from a YAML file and HLINK_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lacpass/healthlink/pkg/exchange"
)

// Environment variables read by ApplyEnv.
const (
	EnvRegionalBase     = "HLINK_REGIONAL_BASE"
	EnvBasicUser        = "HLINK_BASIC_USER"
	EnvBasicPass        = "HLINK_BASIC_PASS"
	EnvIssuanceURL      = "HLINK_VHL_ISSUANCE_URL"
	EnvResolveURL       = "HLINK_VHL_RESOLVE_URL"
	EnvCertificateURL   = "HLINK_ICVP_URL"
	EnvTimeout          = "HLINK_TIMEOUT"
	EnvIdentifierMode   = "HLINK_IDENTIFIER_MODE"
	EnvIdentifierPrefix = "HLINK_IDENTIFIER_PREFIX"
	EnvLogLevel         = "HLINK_LOG_LEVEL"
	EnvLogFormat        = "HLINK_LOG_FORMAT"
)

// Config is the file form of the settings.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Log      LogConfig      `yaml:"log"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
}

// ExchangeConfig holds the exchange endpoints and limits.
type ExchangeConfig struct {
	RegionalBase   string `yaml:"regionalBase"`
	BasicUser      string `yaml:"basicUser,omitempty"`
	BasicPass      string `yaml:"basicPass,omitempty"`
	IssuanceURL    string `yaml:"issuanceUrl,omitempty"`
	ResolveURL     string `yaml:"resolveUrl,omitempty"`
	CertificateURL string `yaml:"certificateUrl,omitempty"`

	// Timeout is a Go duration string such as "30s".
	Timeout          string `yaml:"timeout,omitempty"`
	MaxBodyBytes     int64  `yaml:"maxBodyBytes,omitempty"`
	FetchConcurrency int    `yaml:"fetchConcurrency,omitempty"`

	Identifier struct {
		Mode   string  `yaml:"mode,omitempty"`
		Prefix *string `yaml:"prefix,omitempty"`
	} `yaml:"identifier,omitempty"`

	Discovery struct {
		Step      int `yaml:"step,omitempty"`
		MaxCount  int `yaml:"maxCount,omitempty"`
		MaxStalls int `yaml:"maxStalls,omitempty"`
	} `yaml:"discovery,omitempty"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// SandboxConfig configures `hlink sandbox`.
type SandboxConfig struct {
	Addr      string `yaml:"addr,omitempty"`
	BasicUser string `yaml:"basicUser,omitempty"`
	BasicPass string `yaml:"basicPass,omitempty"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Sandbox: SandboxConfig{Addr: "127.0.0.1:8480"},
	}
}

// LoadFile reads a YAML file over the defaults. An empty path returns the
// defaults.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses YAML over the defaults.
func LoadBytes(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides settings from the environment. lookupEnv is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookupEnv func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Exchange.RegionalBase, EnvRegionalBase)
	set(&c.Exchange.BasicUser, EnvBasicUser)
	set(&c.Exchange.BasicPass, EnvBasicPass)
	set(&c.Exchange.IssuanceURL, EnvIssuanceURL)
	set(&c.Exchange.ResolveURL, EnvResolveURL)
	set(&c.Exchange.CertificateURL, EnvCertificateURL)
	set(&c.Exchange.Timeout, EnvTimeout)
	set(&c.Exchange.Identifier.Mode, EnvIdentifierMode)
	set(&c.Log.Level, EnvLogLevel)
	set(&c.Log.Format, EnvLogFormat)

	// An empty prefix disables prefixing, so presence alone counts.
	if v, ok := lookupEnv(EnvIdentifierPrefix); ok {
		v = strings.TrimSpace(v)
		c.Exchange.Identifier.Prefix = &v
	}
}

// ExchangeConfig converts the settings to a validated exchange.Config.
func (c *Config) ExchangeConfig() (*exchange.Config, error) {
	e := c.Exchange
	out := exchange.DefaultConfig()
	out.RegionalBase = e.RegionalBase
	out.BasicUser = e.BasicUser
	out.BasicPass = e.BasicPass
	out.IssuanceURL = e.IssuanceURL
	out.ResolveURL = e.ResolveURL
	out.CertificateURL = e.CertificateURL

	if e.Timeout != "" {
		d, err := parseDuration(e.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid exchange timeout: %w", err)
		}
		out.RequestTimeout = d
	}
	if e.MaxBodyBytes != 0 {
		out.MaxBodyBytes = e.MaxBodyBytes
	}
	if e.FetchConcurrency != 0 {
		out.FetchConcurrency = e.FetchConcurrency
	}
	if e.Identifier.Mode != "" {
		out.Identifier.Mode = exchange.IdentifierMode(strings.ToLower(e.Identifier.Mode))
	}
	if e.Identifier.Prefix != nil {
		out.Identifier.Prefix = *e.Identifier.Prefix
	}
	if e.Discovery.Step != 0 {
		out.Discovery.Step = e.Discovery.Step
	}
	if e.Discovery.MaxCount != 0 {
		out.Discovery.MaxCount = e.Discovery.MaxCount
	}
	if e.Discovery.MaxStalls != 0 {
		out.Discovery.MaxStalls = e.Discovery.MaxStalls
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
