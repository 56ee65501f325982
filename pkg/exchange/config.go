package exchange

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Discovery defaults.
const (
	DefaultStep      = 50
	DefaultMaxCount  = 2000
	DefaultMaxStalls = 2
)

// Config holds the endpoints and limits of a Client.
type Config struct {
	// RegionalBase is the FHIR base URL of the regional exchange.
	RegionalBase string

	// Basic credentials sent to the regional exchange. Empty disables auth.
	BasicUser string
	BasicPass string

	// Gateway endpoints.
	IssuanceURL    string // VHL issuance (POST bundle)
	ResolveURL     string // VHL resolution (POST qrCodeContent)
	CertificateURL string // ICVP certificate generation

	// RequestTimeout bounds every outbound request.
	RequestTimeout time.Duration

	// MaxBodyBytes caps the size of a response body. Zero means no cap.
	MaxBodyBytes int64

	// FetchConcurrency bounds parallel manifest file retrievals.
	FetchConcurrency int

	Identifier IdentifierPolicy
	Discovery  DiscoveryConfig
}

// DiscoveryConfig controls the incremental page-size probe of Search.
type DiscoveryConfig struct {
	// Step is the first page size and the increment between probes.
	Step int
	// MaxCount is the largest page size requested.
	MaxCount int
	// MaxStalls is the number of consecutive probes without growth after
	// which discovery stops.
	MaxStalls int
}

// Requests returns the worst-case number of requests a search issues.
func (d DiscoveryConfig) Requests() int {
	if d.Step <= 0 {
		return 0
	}
	return d.MaxCount / d.Step
}

// DefaultConfig returns a Config with the regional exchange defaults. The
// endpoints are left for the caller to set.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout:   30 * time.Second,
		MaxBodyBytes:     32 << 20,
		FetchConcurrency: 4,
		Identifier:       DefaultIdentifierPolicy(),
		Discovery: DiscoveryConfig{
			Step:      DefaultStep,
			MaxCount:  DefaultMaxCount,
			MaxStalls: DefaultMaxStalls,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.RegionalBase == "" {
		return fmt.Errorf("%w: regional base URL is required", ErrConfig)
	}
	for name, raw := range map[string]string{
		"regional base":   c.RegionalBase,
		"issuance URL":    c.IssuanceURL,
		"resolve URL":     c.ResolveURL,
		"certificate URL": c.CertificateURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: invalid %s %q", ErrConfig, name, raw)
		}
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: negative request timeout", ErrConfig)
	}
	if c.Discovery.Step <= 0 || c.Discovery.MaxCount < c.Discovery.Step {
		return fmt.Errorf("%w: discovery step %d must be positive and not exceed max count %d",
			ErrConfig, c.Discovery.Step, c.Discovery.MaxCount)
	}
	if c.Discovery.MaxStalls <= 0 {
		return fmt.Errorf("%w: discovery max stalls must be positive", ErrConfig)
	}
	switch c.Identifier.Mode {
	case IdentifierEnsure, IdentifierStrip, IdentifierNone:
	default:
		return fmt.Errorf("%w: unknown identifier mode %q", ErrConfig, c.Identifier.Mode)
	}
	return nil
}

// hasBasicAuth reports whether credentials are configured.
func (c *Config) hasBasicAuth() bool {
	return c.BasicUser != "" || c.BasicPass != ""
}

// regionalBase returns RegionalBase without trailing slashes.
func (c *Config) regionalBase() string {
	return strings.TrimRight(c.RegionalBase, "/")
}
