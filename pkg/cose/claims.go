package cose

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/lacpass/healthlink/pkg/claimtree"
)

// CWT Claim keys (RFC 8392).
const (
	ClaimIss int64 = 1 // Issuer
	ClaimSub int64 = 2 // Subject
	ClaimAud int64 = 3 // Audience
	ClaimExp int64 = 4 // Expiration Time
	ClaimNbf int64 = 5 // Not Before
	ClaimIat int64 = 6 // Issued At
	ClaimCti int64 = 7 // CWT ID
)

// Health certificate claim and its entries.
const (
	ClaimHCert int64 = -260
	HCertDCC   int64 = 1
	HCertICVP  int64 = -6
)

// Claims represents CWT claims (RFC 8392).
// Standard claims use integer keys 1-7. Every other integer-keyed claim is
// kept as a tree in Custom.
type Claims struct {
	Issuer     string    // iss (1)
	Subject    string    // sub (2)
	Audience   string    // aud (3)
	Expiration time.Time // exp (4)
	NotBefore  time.Time // nbf (5)
	IssuedAt   time.Time // iat (6)
	CWTID      []byte    // cti (7)

	Custom map[int64]*claimtree.Node
}

// NewClaims creates a new Claims with IssuedAt set to now.
func NewClaims() *Claims {
	return &Claims{
		IssuedAt: time.Now().UTC().Truncate(time.Second),
		Custom:   make(map[int64]*claimtree.Node),
	}
}

// SetExpiration sets the expiration time relative to IssuedAt (or now).
func (c *Claims) SetExpiration(d time.Duration) {
	base := c.IssuedAt
	if base.IsZero() {
		base = time.Now().UTC().Truncate(time.Second)
	}
	c.Expiration = base.Add(d)
}

// SetCustom sets a non-standard claim.
func (c *Claims) SetCustom(key int64, value *claimtree.Node) error {
	if key >= ClaimIss && key <= ClaimCti {
		return fmt.Errorf("cose: claim keys 1-7 are reserved for standard claims")
	}
	if c.Custom == nil {
		c.Custom = make(map[int64]*claimtree.Node)
	}
	c.Custom[key] = value
	return nil
}

// GetCustom retrieves a non-standard claim.
func (c *Claims) GetCustom(key int64) (*claimtree.Node, bool) {
	v, ok := c.Custom[key]
	return v, ok
}

// HCert returns the health certificate container (claim -260).
func (c *Claims) HCert() *claimtree.Node {
	return c.Custom[ClaimHCert]
}

// IsExpired reports whether exp lies in the past. Informational only.
func (c *Claims) IsExpired() bool {
	return !c.Expiration.IsZero() && time.Now().After(c.Expiration)
}

// ValidateAt checks the time-based claims at t. Informational only: a
// credential that fails here is still decoded and displayed.
func (c *Claims) ValidateAt(t time.Time) error {
	if !c.Expiration.IsZero() && t.After(c.Expiration) {
		return fmt.Errorf("cose: token expired at %s", c.Expiration.Format(time.RFC3339))
	}
	if !c.NotBefore.IsZero() && t.Before(c.NotBefore) {
		return fmt.Errorf("cose: token not valid until %s", c.NotBefore.Format(time.RFC3339))
	}
	return nil
}

// MarshalCBOR encodes the claims as a CBOR map with integer keys.
func (c *Claims) MarshalCBOR() ([]byte, error) {
	m := make(map[int64]any)

	if c.Issuer != "" {
		m[ClaimIss] = c.Issuer
	}
	if c.Subject != "" {
		m[ClaimSub] = c.Subject
	}
	if c.Audience != "" {
		m[ClaimAud] = c.Audience
	}
	if !c.Expiration.IsZero() {
		m[ClaimExp] = c.Expiration.Unix()
	}
	if !c.NotBefore.IsZero() {
		m[ClaimNbf] = c.NotBefore.Unix()
	}
	if !c.IssuedAt.IsZero() {
		m[ClaimIat] = c.IssuedAt.Unix()
	}
	if len(c.CWTID) > 0 {
		m[ClaimCti] = c.CWTID
	}
	for k, v := range c.Custom {
		m[k] = v
	}

	// Canonical encoding gives deterministic output.
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cose: create CBOR encoder: %w", err)
	}
	return em.Marshal(m)
}

// ClaimsFromNode extracts CWT claims from a decoded payload. Either map
// shape is accepted. In a CBOR map only integer keys are claims; a record
// has text keys only, so there its integer-looking keys count.
func ClaimsFromNode(n *claimtree.Node) (*Claims, error) {
	switch n.Kind() {
	case claimtree.KindMap, claimtree.KindRecord:
	default:
		return nil, fmt.Errorf("cose: CWT payload is a %s, not a map", n.Kind())
	}

	c := &Claims{Custom: make(map[int64]*claimtree.Node)}
	for _, e := range n.Entries() {
		if n.Kind() == claimtree.KindMap && e.Key.Kind() != claimtree.KindInt {
			continue
		}
		k, err := strconv.ParseInt(claimtree.KeyText(e.Key), 10, 64)
		if err != nil {
			continue
		}
		v := e.Value
		switch k {
		case ClaimIss:
			c.Issuer, _ = v.Text()
		case ClaimSub:
			c.Subject, _ = v.Text()
		case ClaimAud:
			c.Audience, _ = v.Text()
		case ClaimExp:
			c.Expiration = timeFromNode(v)
		case ClaimNbf:
			c.NotBefore = timeFromNode(v)
		case ClaimIat:
			c.IssuedAt = timeFromNode(v)
		case ClaimCti:
			c.CWTID, _ = v.Bytes()
		default:
			c.Custom[k] = v
		}
	}
	return c, nil
}

// timeFromNode converts a NumericDate to time.Time.
func timeFromNode(n *claimtree.Node) time.Time {
	if v, ok := n.Int64(); ok {
		return time.Unix(v, 0).UTC()
	}
	if f, ok := n.Float64(); ok {
		return time.Unix(int64(f), 0).UTC()
	}
	return time.Time{}
}
