package hcert

import (
	"github.com/lacpass/healthlink/pkg/claimtree"
	"github.com/lacpass/healthlink/pkg/cose"
)

// Credential is a decoded HC1 credential.
type Credential struct {
	// Text is the normalized credential text.
	Text     string
	Envelope *cose.Envelope
	// Payload is the CWT claim set as decoded, in either map shape.
	Payload *claimtree.Node
	Claims  *cose.Claims
}

// HealthClaims returns the claim -260 container, or nil.
func (c *Credential) HealthClaims() *claimtree.Node {
	return claimtree.GetClaim(c.Payload, cose.ClaimHCert)
}

// Certificate returns the health certificate entry of claim -260 and its
// key: entry 1 (DCC) when present, else entry -6 (ICVP).
func (c *Credential) Certificate() (*claimtree.Node, int64) {
	hc := c.HealthClaims()
	if n := claimtree.GetClaim(hc, cose.HCertDCC); n != nil {
		return n, cose.HCertDCC
	}
	if n := claimtree.GetClaim(hc, cose.HCertICVP); n != nil {
		return n, cose.HCertICVP
	}
	return nil, 0
}

// FindRecords returns every map in the payload carrying all required keys.
func (c *Credential) FindRecords(required ...string) []claimtree.Match {
	return claimtree.FindShapeMatches(c.Payload, required...)
}

// ICVPRecords returns the ICVP-shaped records anywhere in the payload.
func (c *Credential) ICVPRecords() []claimtree.Match {
	return c.FindRecords(ICVPKeys...)
}
