package service

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/lacpass/healthlink/pkg/claimtree"
	"github.com/lacpass/healthlink/pkg/cose"
	"github.com/lacpass/healthlink/pkg/hcert"
)

// DefaultIssuer is the iss claim of sandbox credentials.
const DefaultIssuer = "XX"

// DefaultValidity is how long sandbox credentials stay valid.
const DefaultValidity = 365 * 24 * time.Hour

// Issuer signs HC1 credentials with a key that lives as long as the
// process. Nothing it signs is meant to be trusted.
type Issuer struct {
	key      crypto.Signer
	name     string
	validity time.Duration
}

// NewIssuer generates an ephemeral ES256 key.
func NewIssuer(name string, validity time.Duration) (*Issuer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	if name == "" {
		name = DefaultIssuer
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Issuer{key: key, name: name, validity: validity}, nil
}

// Name returns the iss claim of signed credentials.
func (i *Issuer) Name() string {
	return i.name
}

// Public returns the verification key.
func (i *Issuer) Public() crypto.PublicKey {
	return i.key.Public()
}

// Encode signs a credential whose claim -260 holds value under entry.
func (i *Issuer) Encode(ctx context.Context, entry int64, value *claimtree.Node, cti []byte) (string, error) {
	claims := cose.NewClaims()
	claims.Issuer = i.name
	claims.CWTID = cti
	claims.SetExpiration(i.validity)
	hc := claimtree.NewMap(claimtree.Entry{Key: claimtree.NewInt(entry), Value: value})
	if err := claims.SetCustom(cose.ClaimHCert, hc); err != nil {
		return "", err
	}
	return hcert.Encode(ctx, claims, &cose.MessageConfig{Signer: i.key})
}
