package cose

import (
	"context"
	"crypto"
	"crypto/rand"
	"fmt"
	"io"

	gocose "github.com/veraison/go-cose"
)

// MessageConfig contains options for creating a COSE_Sign1 message.
type MessageConfig struct {
	Signer crypto.Signer

	// KeyID is placed in the protected header. When nil it is derived from
	// the signer's public key.
	KeyID []byte

	// ContentType is added to the protected header when set.
	ContentType string

	// Rand defaults to crypto/rand.
	Rand io.Reader
}

// IssueSign1 creates a tagged COSE_Sign1 message over payload.
func IssueSign1(ctx context.Context, payload []byte, config *MessageConfig) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config == nil || config.Signer == nil {
		return nil, fmt.Errorf("cose: signer is required")
	}

	coseSigner, err := NewSigner(config.Signer)
	if err != nil {
		return nil, fmt.Errorf("cose: create signer: %w", err)
	}

	kid := config.KeyID
	if kid == nil {
		if kid, err = KeyIDFromPublicKey(config.Signer.Public()); err != nil {
			return nil, err
		}
	}

	protected := gocose.ProtectedHeader{
		gocose.HeaderLabelAlgorithm: coseSigner.Algorithm(),
		gocose.HeaderLabelKeyID:     kid,
	}
	if config.ContentType != "" {
		protected[gocose.HeaderLabelContentType] = config.ContentType
	}

	msg := gocose.NewSign1Message()
	msg.Headers = gocose.Headers{Protected: protected}
	msg.Payload = payload

	r := config.Rand
	if r == nil {
		r = rand.Reader
	}
	if err := msg.Sign(r, nil, coseSigner); err != nil {
		return nil, fmt.Errorf("cose: sign message: %w", err)
	}
	return msg.MarshalCBOR()
}

// IssueCWT signs claims as a CWT.
func IssueCWT(ctx context.Context, claims *Claims, config *MessageConfig) ([]byte, error) {
	if claims == nil {
		return nil, fmt.Errorf("cose: claims are required for CWT")
	}
	payload, err := claims.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("cose: marshal claims: %w", err)
	}
	return IssueSign1(ctx, payload, config)
}
