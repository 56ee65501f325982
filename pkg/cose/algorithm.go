package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	gocose "github.com/veraison/go-cose"
)

// COSE Algorithm IDs (IANA COSE Algorithms Registry).
const (
	AlgES256 gocose.Algorithm = -7  // ECDSA w/ SHA-256
	AlgES384 gocose.Algorithm = -35 // ECDSA w/ SHA-384
	AlgES512 gocose.Algorithm = -36 // ECDSA w/ SHA-512
	AlgEdDSA gocose.Algorithm = -8  // EdDSA
	AlgPS256 gocose.Algorithm = -37 // RSASSA-PSS w/ SHA-256
	AlgPS384 gocose.Algorithm = -38 // RSASSA-PSS w/ SHA-384
	AlgPS512 gocose.Algorithm = -39 // RSASSA-PSS w/ SHA-512
)

// AlgorithmFromKey picks the COSE algorithm for a public key.
func AlgorithmFromKey(pub crypto.PublicKey) (gocose.Algorithm, error) {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return AlgES256, nil
		case elliptic.P384():
			return AlgES384, nil
		case elliptic.P521():
			return AlgES512, nil
		}
		return 0, fmt.Errorf("cose: unsupported ECDSA curve %s", k.Curve.Params().Name)
	case ed25519.PublicKey:
		return AlgEdDSA, nil
	case *rsa.PublicKey:
		return AlgPS256, nil
	}
	return 0, fmt.Errorf("cose: unsupported key type %T", pub)
}

// AlgorithmName returns a human-readable name for a COSE algorithm.
func AlgorithmName(alg gocose.Algorithm) string {
	switch alg {
	case AlgES256:
		return "ES256"
	case AlgES384:
		return "ES384"
	case AlgES512:
		return "ES512"
	case AlgEdDSA:
		return "EdDSA"
	case AlgPS256:
		return "PS256"
	case AlgPS384:
		return "PS384"
	case AlgPS512:
		return "PS512"
	}
	return fmt.Sprintf("unknown(%d)", int64(alg))
}

// KeyIDFromPublicKey derives the 8-byte kid used by health certificates: the
// first bytes of the SHA-256 of the SubjectPublicKeyInfo.
func KeyIDFromPublicKey(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("cose: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return sum[:8], nil
}
