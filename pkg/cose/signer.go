package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"io"
	"math/big"

	gocose "github.com/veraison/go-cose"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Signer wraps a crypto.Signer to implement gocose.Signer.
type Signer struct {
	signer    crypto.Signer
	algorithm gocose.Algorithm
}

// NewSigner creates a COSE signer, deriving the algorithm from the key.
func NewSigner(s crypto.Signer) (*Signer, error) {
	alg, err := AlgorithmFromKey(s.Public())
	if err != nil {
		return nil, err
	}
	return &Signer{signer: s, algorithm: alg}, nil
}

// Algorithm returns the COSE algorithm identifier.
func (s *Signer) Algorithm() gocose.Algorithm {
	return s.algorithm
}

// Sign signs the Sig_structure bytes.
func (s *Signer) Sign(rand io.Reader, data []byte) ([]byte, error) {
	var hash crypto.Hash
	switch s.algorithm {
	case AlgES256, AlgPS256:
		hash = crypto.SHA256
	case AlgES384, AlgPS384:
		hash = crypto.SHA384
	case AlgES512, AlgPS512:
		hash = crypto.SHA512
	case AlgEdDSA:
		return s.signer.Sign(rand, data, crypto.Hash(0))
	default:
		return nil, fmt.Errorf("cose: unsupported algorithm %d", s.algorithm)
	}

	h := hash.New()
	h.Write(data)
	digest := h.Sum(nil)

	var opts crypto.SignerOpts = hash
	if _, ok := s.signer.Public().(*rsa.PublicKey); ok {
		opts = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}
	}

	sig, err := s.signer.Sign(rand, digest, opts)
	if err != nil {
		return nil, fmt.Errorf("cose: signing failed: %w", err)
	}

	// COSE carries ECDSA signatures as raw r||s.
	if _, ok := s.signer.Public().(*ecdsa.PublicKey); ok {
		return ecdsaDERToRaw(sig, s.algorithm)
	}
	return sig, nil
}

// ecdsaDERToRaw converts an ASN.1 DER ECDSA signature to fixed-size r||s.
func ecdsaDERToRaw(sig []byte, alg gocose.Algorithm) ([]byte, error) {
	var size int
	switch alg {
	case AlgES256:
		size = 32
	case AlgES384:
		size = 48
	case AlgES512:
		size = 66
	default:
		return nil, fmt.Errorf("cose: unknown ECDSA algorithm %d", alg)
	}

	var (
		r, s  big.Int
		inner cryptobyte.String
	)
	input := cryptobyte.String(sig)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(&r) ||
		!inner.ReadASN1Integer(&s) ||
		!inner.Empty() {
		return nil, fmt.Errorf("cose: malformed ECDSA signature")
	}
	if r.Sign() < 0 || s.Sign() < 0 || r.BitLen() > size*8 || s.BitLen() > size*8 {
		return nil, fmt.Errorf("cose: ECDSA signature component out of range")
	}

	raw := make([]byte, 2*size)
	r.FillBytes(raw[:size])
	s.FillBytes(raw[size:])
	return raw, nil
}
