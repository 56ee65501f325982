// Package cose reads and writes the COSE_Sign1 envelopes (RFC 9052) and CWT
// claim sets (RFC 8392) used by HC1 health credentials.
//
// Parsing is structural only: signatures are carried but never verified.
package cose

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	gocose "github.com/veraison/go-cose"

	"github.com/lacpass/healthlink/pkg/claimtree"
)

// CBOR tag for COSE_Sign1.
const CBORTagSign1 = 18

// COSE header labels (RFC 9052).
const (
	HeaderAlgorithm   int64 = 1
	HeaderContentType int64 = 3
	HeaderKeyID       int64 = 4
)

// ErrEnvelope is wrapped by every envelope shape error.
var ErrEnvelope = errors.New("cose: invalid COSE_Sign1 envelope")

// EnvelopeError reports which element of the envelope is malformed.
type EnvelopeError struct {
	Element string
	Reason  string
}

func (e *EnvelopeError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("cose: envelope %s", e.Reason)
	}
	return fmt.Sprintf("cose: envelope %s %s", e.Element, e.Reason)
}

// Unwrap returns ErrEnvelope.
func (e *EnvelopeError) Unwrap() error {
	return ErrEnvelope
}

// Envelope is a parsed COSE_Sign1 structure:
// [protected bstr, unprotected map, payload bstr, signature bstr].
type Envelope struct {
	// Tag is the semantic tag the structure was wrapped in, 0 when untagged.
	Tag uint64

	// Protected is the serialized protected header bucket.
	Protected   []byte
	Unprotected *claimtree.Node
	Payload     []byte
	Signature   []byte
}

// ParseEnvelope interprets a decoded CBOR item as a COSE_Sign1 envelope.
// The item must be an array of exactly four elements.
func ParseEnvelope(n *claimtree.Node) (*Envelope, error) {
	if n.Kind() != claimtree.KindArray {
		return nil, &EnvelopeError{Reason: fmt.Sprintf("is a %s, not an array", n.Kind())}
	}
	if n.Len() != 4 {
		return nil, &EnvelopeError{Reason: fmt.Sprintf("has %d elements, want 4", n.Len())}
	}

	env := &Envelope{}
	if tag, ok := n.Tag(); ok {
		env.Tag = tag
	}

	var ok bool
	if env.Protected, ok = n.Index(0).Bytes(); !ok {
		return nil, &EnvelopeError{Element: "protected header", Reason: "is not a byte string"}
	}

	env.Unprotected = n.Index(1)
	switch env.Unprotected.Kind() {
	case claimtree.KindMap, claimtree.KindRecord:
	default:
		return nil, &EnvelopeError{Element: "unprotected header", Reason: "is not a map"}
	}

	if env.Payload, ok = n.Index(2).Bytes(); !ok {
		return nil, &EnvelopeError{Element: "payload", Reason: "is not a byte string"}
	}
	if env.Signature, ok = n.Index(3).Bytes(); !ok {
		return nil, &EnvelopeError{Element: "signature", Reason: "is not a byte string"}
	}
	return env, nil
}

// ProtectedHeader decodes the protected bucket. An empty bucket yields an
// empty header.
func (e *Envelope) ProtectedHeader() (gocose.ProtectedHeader, error) {
	p := e.Protected
	if p == nil {
		p = []byte{}
	}
	wrapped, err := cbor.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("cose: wrap protected header: %w", err)
	}
	var h gocose.ProtectedHeader
	if err := h.UnmarshalCBOR(wrapped); err != nil {
		return nil, &EnvelopeError{Element: "protected header", Reason: err.Error()}
	}
	return h, nil
}

// Algorithm returns the signature algorithm from the protected header,
// falling back to the unprotected one.
func (e *Envelope) Algorithm() (gocose.Algorithm, bool) {
	if h, err := e.ProtectedHeader(); err == nil {
		if alg, err := h.Algorithm(); err == nil {
			return alg, true
		}
	}
	if v, ok := claimtree.GetClaim(e.Unprotected, HeaderAlgorithm).Int64(); ok {
		return gocose.Algorithm(v), true
	}
	return 0, false
}

// KeyID returns the kid header, protected first.
func (e *Envelope) KeyID() []byte {
	if h, err := e.ProtectedHeader(); err == nil {
		if kid, ok := h[gocose.HeaderLabelKeyID].([]byte); ok {
			return kid
		}
	}
	kid, _ := claimtree.GetClaim(e.Unprotected, HeaderKeyID).Bytes()
	return kid
}

// ContentType returns the content type header, if present as text.
func (e *Envelope) ContentType() string {
	if h, err := e.ProtectedHeader(); err == nil {
		if ct, ok := h[gocose.HeaderLabelContentType].(string); ok {
			return ct
		}
	}
	ct, _ := claimtree.GetClaim(e.Unprotected, HeaderContentType).Text()
	return ct
}
