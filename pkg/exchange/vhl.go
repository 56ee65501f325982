package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lacpass/healthlink/pkg/fhir"
	"github.com/lacpass/healthlink/pkg/hcert"
)

// Manifest is the file list a VHL resolves to.
type Manifest struct {
	Files []ManifestFile `json:"files"`
}

// ManifestFile is one retrievable file of a manifest.
type ManifestFile struct {
	Location    string `json:"location"`
	ContentType string `json:"contentType,omitempty"`
}

// issueResponse is the JSON form of an issuance answer.
type issueResponse struct {
	HC1 string `json:"hc1"`
}

// resolveRequest is the body posted to the resolution endpoint.
type resolveRequest struct {
	QRCodeContent string `json:"qrCodeContent"`
}

// Issue posts b untouched to the issuance endpoint and returns the HC1
// credential it answers with, either as {"hc1": ...} or as a bare string.
func (c *Client) Issue(ctx context.Context, b *fhir.Bundle) (_ string, err error) {
	if c.cfg.IssuanceURL == "" {
		return "", fmt.Errorf("%w: issuance URL is not configured", ErrConfig)
	}
	if b == nil {
		return "", fmt.Errorf("%w: no bundle to share", ErrValidation)
	}
	raw, err := b.Raw()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	ctx, span := c.startSpan(ctx, OpIssue, attribute.String("bundle.id", b.ID))
	defer func() { endSpan(span, err) }()

	resp, err := c.do(ctx, request{
		op:     OpIssue,
		method: "POST",
		url:    c.cfg.IssuanceURL,
		accept: MediaJSON,
		body:   raw,
		auth:   true,
	})
	if err != nil {
		return "", err
	}

	text := credentialFromBody(resp.body)
	if text == "" {
		return "", &Error{Op: OpIssue, URL: c.cfg.IssuanceURL, Err: fmt.Errorf("issuer returned no HC1 credential")}
	}
	c.logger.InfoContext(ctx, "VHL issued", "bundle_id", b.ID, "length", len(text))
	return text, nil
}

// credentialFromBody extracts the credential of an issuance answer.
func credentialFromBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '{':
		var r issueResponse
		if json.Unmarshal(trimmed, &r) != nil {
			return ""
		}
		return strings.TrimSpace(r.HC1)
	case '"':
		var s string
		if json.Unmarshal(trimmed, &s) != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(trimmed)
}

// Resolve validates a scanned or pasted VHL and posts it to the resolution
// endpoint. Input without the HC1: prefix is rejected before any request.
func (c *Client) Resolve(ctx context.Context, text string) (_ *Manifest, err error) {
	normalized, err := hcert.Validate(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if c.cfg.ResolveURL == "" {
		return nil, fmt.Errorf("%w: resolve URL is not configured", ErrConfig)
	}

	ctx, span := c.startSpan(ctx, OpResolve)
	defer func() { endSpan(span, err) }()

	body, err := json.Marshal(resolveRequest{QRCodeContent: normalized})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, request{
		op:     OpResolve,
		method: "POST",
		url:    c.cfg.ResolveURL,
		accept: MediaJSON,
		body:   body,
		auth:   true,
	})
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(resp.body, &m); err != nil {
		return nil, &Error{Op: OpResolve, URL: c.cfg.ResolveURL, Err: fmt.Errorf("malformed manifest: %w", err)}
	}
	files := m.Files[:0]
	for _, f := range m.Files {
		if strings.TrimSpace(f.Location) == "" {
			continue
		}
		if f.ContentType == "" {
			f.ContentType = MediaFHIRJSON
		}
		files = append(files, f)
	}
	m.Files = files
	if len(m.Files) == 0 {
		return nil, &Error{Op: OpResolve, URL: c.cfg.ResolveURL, Err: fmt.Errorf("manifest lists no files")}
	}
	span.SetAttributes(attribute.Int("manifest.files", len(m.Files)))
	return &m, nil
}
