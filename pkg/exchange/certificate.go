package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lacpass/healthlink/pkg/fhir"
	"github.com/lacpass/healthlink/pkg/hcert"
)

// Attachment format codes of generated certificates.
const (
	FormatImage = "image"
	FormatHC1   = "hc1"
)

// CertificateResult is the outcome for one immunization record.
type CertificateResult struct {
	SubjectRecordID string `json:"immunizationId"`
	OK              bool   `json:"ok"`
	StatusCode      int    `json:"status,omitempty"`
	QRImage         []byte `json:"qrImage,omitempty"`
	CredentialText  string `json:"hc1,omitempty"`
}

type certificateResponse struct {
	Results []certificateRecord `json:"results"`
}

type certificateRecord struct {
	ImmunizationID string          `json:"immunizationId"`
	OK             bool            `json:"ok"`
	Status         any             `json:"status"`
	Data           json.RawMessage `json:"data"`
}

// GenerateCertificates asks the certificate endpoint for one signed
// certificate per immunization in b. Records the service marks as failed
// are returned with OK unset; a record with unreadable data is returned
// without image or text.
func (c *Client) GenerateCertificates(ctx context.Context, b *fhir.Bundle) (_ []CertificateResult, err error) {
	if b == nil || b.ResourceType != "Bundle" || b.ID == "" {
		return nil, fmt.Errorf("%w: certificate generation needs a Bundle with an id", ErrValidation)
	}
	if c.cfg.CertificateURL == "" {
		return nil, fmt.Errorf("%w: certificate URL is not configured", ErrConfig)
	}
	raw, err := b.Raw()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	ctx, span := c.startSpan(ctx, OpCertificate, attribute.String("bundle.id", b.ID))
	defer func() { endSpan(span, err) }()

	resp, err := c.do(ctx, request{
		op:     OpCertificate,
		method: "POST",
		url:    c.cfg.CertificateURL,
		accept: MediaJSON,
		body:   raw,
		auth:   true,
	})
	if err != nil {
		return nil, err
	}

	var cr certificateResponse
	if err := json.Unmarshal(resp.body, &cr); err != nil {
		return nil, &Error{Op: OpCertificate, URL: c.cfg.CertificateURL, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if len(cr.Results) == 0 {
		return nil, &Error{Op: OpCertificate, URL: c.cfg.CertificateURL, Err: fmt.Errorf("no results returned")}
	}

	out := make([]CertificateResult, 0, len(cr.Results))
	for _, r := range cr.Results {
		res := CertificateResult{
			SubjectRecordID: r.ImmunizationID,
			OK:              r.OK,
			StatusCode:      statusCode(r.Status),
		}
		if err := extractCertificate(r.Data, &res); err != nil {
			c.logger.WarnContext(ctx, "unreadable certificate data",
				"immunization_id", r.ImmunizationID, "error", err)
		}
		out = append(out, res)
	}
	span.SetAttributes(attribute.Int("certificate.results", len(out)))
	return out, nil
}

// statusCode reads a per-record status sent as a number or as a string
// such as "201 Created".
func statusCode(v any) int {
	switch s := v.(type) {
	case float64:
		return int(s)
	case string:
		if f := strings.Fields(s); len(f) > 0 {
			n, _ := strconv.Atoi(f[0])
			return n
		}
	}
	return 0
}

// extractCertificate fills the image and credential of res from the first
// DocumentReference of data. Attachments are read independently: a bad image
// does not prevent the credential text from being kept.
func extractCertificate(data json.RawMessage, res *CertificateResult) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	b, err := fhir.ParseBundle(data)
	if err != nil {
		return err
	}
	var ref fhir.DocumentReference
	if !b.FirstResource("DocumentReference", &ref) {
		return nil
	}
	var imageErr error
	for _, content := range ref.Content {
		att := content.Attachment
		if att.Data == "" {
			continue
		}
		var format string
		if content.Format != nil {
			format = content.Format.Code
		}
		ct := strings.TrimSpace(att.ContentType)
		switch {
		case strings.EqualFold(ct, "image/png") || format == FormatImage:
			img, err := base64.StdEncoding.DecodeString(att.Data)
			if err != nil {
				imageErr = fmt.Errorf("image attachment: %w", err)
				continue
			}
			res.QRImage = img
		case strings.EqualFold(ct, "text/plain") || format == FormatHC1:
			res.CredentialText = credentialText(att.Data)
		}
	}
	return imageErr
}

// credentialText returns data as is when it already carries the HC1
// prefix, else its base64 decoding. Undecodable data is kept verbatim.
func credentialText(data string) string {
	if strings.HasPrefix(data, hcert.Prefix) {
		return data
	}
	dec, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return data
	}
	return string(dec)
}
