package exchange

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/lacpass/healthlink/pkg/fhir"
)

// Binary is non-FHIR document content such as a PDF.
type Binary struct {
	ContentType string
	Data        []byte
}

// Document is a retrieved document: exactly one of Bundle and Binary is
// set.
type Document struct {
	URL    string
	Bundle *fhir.Bundle
	Binary *Binary
}

// IsBinary reports whether the document is binary content.
func (d *Document) IsBinary() bool {
	return d.Binary != nil
}

// IsJSONMediaType reports whether ct names a JSON representation
// (application/json, application/fhir+json, any +json suffix). An empty
// content type is taken as FHIR JSON.
func IsJSONMediaType(ct string) bool {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(ct)
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// Fetch retrieves the content a summary points at. Declared non-JSON
// content is returned as Binary; anything else must be a FHIR Bundle.
func (c *Client) Fetch(ctx context.Context, doc DocumentSummary) (_ *Document, err error) {
	u, err := doc.RetrievalURL()
	if err != nil {
		return nil, err
	}
	binary := !IsJSONMediaType(doc.AttachmentContentType)

	ctx, span := c.startSpan(ctx, OpRetrieve,
		attribute.String("document.id", doc.ID),
		attribute.Bool("document.binary", binary))
	defer func() { endSpan(span, err) }()

	if binary {
		return c.fetchBinary(ctx, u, doc.AttachmentContentType)
	}
	b, err := c.fetchBundle(ctx, u, true)
	if err != nil {
		return nil, err
	}
	b.ResolvedBaseURL = doc.SourceBaseURL
	return &Document{URL: u, Bundle: b}, nil
}

// FetchReference retrieves a document by reference relative to the
// regional base, such as "Bundle/18".
func (c *Client) FetchReference(ctx context.Context, ref, contentType string) (*Document, error) {
	return c.Fetch(ctx, DocumentSummary{
		ID:                    ref,
		AttachmentURL:         ref,
		AttachmentContentType: contentType,
		SourceBaseURL:         c.cfg.regionalBase(),
	})
}

func (c *Client) fetchBinary(ctx context.Context, u, declared string) (*Document, error) {
	resp, err := c.do(ctx, request{
		op:     OpRetrieve,
		method: "GET",
		url:    u,
		accept: MediaAny,
		auth:   true,
	})
	if err != nil {
		return nil, err
	}
	ct := resp.contentType
	if ct == "" {
		ct = declared
	}
	c.logger.DebugContext(ctx, "retrieved binary", "url", u, "content_type", ct, "bytes", len(resp.body))
	return &Document{URL: u, Binary: &Binary{ContentType: ct, Data: resp.body}}, nil
}

func (c *Client) fetchBundle(ctx context.Context, u string, auth bool) (*fhir.Bundle, error) {
	resp, err := c.do(ctx, request{
		op:     OpRetrieve,
		method: "GET",
		url:    u,
		accept: MediaFHIRJSON,
		auth:   auth,
	})
	if err != nil {
		return nil, err
	}
	b, err := fhir.ParseBundle(resp.body)
	if err != nil {
		return nil, &Error{Op: OpRetrieve, URL: u, Err: err}
	}
	c.logger.DebugContext(ctx, "retrieved bundle", "url", u, "entries", len(b.Entry))
	return b, nil
}

// FetchManifestFile retrieves one file listed by a resolved VHL manifest.
// Credentials are sent only when the location shares the origin of the
// regional base.
func (c *Client) FetchManifestFile(ctx context.Context, f ManifestFile) (_ *fhir.Bundle, err error) {
	loc := strings.TrimSpace(f.Location)
	if loc == "" {
		return nil, fmt.Errorf("%w: manifest file has no location", ErrValidation)
	}
	u, err := ResolveURL(c.cfg.regionalBase(), loc)
	if err != nil {
		return nil, err
	}
	auth := sameOrigin(u, c.cfg.RegionalBase)

	ctx, span := c.startSpan(ctx, OpRetrieve,
		attribute.String("manifest.location", u),
		attribute.Bool("manifest.same_origin", auth))
	defer func() { endSpan(span, err) }()

	b, err := c.fetchBundle(ctx, u, auth)
	if err != nil {
		return nil, err
	}
	b.ResolvedBaseURL = c.cfg.regionalBase()
	return b, nil
}

// FetchManifest retrieves every file of m concurrently, at most
// FetchConcurrency at a time. Results keep manifest order; the first
// failure cancels the rest.
func (c *Client) FetchManifest(ctx context.Context, m *Manifest) ([]*fhir.Bundle, error) {
	if m == nil || len(m.Files) == 0 {
		return nil, fmt.Errorf("%w: empty manifest", ErrValidation)
	}
	out := make([]*fhir.Bundle, len(m.Files))
	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.FetchConcurrency > 0 {
		g.SetLimit(c.cfg.FetchConcurrency)
	}
	for i, f := range m.Files {
		g.Go(func() error {
			b, err := c.FetchManifestFile(gctx, f)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
