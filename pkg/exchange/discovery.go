package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lacpass/healthlink/pkg/fhir"
)

// DocumentSummary is the listing view of one DocumentReference. The
// retrieval URL is rebuilt from SourceBaseURL and AttachmentURL.
type DocumentSummary struct {
	ID                    string `json:"id"`
	TypeLabel             string `json:"typeLabel,omitempty"`
	Date                  string `json:"date,omitempty"`
	Status                string `json:"status,omitempty"`
	Title                 string `json:"title,omitempty"`
	AttachmentURL         string `json:"attachmentUrl,omitempty"`
	AttachmentContentType string `json:"attachmentContentType,omitempty"`
	SourceBaseURL         string `json:"sourceBaseUrl"`
}

// Time parses Date. Undated documents report false.
func (d DocumentSummary) Time() (time.Time, bool) {
	return fhir.ParseDateTime(d.Date)
}

// RetrievalURL returns the absolute URL of the document content.
func (d DocumentSummary) RetrievalURL() (string, error) {
	if d.AttachmentURL == "" {
		return "", fmt.Errorf("%w: document %q has no attachment URL", ErrValidation, d.ID)
	}
	return ResolveURL(d.SourceBaseURL, d.AttachmentURL)
}

// Search discovers the documents of a patient and returns them newest
// first.
func (c *Client) Search(ctx context.Context, identifier string) ([]DocumentSummary, error) {
	b, err := c.SearchBundle(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return Summaries(b), nil
}

// SearchBundle runs discovery and returns the largest searchset seen, with
// its entries intact, total set to the entry count and links cleared.
//
// The same query is repeated with _count growing by Discovery.Step up to
// Discovery.MaxCount. It stops once the server publishes no next link, or
// once the entry count has failed to grow Discovery.MaxStalls times in a
// row. A failure on the first probe is returned; later failures end the
// loop with the best bundle so far.
func (c *Client) SearchBundle(ctx context.Context, identifier string) (_ *fhir.Bundle, err error) {
	id, err := c.cfg.Identifier.Normalize(identifier)
	if err != nil {
		return nil, err
	}

	ctx, span := c.startSpan(ctx, OpSearch, attribute.String("patient.identifier_hash", hashIdentifier(id)))
	defer func() { endSpan(span, err) }()

	base := c.cfg.regionalBase()
	dc := c.cfg.Discovery

	var (
		best     *fhir.Bundle
		last     int
		stalls   int
		requests int
	)
	for count := dc.Step; count <= dc.MaxCount; count += dc.Step {
		u := fmt.Sprintf("%s/DocumentReference?patient.identifier=%s&_count=%d",
			base, url.QueryEscape(id), count)

		b, err := c.searchPage(ctx, u)
		requests++
		if err != nil {
			if count == dc.Step || errors.Is(err, context.Canceled) {
				return nil, err
			}
			c.logger.WarnContext(ctx, "discovery probe failed, using best bundle so far",
				"count", count, "error", err)
			break
		}

		n := len(b.Entry)
		_, hasNext := b.NextLink()
		c.logger.DebugContext(ctx, "discovery probe",
			"count", count, "entries", n, "next", hasNext)

		if best == nil || n > len(best.Entry) {
			best = b
		}
		if n <= last {
			stalls++
		} else {
			stalls = 0
		}
		last = n

		if !hasNext || stalls >= dc.MaxStalls {
			break
		}
	}
	span.SetAttributes(attribute.Int("exchange.requests", requests))

	merged := mergeSearchset(best)
	merged.ResolvedBaseURL = base
	c.logger.InfoContext(ctx, "discovery complete",
		"identifier_hash", hashIdentifier(id), "entries", len(merged.Entry), "requests", requests)
	return merged, nil
}

func (c *Client) searchPage(ctx context.Context, u string) (*fhir.Bundle, error) {
	resp, err := c.do(ctx, request{
		op:     OpSearch,
		method: "GET",
		url:    u,
		accept: MediaFHIRJSON,
		auth:   true,
	})
	if err != nil {
		return nil, err
	}
	b, err := fhir.ParseBundle(resp.body)
	if err != nil {
		return nil, &Error{Op: OpSearch, URL: u, Err: err}
	}
	return b, nil
}

// mergeSearchset builds the returned searchset from the best probe. A
// search that found nothing yields an empty searchset.
func mergeSearchset(best *fhir.Bundle) *fhir.Bundle {
	out := &fhir.Bundle{ResourceType: "Bundle", Type: "searchset", Entry: []fhir.BundleEntry{}}
	if best != nil && len(best.Entry) > 0 {
		out.ID = best.ID
		out.Meta = best.Meta
		out.Type = best.Type
		out.Timestamp = best.Timestamp
		out.Entry = best.Entry
	}
	total := len(out.Entry)
	out.Total = &total
	out.Link = []fhir.BundleLink{}
	return out
}

// Summaries maps the DocumentReference entries of a searchset to
// summaries, newest first. Undated documents keep their relative order at
// the end.
func Summaries(b *fhir.Bundle) []DocumentSummary {
	type dated struct {
		DocumentSummary
		ts time.Time
	}
	var docs []dated
	for _, e := range b.Entry {
		if e.ResourceType() != "DocumentReference" {
			continue
		}
		var ref fhir.DocumentReference
		if e.Decode(&ref) != nil {
			continue
		}
		s := DocumentSummary{
			ID:            ref.ID,
			TypeLabel:     ref.Type.Label(),
			Date:          ref.DateString(),
			Status:        ref.Status,
			SourceBaseURL: b.ResolvedBaseURL,
		}
		if base, ok := baseFromFullURL(e.FullURL); ok {
			s.SourceBaseURL = base
		}
		if att := ref.FirstAttachment(); att != nil {
			s.AttachmentURL = att.URL
			s.AttachmentContentType = att.ContentType
			s.Title = att.Title
		}
		ts, _ := ref.Timestamp()
		docs = append(docs, dated{DocumentSummary: s, ts: ts})
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].ts.After(docs[j].ts)
	})
	out := make([]DocumentSummary, len(docs))
	for i, d := range docs {
		out[i] = d.DocumentSummary
	}
	return out
}
