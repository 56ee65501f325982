package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/lacpass/healthlink/pkg/fhir"
)

// SearchResult is a committed discovery result.
type SearchResult struct {
	Identifier string
	Generation uint64
	Bundle     *fhir.Bundle
	Documents  []DocumentSummary
}

// Session serializes the discoveries of one interactive user. Each Search
// starts a new generation and cancels the one in flight; a result is
// committed only while its generation is still the latest, so the last
// search started is the one that wins.
type Session struct {
	client *Client

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current *SearchResult
	failed  error // terminal error of the latest discovery
}

// NewSession returns a Session backed by c.
func NewSession(c *Client) *Session {
	return &Session{client: c}
}

// Search runs discovery for identifier. It returns ErrStale when a newer
// Search started before this one finished.
func (s *Session) Search(ctx context.Context, identifier string) (*SearchResult, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	b, err := s.client.SearchBundle(ctx, identifier)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, ErrStale
	}
	s.cancel = nil
	if err != nil {
		s.current, s.failed = nil, err
		return nil, err
	}
	s.failed = nil
	s.current = &SearchResult{
		Identifier: identifier,
		Generation: gen,
		Bundle:     b,
		Documents:  Summaries(b),
	}
	return s.current, nil
}

// Current returns the latest committed result, or nil.
func (s *Session) Current() *SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Cancel aborts the search in flight, if any. Its result is discarded.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	// The committed result becomes current again.
	s.gen++
	if s.current != nil {
		cur := *s.current
		cur.Generation = s.gen
		s.current = &cur
	}
}

// Fetch retrieves a document listed by the current result. It returns
// ErrDiscoveryPending while no discovery has completed or a newer one is
// in flight, and the discovery error when the latest discovery failed.
func (s *Session) Fetch(ctx context.Context, doc DocumentSummary) (*Document, error) {
	s.mu.Lock()
	cur, failed := s.current, s.failed
	inFlight := s.cancel != nil
	ready := cur != nil && cur.Generation == s.gen
	s.mu.Unlock()

	if !ready && !inFlight && failed != nil {
		return nil, fmt.Errorf("latest discovery failed: %w", failed)
	}
	if !ready {
		return nil, ErrDiscoveryPending
	}
	for _, d := range cur.Documents {
		if d.ID == doc.ID && d.AttachmentURL == doc.AttachmentURL {
			return s.client.Fetch(ctx, d)
		}
	}
	return nil, fmt.Errorf("%w: document %q is not part of the current result", ErrValidation, doc.ID)
}
