// Package service holds the state and business logic of the sandbox
// exchange: the document registry, VHL issuance and resolution, and ICVP
// certificate generation.
package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lacpass/healthlink/pkg/fhir"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("sandbox: resource not found")
	ErrInvalid  = errors.New("sandbox: invalid request")
)

// Binary is a stored non-FHIR document.
type Binary struct {
	ContentType string
	Data        []byte
}

// DocumentMeta describes a document when it is registered.
type DocumentMeta struct {
	Type  string
	Date  string
	Title string
}

type document struct {
	identifier string
	ref        fhir.DocumentReference
}

// Registry is the in-memory document store behind the regional endpoints.
type Registry struct {
	mu       sync.RWMutex
	docs     []document
	bundles  map[string][]byte
	binaries map[string]Binary
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		bundles:  make(map[string][]byte),
		binaries: make(map[string]Binary),
	}
}

// StoreBundle stores a bundle without indexing it for search and returns
// its id.
func (r *Registry) StoreBundle(raw []byte) (string, error) {
	if _, err := fhir.ParseBundle(raw); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles[id] = append([]byte(nil), raw...)
	return id, nil
}

// AddBundle stores a bundle and indexes a DocumentReference to it under
// identifier. It returns the DocumentReference id.
func (r *Registry) AddBundle(identifier string, meta DocumentMeta, raw []byte) (string, error) {
	id, err := r.StoreBundle(raw)
	if err != nil {
		return "", err
	}
	return r.index(identifier, meta, fhir.Attachment{
		ContentType: "application/fhir+json",
		URL:         "Bundle/" + id,
		Title:       meta.Title,
	}), nil
}

// AddBinary stores a binary document and indexes it under identifier.
func (r *Registry) AddBinary(identifier string, meta DocumentMeta, bin Binary) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.binaries[id] = Binary{ContentType: bin.ContentType, Data: append([]byte(nil), bin.Data...)}
	r.mu.Unlock()

	return r.index(identifier, meta, fhir.Attachment{
		ContentType: bin.ContentType,
		URL:         "Binary/" + id,
		Title:       meta.Title,
	})
}

func (r *Registry) index(identifier string, meta DocumentMeta, att fhir.Attachment) string {
	ref := fhir.DocumentReference{
		ResourceType: "DocumentReference",
		ID:           uuid.NewString(),
		Status:       "current",
		Date:         meta.Date,
		Subject:      &fhir.Reference{Display: identifier},
		Content:      []fhir.DocumentContent{{Attachment: att}},
	}
	if meta.Type != "" {
		ref.Type = &fhir.CodeableConcept{Text: meta.Type}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, document{identifier: identifier, ref: ref})
	return ref.ID
}

// Search returns at most count references for identifier, in registration
// order, and the number of matches.
func (r *Registry) Search(identifier string, count int) ([]fhir.DocumentReference, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []fhir.DocumentReference
	total := 0
	for _, d := range r.docs {
		if !strings.EqualFold(d.identifier, identifier) {
			continue
		}
		total++
		if count <= 0 || len(out) < count {
			out = append(out, d.ref)
		}
	}
	return out, total
}

// Bundle returns a stored bundle.
func (r *Registry) Bundle(id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw, ok := r.bundles[id]
	if !ok {
		return nil, fmt.Errorf("%w: Bundle/%s", ErrNotFound, id)
	}
	return raw, nil
}

// Binary returns a stored binary document.
func (r *Registry) Binary(id string) (Binary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bin, ok := r.binaries[id]
	if !ok {
		return Binary{}, fmt.Errorf("%w: Binary/%s", ErrNotFound, id)
	}
	return bin, nil
}

// Len returns the number of indexed documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}
