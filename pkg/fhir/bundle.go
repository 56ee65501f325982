// Package fhir holds the subset of the FHIR R4 model the exchange client
// reads: search and document bundles, document references, and the
// resources a clinical summary is built from.
//
// Bundles keep the JSON they were parsed from so they can be forwarded
// byte for byte.
package fhir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotBundle indicates a JSON document that is not a FHIR Bundle.
var ErrNotBundle = errors.New("fhir: resource is not a Bundle")

// Bundle is a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Meta         *Meta         `json:"meta,omitempty"`
	Type         string        `json:"type,omitempty"`
	Timestamp    string        `json:"timestamp,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`

	// ResolvedBaseURL is the base URL the bundle was retrieved from. It is
	// provenance only and never serialized.
	ResolvedBaseURL string `json:"-"`

	raw json.RawMessage
}

// Meta is the FHIR resource metadata element.
type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Profile     []string `json:"profile,omitempty"`
}

// BundleLink is one entry of Bundle.link.
type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// BundleEntry is one entry of Bundle.entry. The resource is kept raw.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// ResourceType returns the resourceType of the entry's resource.
func (e BundleEntry) ResourceType() string {
	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if len(e.Resource) == 0 || json.Unmarshal(e.Resource, &head) != nil {
		return ""
	}
	return head.ResourceType
}

// Decode unmarshals the entry's resource into v.
func (e BundleEntry) Decode(v any) error {
	if len(e.Resource) == 0 {
		return fmt.Errorf("fhir: entry %q has no resource", e.FullURL)
	}
	return json.Unmarshal(e.Resource, v)
}

// ParseBundle parses a FHIR Bundle and retains its JSON.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("fhir: parse bundle: %w", err)
	}
	if b.ResourceType != "Bundle" {
		return nil, fmt.Errorf("%w: resourceType %q", ErrNotBundle, b.ResourceType)
	}
	b.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return &b, nil
}

// Raw returns the JSON the bundle was parsed from, or a fresh encoding when
// it was built in memory.
func (b *Bundle) Raw() ([]byte, error) {
	if len(b.raw) > 0 {
		return b.raw, nil
	}
	type plain Bundle
	return json.Marshal((*plain)(b))
}

// MarshalJSON emits the retained JSON when present.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	return b.Raw()
}

// UnmarshalJSON parses the typed view and retains the input.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	type plain Bundle
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = Bundle(p)
	b.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// Profiles returns meta.profile.
func (b *Bundle) Profiles() []string {
	if b == nil || b.Meta == nil {
		return nil
	}
	return b.Meta.Profile
}

// HasProfile reports whether meta.profile lists uri.
func (b *Bundle) HasProfile(uri string) bool {
	for _, p := range b.Profiles() {
		if p == uri {
			return true
		}
	}
	return false
}

// NextLink returns the link with relation "next" (compared
// case-insensitively).
func (b *Bundle) NextLink() (string, bool) {
	for _, l := range b.Link {
		if strings.EqualFold(l.Relation, "next") {
			return l.URL, true
		}
	}
	return "", false
}

// Resources returns the entries whose resource has the given type.
func (b *Bundle) Resources(resourceType string) []BundleEntry {
	var out []BundleEntry
	for _, e := range b.Entry {
		if e.ResourceType() == resourceType {
			out = append(out, e)
		}
	}
	return out
}

// FirstResource decodes the first resource of the given type into v. It
// reports false when there is none or it does not decode.
func (b *Bundle) FirstResource(resourceType string, v any) bool {
	for _, e := range b.Entry {
		if e.ResourceType() == resourceType {
			return e.Decode(v) == nil
		}
	}
	return false
}

// ResourceCounts returns how many resources of each type the bundle holds.
func (b *Bundle) ResourceCounts() map[string]int {
	counts := make(map[string]int)
	for _, e := range b.Entry {
		if t := e.ResourceType(); t != "" {
			counts[t]++
		}
	}
	return counts
}
