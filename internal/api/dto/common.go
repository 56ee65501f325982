// Package dto provides the wire types of the sandbox exchange.
package dto

import (
	"encoding/json"
)

// APIError represents a standardized error response.
type APIError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Details provides additional context about the error.
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`

	// Documents is the number of indexed documents.
	Documents int `json:"documents"`
}

// IssueResponse is the body of POST /vhl/_generate.
type IssueResponse struct {
	HC1 string `json:"hc1"`

	// BundleID is the stored bundle the credential points at.
	BundleID string `json:"-"`
}

// ResolveRequest is the body of POST /vhl/_resolve.
type ResolveRequest struct {
	QRCodeContent string `json:"qrCodeContent"`
}

// ManifestFile is one shared document of a resolved VHL.
type ManifestFile struct {
	Location    string `json:"location"`
	ContentType string `json:"contentType,omitempty"`
}

// ManifestResponse is the body returned by POST /vhl/_resolve.
type ManifestResponse struct {
	Files []ManifestFile `json:"files"`
}

// CertificateResult is one per-immunization entry of an ICVP response.
type CertificateResult struct {
	ImmunizationID string `json:"immunizationId"`
	OK             bool   `json:"ok"`
	Status         int    `json:"status"`

	// Data is a collection Bundle with one DocumentReference.
	Data json.RawMessage `json:"data,omitempty"`
}

// CertificateResponse is the body of POST /icvpcert/_from-bundle.
type CertificateResponse struct {
	Results []CertificateResult `json:"results"`
}
