// Package handler provides HTTP handlers for the sandbox exchange.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/lacpass/healthlink/internal/api/dto"
	apierrors "github.com/lacpass/healthlink/internal/api/errors"
	"github.com/lacpass/healthlink/internal/api/service"
)

// HealthHandler handles the health endpoint.
type HealthHandler struct {
	version  string
	registry *service.Registry
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(version string, registry *service.Registry) *HealthHandler {
	return &HealthHandler{version: version, registry: registry}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Documents: h.registry.Len(),
	})
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, "application/json", status, data)
}

func writeJSON(w http.ResponseWriter, contentType string, status int, data any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, apiErr *dto.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErr)
}

// handleServiceError maps a service error onto a response.
func handleServiceError(w http.ResponseWriter, err error) {
	status, apiErr := apierrors.MapError(err)
	respondError(w, status, apiErr)
}

// origin returns the scheme and host the request reached the server at.
func origin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd == "http" || fwd == "https" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
