package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/lacpass/healthlink/internal/api/errors"
	"github.com/lacpass/healthlink/internal/api/service"
	"github.com/lacpass/healthlink/pkg/fhir"
)

const (
	mediaFHIRJSON = "application/fhir+json"
	defaultCount  = 50
)

// RegionalHandler serves the regional FHIR endpoints.
type RegionalHandler struct {
	registry *service.Registry
}

// NewRegionalHandler creates a new RegionalHandler.
func NewRegionalHandler(registry *service.Registry) *RegionalHandler {
	return &RegionalHandler{registry: registry}
}

// Search handles GET /regional/DocumentReference. At most _count entries
// are returned, with a next link while more exist.
func (h *RegionalHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identifier := q.Get("patient.identifier")
	if identifier == "" {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("patient.identifier is required"))
		return
	}
	count := defaultCount
	if s := q.Get("_count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("_count must be a positive integer"))
			return
		}
		count = n
	}

	refs, total := h.registry.Search(identifier, count)
	base := origin(r) + "/regional"

	b := &fhir.Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Link:         []fhir.BundleLink{{Relation: "self", URL: base + "/DocumentReference?" + q.Encode()}},
		Entry:        make([]fhir.BundleEntry, 0, len(refs)),
	}
	if len(refs) < total {
		next := r.URL.Query()
		next.Set("_offset", strconv.Itoa(len(refs)))
		b.Link = append(b.Link, fhir.BundleLink{Relation: "next", URL: base + "/DocumentReference?" + next.Encode()})
	}
	for _, ref := range refs {
		raw, err := json.Marshal(ref)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		b.Entry = append(b.Entry, fhir.BundleEntry{
			FullURL:  base + "/DocumentReference/" + ref.ID,
			Resource: raw,
		})
	}

	writeJSON(w, mediaFHIRJSON, http.StatusOK, b)
}

// Bundle handles GET /regional/Bundle/{id}.
func (h *RegionalHandler) Bundle(w http.ResponseWriter, r *http.Request) {
	raw, err := h.registry.Bundle(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", mediaFHIRJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// Binary handles GET /regional/Binary/{id}.
func (h *RegionalHandler) Binary(w http.ResponseWriter, r *http.Request) {
	bin, err := h.registry.Binary(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", bin.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(bin.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bin.Data)
}
