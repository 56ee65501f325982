package handler

import (
	"io"
	"net/http"

	apierrors "github.com/lacpass/healthlink/internal/api/errors"
	"github.com/lacpass/healthlink/internal/api/service"
	"github.com/lacpass/healthlink/internal/audit"
)

// ICVPHandler handles certificate generation.
type ICVPHandler struct {
	service *service.ICVPService
	issuer  string
	issued  Issued
	audit   audit.Writer
}

// NewICVPHandler creates a new ICVPHandler. issued and auditor may be nil.
func NewICVPHandler(icvpService *service.ICVPService, issuer string, issued Issued, auditor audit.Writer) *ICVPHandler {
	return &ICVPHandler{service: icvpService, issuer: issuer, issued: issued, audit: auditOrNop(auditor)}
}

// FromBundle handles POST /icvpcert/_from-bundle. Every immunization is
// audited, whether or not a certificate could be produced for it.
func (h *ICVPHandler) FromBundle(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("failed to read request body"))
		return
	}

	resp, err := h.service.Generate(r.Context(), raw)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	for _, res := range resp.Results {
		event := audit.NewEvent(audit.EventCertificateIssued, audit.ResultOf(res.OK)).
			WithObject(audit.Object{Type: "immunization", ID: res.ImmunizationID}).
			WithContext(audit.Context{Issuer: h.issuer, Status: res.Status})
		if err := recordEvent(h.audit, r, event); err != nil {
			respondAuditFailure(w)
			return
		}
		if res.OK && h.issued != nil {
			h.issued.Inc()
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
