package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"path"

	"github.com/lacpass/healthlink/internal/api/dto"
	apierrors "github.com/lacpass/healthlink/internal/api/errors"
	"github.com/lacpass/healthlink/internal/api/service"
	"github.com/lacpass/healthlink/internal/audit"
)

// MaxRequestBytes caps POSTed bundles.
const MaxRequestBytes = 8 << 20

// Issued is notified of every credential the sandbox signs.
type Issued interface {
	Inc()
}

// VHLHandler handles VHL issuance and resolution.
type VHLHandler struct {
	service *service.VHLService
	issuer  string
	issued  Issued
	audit   audit.Writer
}

// NewVHLHandler creates a new VHLHandler. issued and auditor may be nil.
func NewVHLHandler(vhlService *service.VHLService, issuer string, issued Issued, auditor audit.Writer) *VHLHandler {
	return &VHLHandler{service: vhlService, issuer: issuer, issued: issued, audit: auditOrNop(auditor)}
}

// Generate handles POST /vhl/_generate. The body is the bundle to share.
func (h *VHLHandler) Generate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("failed to read request body"))
		return
	}

	resp, err := h.service.Issue(r.Context(), raw, origin(r))
	event := audit.NewEvent(audit.EventVHLIssued, audit.ResultOf(err == nil)).
		WithContext(audit.Context{Issuer: h.issuer})
	if err != nil {
		event.Context.Reason = err.Error()
		_ = recordEvent(h.audit, r, event)
		handleServiceError(w, err)
		return
	}

	event.Object = audit.Object{Type: "bundle", ID: resp.BundleID}
	if err := recordEvent(h.audit, r, event); err != nil {
		respondAuditFailure(w)
		return
	}
	if h.issued != nil {
		h.issued.Inc()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Resolve handles POST /vhl/_resolve.
func (h *VHLHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, &dto.APIError{
			Code:    apierrors.CodeInvalidRequest,
			Message: "Invalid JSON request body",
		})
		return
	}

	resp, err := h.service.Resolve(r.Context(), &req, origin(r))
	event := audit.NewEvent(audit.EventVHLResolved, audit.ResultOf(err == nil))
	if err != nil {
		event.Context.Reason = err.Error()
		_ = recordEvent(h.audit, r, event)
		handleServiceError(w, err)
		return
	}

	event.Object = audit.Object{Type: "bundle", ID: path.Base(resp.Files[0].Location)}
	if err := recordEvent(h.audit, r, event); err != nil {
		respondAuditFailure(w)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
