package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/lacpass/healthlink/internal/api/dto"
	"github.com/lacpass/healthlink/pkg/claimtree"
	"github.com/lacpass/healthlink/pkg/cose"
	"github.com/lacpass/healthlink/pkg/fhir"
)

// QRSize is the edge length in pixels of generated QR images.
const QRSize = 256

// ICVPService turns the immunizations of a bundle into HC1 certificates.
type ICVPService struct {
	issuer *Issuer
	logger *slog.Logger
}

// NewICVPService creates a new ICVPService.
func NewICVPService(issuer *Issuer, logger *slog.Logger) *ICVPService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ICVPService{issuer: issuer, logger: logger}
}

// Generate returns one result per Immunization of the bundle. An
// immunization that cannot be certified yields ok=false and never fails
// the batch.
func (s *ICVPService) Generate(ctx context.Context, raw []byte) (*dto.CertificateResponse, error) {
	b, err := fhir.ParseBundle(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if b.ID == "" {
		return nil, fmt.Errorf("%w: bundle id is required", ErrInvalid)
	}

	var patient fhir.Patient
	b.FirstResource("Patient", &patient)

	resp := &dto.CertificateResponse{Results: []dto.CertificateResult{}}
	for _, e := range b.Resources("Immunization") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var imm fhir.Immunization
		if err := e.Decode(&imm); err != nil {
			s.logger.Warn("skipping undecodable immunization", "bundle", b.ID, "error", err)
			resp.Results = append(resp.Results, dto.CertificateResult{Status: http.StatusUnprocessableEntity})
			continue
		}
		res, err := s.certify(ctx, &patient, &imm)
		if err != nil {
			s.logger.Warn("immunization not certified", "bundle", b.ID, "immunization", imm.ID, "error", err)
			resp.Results = append(resp.Results, dto.CertificateResult{
				ImmunizationID: imm.ID,
				Status:         http.StatusUnprocessableEntity,
			})
			continue
		}
		resp.Results = append(resp.Results, *res)
	}
	return resp, nil
}

func (s *ICVPService) certify(ctx context.Context, p *fhir.Patient, imm *fhir.Immunization) (*dto.CertificateResult, error) {
	vaccine := imm.VaccineCode.Label()
	if vaccine == "" {
		return nil, fmt.Errorf("%w: immunization has no vaccine code", ErrInvalid)
	}

	text, err := s.issuer.Encode(ctx, cose.HCertICVP, icvpRecord(p, imm, vaccine), []byte(imm.ID))
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(text, qrcode.Medium, QRSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}

	ref := fhir.DocumentReference{
		ResourceType: "DocumentReference",
		ID:           uuid.NewString(),
		Status:       "current",
		Type:         &fhir.CodeableConcept{Text: "ICVP certificate"},
		Content: []fhir.DocumentContent{
			{
				Attachment: fhir.Attachment{ContentType: "image/png", Data: base64.StdEncoding.EncodeToString(png)},
				Format:     &fhir.Coding{Code: "image"},
			},
			{
				Attachment: fhir.Attachment{ContentType: "text/plain", Data: base64.StdEncoding.EncodeToString([]byte(text))},
				Format:     &fhir.Coding{Code: "hc1"},
			},
		},
	}
	resource, err := json.Marshal(ref)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(&fhir.Bundle{
		ResourceType: "Bundle",
		Type:         "collection",
		Entry:        []fhir.BundleEntry{{FullURL: "urn:uuid:" + ref.ID, Resource: resource}},
	})
	if err != nil {
		return nil, err
	}

	return &dto.CertificateResult{
		ImmunizationID: imm.ID,
		OK:             true,
		Status:         http.StatusOK,
		Data:           data,
	}, nil
}

// icvpRecord builds the claim -260/-6 record: name, given name, date of
// birth and the vaccination event.
func icvpRecord(p *fhir.Patient, imm *fhir.Immunization, vaccine string) *claimtree.Node {
	var family, given string
	if len(p.Name) > 0 {
		family = p.Name[0].Family
		given = strings.Join(p.Name[0].Given, " ")
		if family == "" {
			family = p.Name[0].Text
		}
	}

	event := map[string]*claimtree.Node{
		"vp": claimtree.NewText(vaccine),
		"dt": claimtree.NewText(imm.OccurrenceDateTime),
	}
	if imm.LotNumber != "" {
		event["bo"] = claimtree.NewText(imm.LotNumber)
	}

	return claimtree.NewRecord(map[string]*claimtree.Node{
		"n":   claimtree.NewText(family),
		"gn":  claimtree.NewText(given),
		"dob": claimtree.NewText(p.BirthDate),
		"v":   claimtree.NewArray(claimtree.NewRecord(event)),
	})
}
