package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lacpass/healthlink/internal/api/dto"
	"github.com/lacpass/healthlink/pkg/claimtree"
	"github.com/lacpass/healthlink/pkg/hcert"
)

// hcertVHL is the claim -260 entry carrying a VHL payload.
const hcertVHL int64 = 5

// VHLService issues and resolves verifiable health links.
type VHLService struct {
	registry *Registry
	issuer   *Issuer
}

// NewVHLService creates a new VHLService.
func NewVHLService(registry *Registry, issuer *Issuer) *VHLService {
	return &VHLService{registry: registry, issuer: issuer}
}

// Issue stores the bundle and returns an HC1 credential pointing at it.
// origin is the scheme and host the sandbox is reached at.
func (s *VHLService) Issue(ctx context.Context, raw []byte, origin string) (*dto.IssueResponse, error) {
	id, err := s.registry.StoreBundle(raw)
	if err != nil {
		return nil, err
	}

	link := claimtree.NewRecord(map[string]*claimtree.Node{
		"u": claimtree.NewText(bundleLocation(origin, id)),
	})
	text, err := s.issuer.Encode(ctx, hcertVHL, claimtree.NewArray(link), []byte(id))
	if err != nil {
		return nil, fmt.Errorf("failed to sign link: %w", err)
	}
	return &dto.IssueResponse{HC1: text, BundleID: id}, nil
}

// Resolve decodes a credential issued by Issue and returns its manifest.
func (s *VHLService) Resolve(ctx context.Context, req *dto.ResolveRequest, origin string) (*dto.ManifestResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cred, err := hcert.Decode(req.QRCodeContent)
	if err != nil {
		return nil, err
	}
	id := string(cred.Claims.CWTID)
	if id == "" {
		return nil, fmt.Errorf("%w: credential has no cti", ErrInvalid)
	}
	if _, err := s.registry.Bundle(id); err != nil {
		return nil, err
	}
	return &dto.ManifestResponse{Files: []dto.ManifestFile{{
		Location:    bundleLocation(origin, id),
		ContentType: "application/fhir+json",
	}}}, nil
}

func bundleLocation(origin, id string) string {
	return strings.TrimRight(origin, "/") + "/regional/Bundle/" + id
}
