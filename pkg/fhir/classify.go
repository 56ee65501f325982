package fhir

// Known bundle profiles.
const (
	ProfileLACBundle      = "http://lacpass.racsel.org/StructureDefinition/lac-bundle"
	ProfileLACComposition = "http://lacpass.racsel.org/StructureDefinition/lac-composition"
	ProfileICVPBundle     = "http://smart.who.int/icvp/StructureDefinition/Bundle-uv-ips-ICVP"
)

var (
	summaryProfiles     = []string{ProfileLACBundle, ProfileLACComposition}
	certificateProfiles = []string{ProfileICVPBundle}
)

// Classification is the outcome of Classify.
type Classification struct {
	// SummaryDocument is set for patient summaries, which can be shared as
	// a VHL.
	SummaryDocument bool `json:"summaryDocument"`
	// VaccinationCertificate is set for ICVP bundles, which can produce
	// per-immunization certificates.
	VaccinationCertificate bool `json:"vaccinationCertificate"`
}

// Workflow is the action a classified bundle enables.
type Workflow string

const (
	WorkflowSummary     Workflow = "summary"
	WorkflowCertificate Workflow = "certificate"
	WorkflowUnknown     Workflow = "unknown"
)

// Classify tests meta.profile of b against the known profile URIs.
func Classify(b *Bundle) Classification {
	return Classification{
		SummaryDocument:        hasAnyProfile(b, summaryProfiles),
		VaccinationCertificate: hasAnyProfile(b, certificateProfiles),
	}
}

// Workflow returns the workflow the classification enables.
func (c Classification) Workflow() Workflow {
	switch {
	case c.SummaryDocument:
		return WorkflowSummary
	case c.VaccinationCertificate:
		return WorkflowCertificate
	}
	return WorkflowUnknown
}

func hasAnyProfile(b *Bundle, uris []string) bool {
	for _, u := range uris {
		if b.HasProfile(u) {
			return true
		}
	}
	return false
}
