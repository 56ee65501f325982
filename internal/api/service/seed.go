package service

import (
	"encoding/json"
	"fmt"

	"github.com/lacpass/healthlink/pkg/fhir"
)

// DemoIdentifier is the patient identifier Seed registers documents for.
const DemoIdentifier = "RUN*12345678"

// demoPDF is a minimal one-page PDF.
const demoPDF = "%PDF-1.4\n1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 200 200]>>endobj\n" +
	"trailer<</Root 1 0 R>>\n%%EOF\n"

// Seed registers a patient summary, a vaccination bundle and a PDF report
// for DemoIdentifier.
func Seed(r *Registry) error {
	summary, err := DemoSummaryBundle()
	if err != nil {
		return err
	}
	if _, err := r.AddBundle(DemoIdentifier, DocumentMeta{
		Type: "Patient summary", Date: "2024-03-10T09:30:00Z", Title: "IPS",
	}, summary); err != nil {
		return fmt.Errorf("failed to seed summary: %w", err)
	}

	icvp, err := DemoICVPBundle()
	if err != nil {
		return err
	}
	if _, err := r.AddBundle(DemoIdentifier, DocumentMeta{
		Type: "Vaccination certificate", Date: "2024-05-02", Title: "ICVP",
	}, icvp); err != nil {
		return fmt.Errorf("failed to seed vaccination bundle: %w", err)
	}

	r.AddBinary(DemoIdentifier, DocumentMeta{Type: "Discharge report", Title: "report.pdf"},
		Binary{ContentType: "application/pdf", Data: []byte(demoPDF)})
	return nil
}

func demoPatient() fhir.Patient {
	return fhir.Patient{
		ResourceType: "Patient",
		ID:           "pat-1",
		Identifier:   []fhir.Identifier{{System: "urn:oid:2.16.152", Value: DemoIdentifier}},
		Name:         []fhir.HumanName{{Family: "Rojas", Given: []string{"Ana", "María"}}},
		Gender:       "female",
		BirthDate:    "1985-07-14",
	}
}

func demoImmunization(id, code, display, date, lot string) fhir.Immunization {
	return fhir.Immunization{
		ResourceType: "Immunization",
		ID:           id,
		Status:       "completed",
		VaccineCode: &fhir.CodeableConcept{Coding: []fhir.Coding{{
			System: "http://id.who.int/icd/release/11/mms", Code: code, Display: display,
		}}},
		Patient:            &fhir.Reference{Reference: "Patient/pat-1"},
		OccurrenceDateTime: date,
		LotNumber:          lot,
	}
}

// DemoSummaryBundle renders the seeded patient summary document.
func DemoSummaryBundle() ([]byte, error) {
	comp := fhir.Composition{
		ResourceType: "Composition",
		ID:           "comp-1",
		Meta:         &fhir.Meta{Profile: []string{fhir.ProfileLACComposition}},
		Status:       "final",
		Type:         &fhir.CodeableConcept{Coding: []fhir.Coding{{Code: "60591-5", Display: "Patient summary"}}},
		Subject:      &fhir.Reference{Reference: "Patient/pat-1"},
		Date:         "2024-03-10T09:30:00Z",
		Title:        "International Patient Summary",
		Section: []fhir.Section{{
			Title: "Immunizations",
			Text:  &fhir.Narrative{Status: "generated", Div: `<div xmlns="http://www.w3.org/1999/xhtml"><p>Yellow fever, 2023-11-20</p></div>`},
			Entry: []fhir.Reference{{Reference: "Immunization/imm-1"}},
		}},
	}
	return renderBundle("ips-1", "document", fhir.ProfileLACBundle,
		comp, demoPatient(),
		demoImmunization("imm-1", "XM0N24", "Yellow fever vaccine", "2023-11-20", "YF123"))
}

// DemoICVPBundle renders the seeded vaccination bundle.
func DemoICVPBundle() ([]byte, error) {
	return renderBundle("icvp-1", "document", fhir.ProfileICVPBundle,
		demoPatient(),
		demoImmunization("imm-1", "XM0N24", "Yellow fever vaccine", "2023-11-20", "YF123"),
		demoImmunization("imm-2", "XM1AP3", "Poliomyelitis vaccine", "2024-05-02", ""))
}

func renderBundle(id, typ, profile string, resources ...any) ([]byte, error) {
	b := &fhir.Bundle{
		ResourceType: "Bundle",
		ID:           id,
		Type:         typ,
		Timestamp:    "2024-05-02T10:00:00Z",
		Meta:         &fhir.Meta{Profile: []string{profile}},
	}
	for _, res := range resources {
		raw, err := json.Marshal(res)
		if err != nil {
			return nil, err
		}
		b.Entry = append(b.Entry, fhir.BundleEntry{Resource: raw})
	}
	return json.Marshal(b)
}
