package fhir

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

const summaryBundle = `{
  "resourceType": "Bundle",
  "id": "18",
  "type": "document",
  "meta": {"profile": ["http://lacpass.racsel.org/StructureDefinition/lac-bundle"]},
  "timestamp": "2024-03-01T10:00:00Z",
  "entry": [
    {"fullUrl": "urn:uuid:c1", "resource": {
      "resourceType": "Composition", "id": "c1", "title": "Patient Summary",
      "date": "2024-03-01", "subject": {"reference": "urn:uuid:p1"},
      "section": [
        {"title": "Immunizations", "text": {"div": "<div xmlns=\"http://www.w3.org/1999/xhtml\"><p>Yellow &amp; fever</p><ul><li>Dose 1</li><li>Dose   2</li></ul></div>"},
         "entry": [{"reference": "urn:uuid:i1"}]},
        {"code": {"coding": [{"display": "Allergies"}]}},
        {}
      ]}},
    {"fullUrl": "urn:uuid:p1", "resource": {
      "resourceType": "Patient", "id": "p1",
      "identifier": [{"value": "RUN*12345678"}],
      "name": [{"family": "Doe", "given": ["John", "Q"]}],
      "birthDate": "1990-01-01"}},
    {"fullUrl": "urn:uuid:i1", "resource": {
      "resourceType": "Immunization", "id": "i1", "occurrenceDateTime": "2021-06-01",
      "vaccineCode": {"coding": [{"code": "YF", "display": "Yellow fever"}]}}},
    {"fullUrl": "urn:uuid:o1", "resource": {
      "resourceType": "Observation", "id": "o1", "issued": "2020-01-01T00:00:00Z",
      "code": {"text": "Blood type"}}}
  ]
}`

func mustParse(t *testing.T, data string) *Bundle {
	t.Helper()
	b, err := ParseBundle([]byte(data))
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}
	return b
}

func bundleWithProfiles(profiles ...string) *Bundle {
	return &Bundle{ResourceType: "Bundle", Meta: &Meta{Profile: profiles}}
}

func TestU_ParseBundle_KeepsRaw(t *testing.T) {
	b := mustParse(t, summaryBundle)
	raw, err := b.Raw()
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if string(raw) != summaryBundle {
		t.Error("Raw does not return the parsed document")
	}
	out, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	var back, want map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	_ = json.Unmarshal(compact.Bytes(), &want)
	if !reflect.DeepEqual(back, want) {
		t.Error("MarshalJSON does not return the parsed document")
	}
	if b.ID != "18" || len(b.Entry) != 4 {
		t.Errorf("typed view: id=%q entries=%d", b.ID, len(b.Entry))
	}
}

func TestU_ParseBundle_Rejects(t *testing.T) {
	if _, err := ParseBundle([]byte(`{"resourceType":"Patient"}`)); !errors.Is(err, ErrNotBundle) {
		t.Errorf("Patient: err = %v, want ErrNotBundle", err)
	}
	if _, err := ParseBundle([]byte(`not json`)); err == nil {
		t.Error("invalid JSON accepted")
	}
}

func TestU_Bundle_RawInMemory(t *testing.T) {
	b := &Bundle{ResourceType: "Bundle", ID: "x", ResolvedBaseURL: "https://example.org/fhir"}
	raw, err := b.Raw()
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if string(raw) != `{"resourceType":"Bundle","id":"x"}` {
		t.Errorf("Raw = %s", raw)
	}
}

func TestU_Bundle_NextLink(t *testing.T) {
	b := &Bundle{Link: []BundleLink{{Relation: "self", URL: "a"}, {Relation: "NEXT", URL: "b"}}}
	if u, ok := b.NextLink(); !ok || u != "b" {
		t.Errorf("NextLink = %q, %v", u, ok)
	}
	if _, ok := (&Bundle{}).NextLink(); ok {
		t.Error("NextLink found on a bundle without links")
	}
}

func TestU_Classify(t *testing.T) {
	tests := []struct {
		name     string
		bundle   *Bundle
		want     Classification
		workflow Workflow
	}{
		{"lac bundle", bundleWithProfiles(ProfileLACBundle), Classification{SummaryDocument: true}, WorkflowSummary},
		{"lac composition", bundleWithProfiles("x", ProfileLACComposition), Classification{SummaryDocument: true}, WorkflowSummary},
		{"icvp", bundleWithProfiles(ProfileICVPBundle), Classification{VaccinationCertificate: true}, WorkflowCertificate},
		{"unknown profile", bundleWithProfiles("http://example.org/other"), Classification{}, WorkflowUnknown},
		{"no meta", &Bundle{ResourceType: "Bundle"}, Classification{}, WorkflowUnknown},
		{"profile prefix only", bundleWithProfiles(ProfileICVPBundle + "-extra"), Classification{}, WorkflowUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.bundle)
			if got != tt.want {
				t.Errorf("Classify = %+v, want %+v", got, tt.want)
			}
			if w := got.Workflow(); w != tt.workflow {
				t.Errorf("Workflow = %s, want %s", w, tt.workflow)
			}
		})
	}
}

func TestU_DocumentReference_DateString(t *testing.T) {
	tests := []struct {
		name string
		doc  DocumentReference
		want string
	}{
		{"date wins", DocumentReference{Date: "2024-01-01", Indexed: "2023-01-01"}, "2024-01-01"},
		{"indexed", DocumentReference{Indexed: "2023-01-01", Meta: &Meta{LastUpdated: "2022-01-01"}}, "2023-01-01"},
		{"creation", DocumentReference{
			Content: []DocumentContent{{Attachment: Attachment{Creation: "2021-01-01"}}},
			Meta:    &Meta{LastUpdated: "2022-01-01"},
		}, "2021-01-01"},
		{"last updated", DocumentReference{
			Content: []DocumentContent{{Attachment: Attachment{URL: "Bundle/1"}}},
			Meta:    &Meta{LastUpdated: "2022-01-01"},
		}, "2022-01-01"},
		{"none", DocumentReference{}, ""},
	}
	for _, tt := range tests {
		if got := tt.doc.DateString(); got != tt.want {
			t.Errorf("%s: DateString = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestU_ParseDateTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-01T10:00:00Z", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"2024-03-01T10:00:00.123-03:00", time.Date(2024, 3, 1, 13, 0, 0, 123000000, time.UTC), true},
		{"2024-03-01T10:00:00", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDateTime(tt.in)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseDateTime(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestU_Summarize(t *testing.T) {
	s := Summarize(mustParse(t, summaryBundle))

	if s.Title != "Patient Summary" {
		t.Errorf("Title = %q", s.Title)
	}
	if s.Timestamp != "2024-03-01T10:00:00Z" {
		t.Errorf("Timestamp = %q", s.Timestamp)
	}
	if !s.Classification.SummaryDocument || !s.IPS {
		t.Errorf("classification = %+v, ips = %v", s.Classification, s.IPS)
	}
	if s.Patient == nil || s.Patient.Name != "John Q Doe" || s.Patient.Identifier != "RUN*12345678" {
		t.Errorf("Patient = %+v", s.Patient)
	}

	wantSections := []SectionInfo{
		{Title: "Immunizations", Text: "Yellow & fever\nDose 1\nDose 2", References: []string{"urn:uuid:i1"}},
		{Title: "Allergies"},
		{Title: "Section 3"},
	}
	if !reflect.DeepEqual(s.Sections, wantSections) {
		t.Errorf("Sections = %+v, want %+v", s.Sections, wantSections)
	}

	wantCounts := map[string]int{"Composition": 1, "Patient": 1, "Immunization": 1, "Observation": 1}
	if !reflect.DeepEqual(s.ResourceCounts, wantCounts) {
		t.Errorf("ResourceCounts = %v", s.ResourceCounts)
	}

	var labels []string
	for _, e := range s.Events {
		labels = append(labels, e.ResourceType+":"+e.Label)
	}
	wantLabels := []string{"Observation:Blood type", "Immunization:Yellow fever · YF", "Composition:Patient Summary"}
	if !reflect.DeepEqual(labels, wantLabels) {
		t.Errorf("Events = %v, want %v", labels, wantLabels)
	}
}

func TestU_Summarize_Defaults(t *testing.T) {
	s := Summarize(&Bundle{ResourceType: "Bundle"})
	if s.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", s.Title, DefaultTitle)
	}
	if s.Patient != nil || len(s.Sections) != 0 || len(s.Events) != 0 {
		t.Errorf("unexpected content in empty summary: %+v", s)
	}
}

func TestU_Summarize_PatientBySubject(t *testing.T) {
	b := mustParse(t, `{"resourceType":"Bundle","entry":[
	  {"resource":{"resourceType":"Composition","type":{"coding":[{"display":"ICVP"}]},"subject":{"reference":"Patient/p9"}}},
	  {"resource":{"resourceType":"Patient","id":"p9","name":[{"text":"Ana"}]}}]}`)
	s := Summarize(b)
	if s.Title != "ICVP" {
		t.Errorf("Title = %q", s.Title)
	}
	if s.Patient == nil || s.Patient.Name != "Ana" {
		t.Errorf("Patient = %+v", s.Patient)
	}
}

func TestU_NarrativeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"<div>plain</div>", "plain"},
		{"<div><table><tr><td>a</td><td>b</td></tr><tr><td>c</td></tr></table></div>", "a b\nc"},
		{"<div>x<br/>y<script>ignored()</script></div>", "x\ny"},
		{"<div>&lt;tag&gt;</div>", "<tag>"},
	}
	for _, tt := range tests {
		if got := NarrativeText(tt.in); got != tt.want {
			t.Errorf("NarrativeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
