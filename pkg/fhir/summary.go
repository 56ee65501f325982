package fhir

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultTitle is used when a document carries no title.
const DefaultTitle = "Clinical Document"

// Summary is the display data of a clinical document bundle.
type Summary struct {
	Title          string         `json:"title"`
	Timestamp      string         `json:"timestamp,omitempty"`
	Classification Classification `json:"classification"`
	IPS            bool           `json:"ips"`
	Patient        *PatientInfo   `json:"patient,omitempty"`
	Sections       []SectionInfo  `json:"sections,omitempty"`
	ResourceCounts map[string]int `json:"resourceCounts"`
	Events         []Event        `json:"events,omitempty"`
}

// PatientInfo is the patient block of a summary.
type PatientInfo struct {
	ID         string `json:"id,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Name       string `json:"name,omitempty"`
	BirthDate  string `json:"birthDate,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Narrative  string `json:"narrative,omitempty"`
}

// SectionInfo is one composition section with its narrative as plain text.
type SectionInfo struct {
	Title      string   `json:"title"`
	Text       string   `json:"text,omitempty"`
	References []string `json:"references,omitempty"`
}

// Event is a dated clinical fact shown on a timeline.
type Event struct {
	Date         time.Time `json:"date"`
	ResourceType string    `json:"resourceType"`
	Label        string    `json:"label"`
}

// Summarize extracts title, patient, sections, resource counts and a
// timeline from a document bundle.
func Summarize(b *Bundle) Summary {
	s := Summary{
		Title:          DefaultTitle,
		Timestamp:      b.Timestamp,
		Classification: Classify(b),
		ResourceCounts: b.ResourceCounts(),
	}

	var comp Composition
	hasComp := b.FirstResource("Composition", &comp)
	if hasComp {
		if comp.Title != "" {
			s.Title = comp.Title
		} else if comp.Type != nil && len(comp.Type.Coding) > 0 && comp.Type.Coding[0].Display != "" {
			s.Title = comp.Type.Coding[0].Display
		}
		if s.Timestamp == "" {
			s.Timestamp = comp.Date
		}
		for i, sec := range comp.Section {
			info := SectionInfo{Title: sec.Title}
			if info.Title == "" && sec.Code != nil && len(sec.Code.Coding) > 0 {
				info.Title = sec.Code.Coding[0].Display
			}
			if info.Title == "" {
				info.Title = "Section " + strconv.Itoa(i+1)
			}
			if sec.Text != nil {
				info.Text = NarrativeText(sec.Text.Div)
			}
			for _, ref := range sec.Entry {
				if ref.Reference != "" {
					info.References = append(info.References, ref.Reference)
				}
			}
			s.Sections = append(s.Sections, info)
		}
		s.IPS = b.Type == "document" || hasIPSProfile(comp.Meta)
	}

	if p, ok := findPatient(b, &comp, hasComp); ok {
		info := &PatientInfo{ID: p.ID, BirthDate: p.BirthDate, Gender: p.Gender}
		if len(p.Identifier) > 0 {
			info.Identifier = p.Identifier[0].Value
		}
		if len(p.Name) > 0 {
			info.Name = p.Name[0].String()
		}
		if p.Text != nil {
			info.Narrative = NarrativeText(p.Text.Div)
		}
		s.Patient = info
	}

	s.Events = collectEvents(b)
	return s
}

func hasIPSProfile(m *Meta) bool {
	if m == nil {
		return false
	}
	for _, p := range m.Profile {
		if strings.Contains(p, "StructureDefinition/Composition-uv-ips") || strings.Contains(p, "hl7.fhir.uv.ips") {
			return true
		}
	}
	return false
}

// findPatient returns the first Patient, or the one the composition
// subject references.
func findPatient(b *Bundle, comp *Composition, hasComp bool) (Patient, bool) {
	var first Patient
	if b.FirstResource("Patient", &first) {
		return first, true
	}
	if !hasComp || comp.Subject == nil || comp.Subject.Reference == "" {
		return Patient{}, false
	}
	ref := comp.Subject.Reference
	for _, e := range b.Entry {
		var p Patient
		if e.ResourceType() != "Patient" || e.Decode(&p) != nil {
			continue
		}
		if e.FullURL == ref || "Patient/"+p.ID == ref || p.ID == strings.TrimPrefix(ref, "urn:uuid:") {
			return p, true
		}
	}
	return Patient{}, false
}

// eventFields covers the date and code elements of the resources shown on
// the timeline.
type eventFields struct {
	Title                     string           `json:"title"`
	Date                      string           `json:"date"`
	RecordedDate              string           `json:"recordedDate"`
	OnsetDateTime             string           `json:"onsetDateTime"`
	OccurrenceDateTime        string           `json:"occurrenceDateTime"`
	PerformedDateTime         string           `json:"performedDateTime"`
	DateAsserted              string           `json:"dateAsserted"`
	EffectiveDateTime         string           `json:"effectiveDateTime"`
	Issued                    string           `json:"issued"`
	Code                      *CodeableConcept `json:"code"`
	VaccineCode               *CodeableConcept `json:"vaccineCode"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func codingText(c *CodeableConcept) string {
	if c == nil {
		return ""
	}
	if c.Text != "" {
		return c.Text
	}
	if len(c.Coding) == 0 {
		return ""
	}
	var parts []string
	for _, p := range []string{c.Coding[0].Display, c.Coding[0].Code} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " · ")
}

// collectEvents returns the dated resources of b in chronological order.
func collectEvents(b *Bundle) []Event {
	var events []Event
	for _, e := range b.Entry {
		rt := e.ResourceType()
		var f eventFields
		if rt == "" || e.Decode(&f) != nil {
			continue
		}

		var date, label string
		switch rt {
		case "Composition":
			date, label = f.Date, firstNonEmpty(f.Title, "IPS Composition")
		case "Condition":
			date, label = firstNonEmpty(f.RecordedDate, f.OnsetDateTime), codingText(f.Code)
		case "Immunization":
			date, label = f.OccurrenceDateTime, codingText(f.VaccineCode)
		case "Procedure":
			date, label = f.PerformedDateTime, codingText(f.Code)
		case "MedicationStatement":
			date, label = firstNonEmpty(f.DateAsserted, f.EffectiveDateTime), codingText(f.MedicationCodeableConcept)
		case "DiagnosticReport", "Observation":
			date, label = firstNonEmpty(f.EffectiveDateTime, f.Issued), codingText(f.Code)
		default:
			continue
		}

		t, ok := ParseDateTime(date)
		if !ok {
			continue
		}
		events = append(events, Event{Date: t, ResourceType: rt, Label: label})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return events
}

// NarrativeText flattens narrative XHTML to plain text. Block elements end
// a line; runs of whitespace collapse to one space.
func NarrativeText(div string) string {
	if strings.TrimSpace(div) == "" {
		return ""
	}

	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	z := html.NewTokenizer(strings.NewReader(div))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return strings.Join(lines, "\n")
		case html.TextToken:
			if skip == 0 {
				cur.Write(z.Text())
				cur.WriteByte(' ')
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
				continue
			}
			if isBlock(a) {
				flush()
			}
		}
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.P, atom.Br, atom.Li, atom.Tr, atom.Table, atom.Ul, atom.Ol,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Thead, atom.Tbody, atom.Pre:
		return true
	}
	return false
}
