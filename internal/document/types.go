package document

import (
	"encoding/json"

	"consultdoc/internal/clinical"
)

type Header struct {
	Title             string `json:"title"`
	Organisation      string `json:"organisation"`
	Practitioner      string `json:"practitioner"`
	PractitionerTitle string `json:"practitionerTitle"`
	Registration      string `json:"registration"`
	City              string `json:"city"`
	Date              string `json:"date"`
}

type Identification struct {
	PatientName      string   `json:"patientName"`
	Age              string   `json:"age"`
	Sex              string   `json:"sex"`
	BirthDate        string   `json:"birthDate"`
	Weight           string   `json:"weight"`
	Allergies        []string `json:"allergies"`
	ChiefComplaint   string   `json:"chiefComplaint"`
	PrimaryDiagnosis string   `json:"primaryDiagnosis"`
	ICDCode          string   `json:"icdCode"`
}

// PrescriptionBlock carries the structured arrays and the plain summary. In
// simplified mode only the summary is encoded; otherwise all three arrays are
// always present, empty when nothing was prescribed.
type PrescriptionBlock struct {
	Medications  []clinical.Medication  `json:"medications"`
	LabExams     []clinical.LabExam     `json:"labExams"`
	ImagingExams []clinical.ImagingExam `json:"imagingExams"`
	Summary      PrescriptionSummary    `json:"summary"`

	simplified bool
}

func (b PrescriptionBlock) MarshalJSON() ([]byte, error) {
	if b.simplified {
		return json.Marshal(struct {
			Summary PrescriptionSummary `json:"summary"`
		}{b.Summary})
	}
	type full PrescriptionBlock
	out := full(b)
	if out.Medications == nil {
		out.Medications = []clinical.Medication{}
	}
	if out.LabExams == nil {
		out.LabExams = []clinical.LabExam{}
	}
	if out.ImagingExams == nil {
		out.ImagingExams = []clinical.ImagingExam{}
	}
	return json.Marshal(out)
}

type PrescriptionSummary struct {
	Medications  []string `json:"medications"`
	LabExams     []string `json:"labExams"`
	ImagingExams []string `json:"imagingExams"`
}

type Signature struct {
	Practitioner string `json:"practitioner"`
	Title        string `json:"title"`
	Registration string `json:"registration"`
	City         string `json:"city"`
	Date         string `json:"date"`
	Statement    string `json:"statement"`
}

type Repair struct {
	Section string `json:"section"`
	Reason  string `json:"reason"`
}

type Metadata struct {
	RequestID        string   `json:"requestId"`
	GeneratedAt      string   `json:"generatedAt"`
	WordCount        int      `json:"wordCount"`
	Size             int      `json:"size"`
	Simplified       bool     `json:"simplified"`
	UsedFallback     bool     `json:"usedFallback"`
	Attempts         int      `json:"attempts"`
	Generator        string   `json:"generator,omitempty"`
	RepairedSections []Repair `json:"repairedSections"`
	Synthesized      []string `json:"synthesizedCategories"`
	TablesVersion    string   `json:"tablesVersion,omitempty"`
}

// Document is the final consultation report. Alerts come first so safety
// conflicts are the first thing a reader sees.
type Document struct {
	ID             string                `json:"id"`
	Alerts         []clinical.SafetyFlag `json:"alerts"`
	Header         Header                `json:"header"`
	Identification Identification        `json:"identification"`
	Sections       []clinical.Section    `json:"sections"`
	Prescriptions  PrescriptionBlock     `json:"prescriptions"`
	Signature      Signature             `json:"signature"`
	Metadata       Metadata              `json:"metadata"`
}

// HasConflict reports whether any alert is an allergy conflict.
func (d *Document) HasConflict() bool {
	for _, a := range d.Alerts {
		if a.Kind == clinical.AllergyConflict {
			return true
		}
	}
	return false
}
