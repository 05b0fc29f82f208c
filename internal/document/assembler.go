package document

import (
	"fmt"
	"strings"
	"time"

	"consultdoc/internal/clinical"
)

// Practice is the issuing practitioner, taken from configuration.
type Practice struct {
	Practitioner string
	Title        string
	Registration string
	Organisation string
	City         string
}

type Input struct {
	ID            string
	RequestID     string
	Record        clinical.Canonical
	Prescriptions clinical.Prescriptions
	Sections      []clinical.Section
	Repairs       []Repair
	Synthesized   []string
	Simplified    bool
	Attempts      int
	UsedFallback  bool
	Generator     string
	TablesVersion string
}

type Assembler struct {
	practice Practice
	now      func() time.Time
}

func NewAssembler(practice Practice) *Assembler {
	return &Assembler{practice: practice, now: time.Now}
}

// WithClock replaces the time source used for dates.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	cp := *a
	cp.now = now
	return &cp
}

// Assemble merges every part into the final document. Prescriptions come from
// the enrichment stage only; sections are copied so the caller's slice is untouched.
func (a *Assembler) Assemble(in Input) *Document {
	now := a.now().UTC()
	date := now.Format("2006-01-02")

	sections := make([]clinical.Section, len(in.Sections))
	copy(sections, in.Sections)
	repairs := append([]Repair{}, in.Repairs...)
	for i := range sections {
		if clinical.HasPlaceholder(sections[i].Text) || strings.TrimSpace(sections[i].Text) == "" {
			spec, ok := clinical.SectionSpecByKey(sections[i].Key)
			if !ok {
				continue
			}
			sections[i].Text = spec.DefaultText
			sections[i].Origin = clinical.OriginDefault
			repairs = append(repairs, Repair{Section: sections[i].Key, Reason: "placeholder"})
		}
	}

	alerts := in.Prescriptions.Flags()
	if alerts == nil {
		alerts = []clinical.SafetyFlag{}
	}

	p := in.Record.Patient
	d := &Document{
		ID:     in.ID,
		Alerts: alerts,
		Header: Header{
			Title:             "Teleconsultation report",
			Organisation:      a.practice.Organisation,
			Practitioner:      a.practice.Practitioner,
			PractitionerTitle: a.practice.Title,
			Registration:      a.practice.Registration,
			City:              a.practice.City,
			Date:              date,
		},
		Identification: Identification{
			PatientName:      p.FullName,
			Age:              ageText(p),
			Sex:              p.Sex,
			BirthDate:        p.BirthDate,
			Weight:           p.Weight,
			Allergies:        p.Allergies,
			ChiefComplaint:   in.Record.Clinical.ChiefComplaint,
			PrimaryDiagnosis: in.Record.Diagnosis.Primary,
			ICDCode:          in.Record.Diagnosis.ICDCode,
		},
		Sections:      sections,
		Prescriptions: prescriptionBlock(in.Prescriptions, in.Simplified),
		Signature: Signature{
			Practitioner: a.practice.Practitioner,
			Title:        a.practice.Title,
			Registration: a.practice.Registration,
			City:         a.practice.City,
			Date:         date,
			Statement:    "Draft generated for review. Valid only once checked and signed by the practitioner.",
		},
		Metadata: Metadata{
			RequestID:        in.RequestID,
			GeneratedAt:      now.Format(time.RFC3339),
			Simplified:       in.Simplified,
			UsedFallback:     in.UsedFallback,
			Attempts:         in.Attempts,
			Generator:        in.Generator,
			RepairedSections: repairs,
			Synthesized:      append([]string{}, in.Synthesized...),
			TablesVersion:    in.TablesVersion,
		},
	}
	d.Metadata.WordCount, d.Metadata.Size = measure(sections)
	return d
}

func ageText(p clinical.PatientRecord) string {
	if p.Age > 0 {
		return fmt.Sprintf("%d years", p.Age)
	}
	return p.AgeText
}

func measure(sections []clinical.Section) (words, size int) {
	for _, s := range sections {
		words += len(strings.Fields(s.Text))
		size += len(s.Text)
	}
	return words, size
}

func prescriptionBlock(p clinical.Prescriptions, simplified bool) PrescriptionBlock {
	block := PrescriptionBlock{Summary: Summarize(p), simplified: simplified}
	if !simplified {
		block.Medications = p.Medications
		block.LabExams = p.LabExams
		block.ImagingExams = p.ImagingExams
	}
	return block
}

// Summarize renders one plain line per item.
func Summarize(p clinical.Prescriptions) PrescriptionSummary {
	s := PrescriptionSummary{
		Medications:  make([]string, 0, len(p.Medications)),
		LabExams:     make([]string, 0, len(p.LabExams)),
		ImagingExams: make([]string, 0, len(p.ImagingExams)),
	}
	for _, m := range p.Medications {
		line := fmt.Sprintf("%s: %s, %s, for %s", m.Name, m.Dosage, m.Frequency, m.Duration)
		if m.Quantity != "" {
			line += fmt.Sprintf(" (%s)", m.Quantity)
		}
		var notes []string
		if m.AllergyFlag {
			notes = append(notes, "ALLERGY CONFLICT")
		}
		if m.AgeAdjustment != nil {
			notes = append(notes, fmt.Sprintf("reduce dose %d-%d%%", m.AgeAdjustment.ReductionMin, m.AgeAdjustment.ReductionMax))
		}
		if m.RenewalEligible {
			notes = append(notes, "renewable")
		}
		if len(notes) > 0 {
			line += " [" + strings.Join(notes, "; ") + "]"
		}
		s.Medications = append(s.Medications, line)
	}
	for _, l := range p.LabExams {
		line := fmt.Sprintf("%s (%s): %s", l.Name, l.Code, l.Urgency)
		if l.FastingRequired {
			line += ", fasting required"
		}
		s.LabExams = append(s.LabExams, line)
	}
	for _, i := range p.ImagingExams {
		line := fmt.Sprintf("%s, %s: %s", i.Type, i.Region, i.Urgency)
		if i.ContrastRequired {
			line += ", with contrast"
		}
		s.ImagingExams = append(s.ImagingExams, line)
	}
	return s
}
