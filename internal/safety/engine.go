// Package safety derives clinical fields and safety flags for prescription items.
// Every function here is pure: same item, patient and tables give the same result.
package safety

import (
	"fmt"
	"strings"
	"unicode"

	"consultdoc/internal/clinical"
	"consultdoc/internal/knowledge"
)

type Engine struct {
	tables *knowledge.Tables
}

func NewEngine(tables *knowledge.Tables) *Engine {
	return &Engine{tables: tables}
}

// Enrich returns enriched copies of every item; the input is left untouched.
func (e *Engine) Enrich(p clinical.Prescriptions, patient clinical.PatientRecord, diagnosis string) clinical.Prescriptions {
	out := clinical.Prescriptions{
		Medications:  make([]clinical.Medication, 0, len(p.Medications)),
		LabExams:     make([]clinical.LabExam, 0, len(p.LabExams)),
		ImagingExams: make([]clinical.ImagingExam, 0, len(p.ImagingExams)),
	}
	for _, m := range p.Medications {
		out.Medications = append(out.Medications, e.Medication(m, patient, diagnosis))
	}
	for _, l := range p.LabExams {
		out.LabExams = append(out.LabExams, e.Lab(l))
	}
	for _, i := range p.ImagingExams {
		out.ImagingExams = append(out.ImagingExams, e.Imaging(i))
	}
	return out
}

func (e *Engine) Medication(m clinical.Medication, patient clinical.PatientRecord, diagnosis string) clinical.Medication {
	m.DCI = e.DCI(m.Name)
	m.Form = e.tables.FormFor(m.Name+" "+m.Dosage, m.DCI)
	m.Quantity = Quantity(m.Duration, m.Frequency)
	m.Flags = nil
	m.AllergyFlag = false
	m.AgeAdjustment = nil
	m.RenewalEligible = false

	if allergen, ok := AllergyConflict(m.Name, m.DCI, patient.Allergies); ok {
		m.AllergyFlag = true
		m.Flags = append(m.Flags, clinical.SafetyFlag{
			Kind:     clinical.AllergyConflict,
			Severity: clinical.SeverityCritical,
			Item:     m.Name,
			Message:  fmt.Sprintf("Patient reports an allergy to %q: %s must not be dispensed without review.", allergen, m.Name),
		})
	}

	age := e.tables.Age
	if patient.Age >= age.Threshold {
		m.AgeAdjustment = &clinical.AgeAdjustment{
			ReductionMin: age.ReductionMinPercent,
			ReductionMax: age.ReductionMaxPercent,
			Note:         age.Note,
		}
		m.Flags = append(m.Flags, clinical.SafetyFlag{
			Kind:     clinical.AgeDoseAdjustment,
			Severity: clinical.SeverityWarning,
			Item:     m.Name,
			Message: fmt.Sprintf("Patient aged %d: consider a %d-%d%% dose reduction for %s and reinforced monitoring.",
				patient.Age, age.ReductionMinPercent, age.ReductionMaxPercent, m.Name),
		})
	}

	if e.tables.IsChronic(diagnosis) {
		m.RenewalEligible = true
		m.Flags = append(m.Flags, clinical.SafetyFlag{
			Kind:     clinical.RenewalEligible,
			Severity: clinical.SeverityInfo,
			Item:     m.Name,
			Message:  fmt.Sprintf("%s may be renewed for the chronic condition.", m.Name),
		})
	}
	return m
}

func (e *Engine) Lab(l clinical.LabExam) clinical.LabExam {
	if code, ok := e.tables.LabCode(l.Name); ok {
		l.Code = code
	} else {
		l.Code = clinical.ToSpecify
	}
	l.FastingRequired = e.tables.RequiresFasting(l.Name)
	return l
}

func (e *Engine) Imaging(i clinical.ImagingExam) clinical.ImagingExam {
	i.ContrastRequired = e.tables.RequiresContrast(i.Type)
	if strings.TrimSpace(i.Region) == "" || i.Region == clinical.ToSpecify {
		i.Region = clinical.ToSpecify
		if r, ok := e.tables.RegionFor(i.Type); ok {
			i.Region = r
		} else if r, ok := e.tables.RegionFor(i.Indication); ok {
			i.Region = r
		}
	}
	return i
}

// DCI resolves a brand to its generic name, or strips strength and form tokens from name.
func (e *Engine) DCI(name string) string {
	if dci, ok := e.tables.BrandDCI(name); ok {
		return dci
	}
	var kept []string
	for _, w := range strings.Fields(strings.ToLower(name)) {
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 || strengthUnits[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

var strengthUnits = map[string]bool{
	"mg": true, "g": true, "ml": true, "µg": true, "mcg": true, "ui": true, "iu": true, "%": true,
}

// AllergyConflict reports the first allergy that contains, or is contained in,
// the medication name or DCI. Comparison ignores case and accents.
func AllergyConflict(name, dci string, allergies []string) (string, bool) {
	candidates := []string{knowledge.Fold(name), knowledge.Fold(dci)}
	for _, a := range allergies {
		fa := knowledge.Fold(a)
		if fa == "" {
			continue
		}
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if strings.Contains(c, fa) || strings.Contains(fa, c) {
				return a, true
			}
		}
	}
	return "", false
}
