package prescription

import (
	"strings"

	"consultdoc/internal/bundle"
	"consultdoc/internal/clinical"
)

// Alias chains, most specific first.
var (
	medicationNameKeys = []string{
		"nom", "localizedName", "medication_name", "medicationName",
		"dci", "generic", "genericName", "name", "drug", "medication", "text", "description",
	}
	dosageKeys       = []string{"dosage", "dose", "strength", "posologie"}
	frequencyKeys    = []string{"frequency", "frequence", "fréquence", "schedule", "posology"}
	durationKeys     = []string{"duration", "duree", "durée", "treatment_duration", "treatmentDuration"}
	instructionKeys  = []string{"instructions", "consignes", "administration", "notes", "comment"}
	labNameKeys      = []string{"name", "nom", "examination", "examen", "exam", "test", "analysis", "text"}
	urgencyKeys      = []string{"urgency", "urgence", "priority", "priorite"}
	justifyKeys      = []string{"justification", "indication", "reason", "rationale", "purpose"}
	imagingTypeKeys  = []string{"examination", "exam", "examen", "name", "nom", "study", "modality", "type", "text"}
	regionKeys       = []string{"region", "région", "bodyPart", "body_part", "localisation", "zone", "site"}
	indicationKeys   = []string{"indication", "justification", "reason", "clinical_question", "purpose"}
	investigationCat = []string{"category", "kind", "categorie", "type"}
)

type rawMedication struct {
	Name, Dosage, Frequency, Duration, Instructions string
}

type rawLab struct {
	Name, Urgency, Justification string
}

type rawImaging struct {
	Type, Region, Indication, Urgency string
}

// raw is what one adapter finds at its locations, before dedup.
type raw struct {
	Medications  []rawMedication
	LabExams     []rawLab
	ImagingExams []rawImaging
}

// Adapter reads prescription entries from one family of bundle locations.
type Adapter interface {
	Name() string
	Source() clinical.Source
	Extract(b bundle.Bundle) raw
}

// locationAdapter scans fixed paths per category. Mixed paths hold
// investigations whose category decides lab versus imaging.
type locationAdapter struct {
	name        string
	source      clinical.Source
	medications []string
	labs        []string
	imaging     []string
	mixed       []string
}

func (a *locationAdapter) Name() string            { return a.name }
func (a *locationAdapter) Source() clinical.Source { return a.source }

func (a *locationAdapter) Extract(b bundle.Bundle) raw {
	var out raw
	for _, p := range a.medications {
		for _, item := range b.Slice(p) {
			out.Medications = append(out.Medications, decodeMedication(item))
		}
	}
	for _, p := range a.labs {
		for _, item := range b.Slice(p) {
			out.LabExams = append(out.LabExams, decodeLab(item))
		}
	}
	for _, p := range a.imaging {
		for _, item := range b.Slice(p) {
			out.ImagingExams = append(out.ImagingExams, decodeImaging(item))
		}
	}
	for _, p := range a.mixed {
		for _, item := range b.Slice(p) {
			if isImaging(item) {
				out.ImagingExams = append(out.ImagingExams, decodeImaging(item))
			} else {
				out.LabExams = append(out.LabExams, decodeLab(item))
			}
		}
	}
	return out
}

// DefaultAdapters returns the locations in priority order: user-edited
// documents, then diagnosis-engine output, then completeData mirrors.
func DefaultAdapters() []Adapter {
	return []Adapter{
		&locationAdapter{
			name:   "edited",
			source: clinical.SourceEdited,
			medications: []string{
				"editedDocuments.medication.prescriptions",
				"editedDocuments.medication.medications",
				"editedDocuments.medications",
				"editedDocuments.prescription.medications",
			},
			labs: []string{
				"editedDocuments.biology.exams",
				"editedDocuments.biology.analyses",
				"editedDocuments.labExams",
			},
			imaging: []string{
				"editedDocuments.imaging.exams",
				"editedDocuments.imaging.examinations",
				"editedDocuments.imagingExams",
			},
		},
		&locationAdapter{
			name:   "diagnosis",
			source: clinical.SourceDiagnosis,
			medications: []string{
				"diagnosisData.expertAnalysis.expert_therapeutics.primary_treatments",
				"diagnosisData.expertAnalysis.medications",
				"diagnosisData.treatment.medications",
				"diagnosisData.treatmentPlan.medications",
				"diagnosisData.medications",
			},
			labs: []string{
				"diagnosisData.investigations.laboratory",
				"diagnosisData.labTests",
				"diagnosisData.recommendedTests",
			},
			imaging: []string{
				"diagnosisData.investigations.imaging",
				"diagnosisData.imagingStudies",
				"diagnosisData.expertAnalysis.imaging",
			},
			mixed: []string{
				"diagnosisData.expertAnalysis.expert_investigations.immediate_priority",
				"diagnosisData.expertAnalysis.investigations",
			},
		},
		&locationAdapter{
			name:   "completeData",
			source: clinical.SourceCompleted,
			medications: []string{
				"completeData.prescriptions.medications",
				"completeData.medications",
			},
			labs: []string{
				"completeData.prescriptions.labExams",
				"completeData.labExams",
			},
			imaging: []string{
				"completeData.prescriptions.imagingExams",
				"completeData.imagingExams",
			},
		},
	}
}

func asObject(item any) map[string]any {
	switch x := item.(type) {
	case map[string]any:
		return x
	case string:
		return map[string]any{"text": x}
	}
	return nil
}

func decodeMedication(item any) rawMedication {
	m := asObject(item)
	return rawMedication{
		Name:         bundle.Field(m, medicationNameKeys...),
		Dosage:       bundle.Field(m, dosageKeys...),
		Frequency:    bundle.Field(m, frequencyKeys...),
		Duration:     bundle.Field(m, durationKeys...),
		Instructions: bundle.Field(m, instructionKeys...),
	}
}

func decodeLab(item any) rawLab {
	m := asObject(item)
	return rawLab{
		Name:          bundle.Field(m, labNameKeys...),
		Urgency:       bundle.Field(m, urgencyKeys...),
		Justification: bundle.Field(m, justifyKeys...),
	}
}

func decodeImaging(item any) rawImaging {
	m := asObject(item)
	return rawImaging{
		Type:       bundle.Field(m, imagingTypeKeys...),
		Region:     bundle.Field(m, regionKeys...),
		Indication: bundle.Field(m, indicationKeys...),
		Urgency:    bundle.Field(m, urgencyKeys...),
	}
}

func isImaging(item any) bool {
	cat := strings.ToLower(bundle.Field(asObject(item), investigationCat...))
	for _, k := range []string{"imag", "radio", "scan", "echo", "irm", "mri"} {
		if strings.Contains(cat, k) {
			return true
		}
	}
	return false
}
