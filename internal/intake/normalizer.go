package intake

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"consultdoc/internal/bundle"
	"consultdoc/internal/clinical"
)

var (
	patientGroups   = []string{"patientData", "patient", "patient_data", "patientInfo"}
	clinicalGroups  = []string{"clinicalData", "clinical", "clinical_data", "consultationData"}
	diagnosisGroups = []string{"diagnosisData", "diagnosis", "diagnosis_data", "aiDiagnosis"}
	vitalGroups     = bundle.Paths(clinicalGroups, "vitalSigns", "vitals", "vital_signs")
)

// noneAllergies are entries meaning "no known allergy" rather than an allergen.
var noneAllergies = map[string]bool{
	"aucune": true, "aucun": true, "none": true, "nkda": true, "néant": true, "neant": true,
	"ras": true, "no": true, "non": true, "n/a": true, clinical.Unspecified: true,
}

// InputValidationError reports required groups absent under every alias.
type InputValidationError struct {
	Missing []string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("missing required input: %s", strings.Join(e.Missing, ", "))
}

// Validate checks that patient, clinical and diagnosis data are present.
func Validate(b bundle.Bundle) error {
	var missing []string
	if _, ok := b.FirstMap(patientGroups...); !ok {
		missing = append(missing, "patientData")
	}
	if _, ok := b.FirstMap(clinicalGroups...); !ok {
		missing = append(missing, "clinicalData")
	}
	if _, ok := b.FirstMap(diagnosisGroups...); !ok {
		missing = append(missing, "diagnosisData")
	}
	if len(missing) > 0 {
		return &InputValidationError{Missing: missing}
	}
	return nil
}

// Normalize resolves every canonical field from its alias chain. It never fails.
func Normalize(b bundle.Bundle) clinical.Canonical {
	return clinical.Canonical{
		Patient:   normalizePatient(b),
		Clinical:  normalizeClinical(b),
		Diagnosis: normalizeDiagnosis(b),
	}
}

func str(b bundle.Bundle, groups []string, fields ...string) string {
	if s, ok := b.FirstString(bundle.Paths(groups, fields...)...); ok {
		return s
	}
	return clinical.Unspecified
}

func list(b bundle.Bundle, groups []string, fields ...string) []string {
	l, _ := b.FirstList(bundle.Paths(groups, fields...)...)
	return uniqueFold(l)
}

func normalizePatient(b bundle.Bundle) clinical.PatientRecord {
	p := clinical.PatientRecord{
		FirstName: str(b, patientGroups, "firstName", "first_name", "prenom", "prénom", "givenName"),
		LastName:  str(b, patientGroups, "lastName", "last_name", "nom", "familyName", "surname"),
		Sex:       str(b, patientGroups, "sex", "gender", "sexe"),
		BirthDate: str(b, patientGroups, "birthDate", "birth_date", "dateOfBirth", "dateNaissance", "dob"),
		Phone:     str(b, patientGroups, "phone", "phoneNumber", "telephone", "téléphone"),
		Email:     str(b, patientGroups, "email", "mail"),
		Address:   str(b, patientGroups, "address", "adresse"),
		Weight:    str(b, patientGroups, "weight", "poids"),
		Height:    str(b, patientGroups, "height", "taille"),
		AgeText:   str(b, patientGroups, "age", "âge", "patientAge"),
	}
	p.FullName = str(b, patientGroups, "fullName", "full_name", "name", "nomComplet")
	if p.FullName == clinical.Unspecified {
		var parts []string
		for _, s := range []string{p.FirstName, p.LastName} {
			if s != clinical.Unspecified {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			p.FullName = strings.Join(parts, " ")
		}
	}
	p.Age = leadingInt(p.AgeText)

	allergies := list(b, patientGroups, "allergies", "allergy", "allergiesList", "knownAllergies")
	p.Allergies = make([]string, 0, len(allergies))
	for _, a := range allergies {
		if noneAllergies[strings.ToLower(a)] {
			continue
		}
		p.Allergies = append(p.Allergies, a)
	}
	p.History = list(b, patientGroups, "medicalHistory", "history", "antecedents", "antécédents", "pastMedicalHistory")
	p.CurrentMedications = list(b, patientGroups, "currentMedications", "current_medications", "medications", "traitementActuel")
	return p
}

func normalizeClinical(b bundle.Bundle) clinical.ClinicalObservation {
	vital := func(fields ...string) string {
		if s, ok := b.FirstString(bundle.Paths(vitalGroups, fields...)...); ok {
			return s
		}
		return clinical.Unspecified
	}
	return clinical.ClinicalObservation{
		ChiefComplaint:  str(b, clinicalGroups, "chiefComplaint", "chief_complaint", "motifConsultation", "reason"),
		Symptoms:        list(b, clinicalGroups, "symptoms", "symptomes", "symptômes"),
		SymptomDuration: str(b, clinicalGroups, "symptomDuration", "symptom_duration", "duration", "dureeSymptomes"),
		PhysicalExam:    str(b, clinicalGroups, "physicalExam", "physical_exam", "examenClinique"),
		PainScale:       str(b, clinicalGroups, "painScale", "pain_scale", "douleur"),
		Vitals: clinical.VitalSigns{
			Temperature:      vital("temperature", "temp"),
			BloodPressure:    vital("bloodPressure", "blood_pressure", "tension", "bp"),
			HeartRate:        vital("heartRate", "heart_rate", "pulse", "fc"),
			RespiratoryRate:  vital("respiratoryRate", "respiratory_rate", "fr"),
			OxygenSaturation: vital("oxygenSaturation", "oxygen_saturation", "spo2", "saturation"),
		},
	}
}

func normalizeDiagnosis(b bundle.Bundle) clinical.DiagnosisSummary {
	return clinical.DiagnosisSummary{
		Primary: str(b, diagnosisGroups,
			"primaryDiagnosis", "primary_diagnosis", "diagnosis", "diagnostic",
			"expertAnalysis.primaryDiagnosis", "clinicalAnalysis.primaryDiagnosis"),
		ICDCode: str(b, diagnosisGroups,
			"icdCode", "icd10", "icd_code", "primaryDiagnosis.icd10", "primaryDiagnosis.icdCode",
			"clinicalAnalysis.primaryDiagnosis.icd10"),
		Confidence: str(b, diagnosisGroups,
			"confidence", "confidenceLevel", "primaryDiagnosis.confidence",
			"clinicalAnalysis.primaryDiagnosis.confidence"),
		Differential: list(b, diagnosisGroups,
			"differential", "differentialDiagnoses", "differential_diagnosis",
			"clinicalAnalysis.differentialDiagnoses"),
		Reasoning: str(b, diagnosisGroups,
			"clinicalReasoning", "clinical_reasoning", "reasoning", "primaryDiagnosis.reasoning"),
		FollowUp: str(b, diagnosisGroups,
			"followUp", "follow_up", "recommendedFollowUp", "suivi", "expertAnalysis.followUp"),
	}
}

// leadingInt parses the first run of digits ("70 ans" -> 70); 0 when none.
func leadingInt(s string) int {
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0
	}
	return n
}

func uniqueFold(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		k := strings.ToLower(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
