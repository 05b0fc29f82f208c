package intake

import (
	"errors"
	"testing"

	"consultdoc/internal/bundle"
	"consultdoc/internal/clinical"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBundle(t *testing.T) bundle.Bundle {
	t.Helper()
	b, err := bundle.Decode([]byte(`{
		"patientData": {
			"firstName": "Jeanne", "lastName": "Martin", "age": "70 ans", "gender": "F",
			"allergies": ["Aucune", "pénicilline", "Pénicilline"],
			"medicalHistory": "HTA; diabète type 2"
		},
		"clinicalData": {
			"chiefComplaint": "Toux productive",
			"symptoms": ["toux", "fièvre"],
			"vitalSigns": {"temperature": 38.4, "bloodPressure": "135/85"}
		},
		"diagnosisData": {
			"primaryDiagnosis": {"condition": "Bronchite aiguë", "icd10": "J20.9", "confidence": 0.8}
		}
	}`))
	require.NoError(t, err)
	return b
}

func TestNormalize_ResolvesAliasesAndDefaults(t *testing.T) {
	c := Normalize(sampleBundle(t))

	assert.Equal(t, "Jeanne Martin", c.Patient.FullName)
	assert.Equal(t, 70, c.Patient.Age)
	assert.Equal(t, "70 ans", c.Patient.AgeText)
	assert.Equal(t, "F", c.Patient.Sex)
	assert.Equal(t, []string{"pénicilline"}, c.Patient.Allergies)
	assert.Equal(t, []string{"HTA", "diabète type 2"}, c.Patient.History)
	assert.NotNil(t, c.Patient.CurrentMedications)
	assert.Empty(t, c.Patient.CurrentMedications)
	assert.Equal(t, clinical.Unspecified, c.Patient.Email)

	assert.Equal(t, "38.4", c.Clinical.Vitals.Temperature)
	assert.Equal(t, clinical.Unspecified, c.Clinical.Vitals.HeartRate)

	assert.Equal(t, "Bronchite aiguë", c.Diagnosis.Primary)
	assert.Equal(t, "J20.9", c.Diagnosis.ICDCode)
	assert.Equal(t, "0.8", c.Diagnosis.Confidence)
}

func TestNormalize_Idempotent(t *testing.T) {
	first := Normalize(sampleBundle(t))
	second := Normalize(first.Bundle())
	assert.Equal(t, first, second)

	third := Normalize(second.Bundle())
	assert.Equal(t, second, third)
}

func TestNormalize_AliasRenamingGivesSameRecord(t *testing.T) {
	a := bundle.Bundle{
		"patientData":   map[string]any{"firstName": "Ali", "age": 42.0, "allergies": "none"},
		"clinicalData":  map[string]any{"chiefComplaint": "Céphalées"},
		"diagnosisData": map[string]any{"primaryDiagnosis": "Migraine"},
	}
	b := bundle.Bundle{
		"diagnosis": map[string]any{"diagnostic": "Migraine"},
		"patient":   map[string]any{"allergies": []any{}, "âge": "42", "prenom": "Ali"},
		"clinical":  map[string]any{"motifConsultation": "Céphalées"},
	}
	assert.Equal(t, Normalize(a), Normalize(b))
}

func TestNormalize_EmptyBundleNeverFails(t *testing.T) {
	c := Normalize(bundle.Bundle{})
	assert.Equal(t, clinical.Unspecified, c.Patient.FullName)
	assert.Equal(t, 0, c.Patient.Age)
	assert.Equal(t, clinical.Unspecified, c.Diagnosis.Primary)
	assert.NotNil(t, c.Patient.Allergies)
}

func TestValidate_ReportsMissingGroups(t *testing.T) {
	err := Validate(bundle.Bundle{"patient": map[string]any{"firstName": "Ali"}})
	require.Error(t, err)

	var verr *InputValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"clinicalData", "diagnosisData"}, verr.Missing)

	assert.NoError(t, Validate(sampleBundle(t)))
}
