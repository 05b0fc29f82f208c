package prompt

import (
	"testing"

	"consultdoc/internal/clinical"
	"consultdoc/internal/knowledge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder(knowledge.MustDefault())
	in := Input{
		Record: clinical.Canonical{
			Patient:   clinical.PatientRecord{FullName: "Jeanne Martin", Age: 70},
			Diagnosis: clinical.DiagnosisSummary{Primary: "Bronchite aiguë"},
		},
		Prescriptions: clinical.Prescriptions{
			Medications: []clinical.Medication{{
				Name:     "Amoxicilline 1g",
				Quantity: "1 box",
				Flags: []clinical.SafetyFlag{{
					Kind: clinical.AgeDoseAdjustment, Severity: clinical.SeverityWarning,
					Item: "Amoxicilline 1g", Message: "Patient aged 70: consider a dose reduction",
				}},
			}},
		},
	}

	p, err := b.Build(in)
	require.NoError(t, err)

	assert.Contains(t, p.System, "single JSON object")
	assert.Contains(t, p.User, "Jeanne Martin")
	assert.Contains(t, p.User, "Anthonisen criteria")
	assert.Contains(t, p.User, "[WARNING] Patient aged 70")
	assert.Contains(t, p.User, `"quantity": "1 box"`)
	for _, s := range clinical.ReportSections {
		assert.Contains(t, p.User, s.Marker)
		assert.Contains(t, p.User, `"`+s.Key+`"`)
	}
}

func TestTemplate_HasEverySection(t *testing.T) {
	sections := Template()["sections"].(map[string]string)
	assert.Len(t, sections, len(clinical.ReportSections))
	for _, v := range sections {
		assert.True(t, clinical.HasPlaceholder(v))
	}
}
