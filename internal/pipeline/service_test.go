package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"consultdoc/internal/bundle"
	"consultdoc/internal/clinical"
	"consultdoc/internal/generation"
	"consultdoc/internal/intake"
	"consultdoc/internal/llm"
	"consultdoc/internal/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	calls   int
	answers []string
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i < len(g.answers) {
		return g.answers[i], nil
	}
	return "", errors.New("upstream unavailable")
}

// stallingGenerator answers only when its context ends.
type stallingGenerator struct{}

func (stallingGenerator) Name() string { return "stalling" }

func (stallingGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newService(t *testing.T, gen llm.Generator, policy generation.Policy, archive storage.Archive) *Service {
	t.Helper()
	svc := New(Deps{
		Generator: gen,
		Generation: generation.Config{
			MaxAttempts: 3,
			Backoff:     generation.ExponentialBackoff{},
			Policy:      policy,
		},
		Archive: archive,
		Logger:  zerolog.Nop(),
	})
	return svc.WithClock(func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) })
}

func elderlyBronchitis(t *testing.T, allergies string) bundle.Bundle {
	t.Helper()
	b, err := bundle.Decode([]byte(`{
		"patientData": {"firstName": "Jeanne", "lastName": "Martin", "age": 70, "allergies": ` + allergies + `},
		"clinicalData": {"chiefComplaint": "Toux productive depuis 5 jours", "symptoms": ["toux", "fièvre"]},
		"diagnosisData": {"primaryDiagnosis": {"condition": "bronchite aiguë"}}
	}`))
	require.NoError(t, err)
	return b
}

func medicationNames(meds []clinical.Medication) []string {
	out := make([]string, 0, len(meds))
	for _, m := range meds {
		out = append(out, m.Name)
	}
	return out
}

func hasFlag(m clinical.Medication, kind clinical.FlagKind) bool {
	for _, f := range m.Flags {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

func signalCodes(r *Report) []string {
	var out []string
	for _, s := range r.Signals {
		out = append(out, s.Code)
	}
	return out
}

func TestGenerate_ExhaustedGeneratorFallsBackWithSynthesizedPrescriptions(t *testing.T) {
	gen := &scriptedGenerator{}
	svc := newService(t, gen, generation.PolicyFallback, nil)

	res, err := svc.Generate(context.Background(), elderlyBronchitis(t, `["Aucune"]`), Options{RequestID: "req-1"})
	require.NoError(t, err)
	doc := res.Document

	assert.Equal(t, 3, gen.calls)
	assert.True(t, doc.Metadata.UsedFallback)
	assert.Equal(t, 3, doc.Metadata.Attempts)
	assert.Equal(t, "req-1", doc.Metadata.RequestID)
	assert.NotEmpty(t, doc.ID)

	meds := doc.Prescriptions.Medications
	assert.ElementsMatch(t, []string{"Amoxicilline 1g", "Paracétamol 1g"}, medicationNames(meds))
	for _, m := range meds {
		assert.True(t, hasFlag(m, clinical.AgeDoseAdjustment), m.Name)
		assert.False(t, hasFlag(m, clinical.AllergyConflict), m.Name)
		require.NotNil(t, m.AgeAdjustment, m.Name)
		assert.Equal(t, clinical.SourceSynthesized, m.Source)
	}
	assert.False(t, doc.HasConflict())
	assert.Contains(t, doc.Metadata.Synthesized, "medications")

	require.Len(t, doc.Sections, len(clinical.ReportSections))
	for _, sec := range doc.Sections {
		assert.Equal(t, clinical.OriginFallback, sec.Origin, sec.Key)
		assert.NotContains(t, sec.Text, clinical.PlaceholderPrefix)
	}

	codes := signalCodes(res.Report)
	assert.Contains(t, codes, SignalFallback)
	assert.Contains(t, codes, SignalAgeAdjustment)
	assert.Contains(t, codes, SignalSynthesized)
	assert.NotContains(t, codes, SignalAllergyConflict)
	assert.NotEmpty(t, res.Report.Transitions)
}

func TestGenerate_StrictPolicyReturnsExhausted(t *testing.T) {
	svc := newService(t, &scriptedGenerator{}, generation.PolicyFallback, nil)

	_, err := svc.Generate(context.Background(), elderlyBronchitis(t, `[]`), Options{Policy: generation.PolicyFail})
	var exhausted *generation.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestGenerate_DeadlineDuringGenerationFallsBack(t *testing.T) {
	svc := newService(t, stallingGenerator{}, generation.PolicyFallback, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := svc.Generate(ctx, elderlyBronchitis(t, `[]`), Options{})
	require.NoError(t, err)
	assert.True(t, res.Document.Metadata.UsedFallback)
	assert.Less(t, res.Document.Metadata.Attempts, 3)
	assert.Contains(t, signalCodes(res.Report), SignalFallback)
	assert.Equal(t, 0, res.Report.Summary.FailedStages)
	for _, sec := range res.Document.Sections {
		assert.Equal(t, clinical.OriginFallback, sec.Origin, sec.Key)
	}
}

func TestGenerate_DeadlineDuringGenerationFailsUnderStrictPolicy(t *testing.T) {
	svc := newService(t, stallingGenerator{}, generation.PolicyFail, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Generate(ctx, elderlyBronchitis(t, `[]`), Options{})
	var timeout *generation.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, timeout.Attempts, 3)
}

func TestGenerate_RejectsIncompleteBundle(t *testing.T) {
	svc := newService(t, nil, generation.PolicyFallback, nil)
	b, err := bundle.Decode([]byte(`{"patientData": {"age": 40}}`))
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), b, Options{})
	var invalid *intake.InputValidationError
	require.ErrorAs(t, err, &invalid)
	assert.ElementsMatch(t, []string{"clinicalData", "diagnosisData"}, invalid.Missing)
}

func TestGenerate_RepairsPlaceholderAndIgnoresGeneratorPrescriptions(t *testing.T) {
	answer := "```json\n" + `{
		"sections": {
			"chiefComplaint": "Productive cough for five days with low grade fever.",
			"history": "Hypertension under treatment. No recent hospitalisation.",
			"clinicalExamination": "GENERATE_PARAGRAPH_150_200_WORDS",
			"diagnosticAssessment": "Clinical picture consistent with acute bronchitis.",
			"managementPlan": "Symptomatic treatment with the listed prescriptions.",
			"followUp": 42
		},
		"prescriptions": {"medications": [{"name": "Ciprofloxacine"}]}
	}` + "\n```"
	gen := &scriptedGenerator{answers: []string{"sorry, no json here", answer}}
	svc := newService(t, gen, generation.PolicyFallback, nil)

	res, err := svc.Generate(context.Background(), elderlyBronchitis(t, `[]`), Options{})
	require.NoError(t, err)
	doc := res.Document

	assert.False(t, doc.Metadata.UsedFallback)
	assert.Equal(t, 2, doc.Metadata.Attempts)
	assert.NotContains(t, medicationNames(doc.Prescriptions.Medications), "Ciprofloxacine")

	origins := map[string]clinical.Origin{}
	for _, sec := range doc.Sections {
		origins[sec.Key] = sec.Origin
	}
	assert.Equal(t, clinical.OriginGenerated, origins["chiefComplaint"])
	assert.Equal(t, clinical.OriginDefault, origins["clinicalExamination"])
	assert.Equal(t, clinical.OriginDefault, origins["followUp"])
	assert.Len(t, doc.Metadata.RepairedSections, 2)

	codes := signalCodes(res.Report)
	assert.Contains(t, codes, SignalPlaceholder)
	assert.Contains(t, codes, SignalPrescriptionsCut)
}

func TestGenerate_AllergyConflictIsArchived(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := newService(t, nil, generation.PolicyFallback, store)
	res, err := svc.Generate(context.Background(), elderlyBronchitis(t, `["Amoxicilline"]`), Options{})
	require.NoError(t, err)

	doc := res.Document
	assert.True(t, doc.HasConflict())
	require.NotEmpty(t, doc.Alerts)
	assert.Equal(t, clinical.SeverityCritical, doc.Alerts[0].Severity)
	assert.Equal(t, 0, doc.Metadata.Attempts)
	assert.Equal(t, llm.ProviderNone, doc.Metadata.Generator)

	rec, err := store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, rec.HasConflict)
	assert.True(t, rec.UsedFallback)
	assert.Equal(t, "Jeanne Martin", rec.PatientName)

	var archived struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Document, &archived))
	assert.Equal(t, doc.ID, archived.ID)
	assert.Contains(t, string(rec.Report), SignalAllergyConflict)
}
