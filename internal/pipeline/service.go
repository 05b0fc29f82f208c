package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"consultdoc/internal/bundle"
	"consultdoc/internal/clinical"
	"consultdoc/internal/document"
	"consultdoc/internal/generation"
	"consultdoc/internal/intake"
	"consultdoc/internal/knowledge"
	"consultdoc/internal/llm"
	"consultdoc/internal/prescription"
	"consultdoc/internal/prompt"
	"consultdoc/internal/safety"
	"consultdoc/internal/storage"
	"consultdoc/internal/validate"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Deps wires the pipeline. Generator may be nil (offline); Archive may be nil.
type Deps struct {
	Tables          *knowledge.Tables
	Generator       llm.Generator
	Generation      generation.Config
	MaxOutputTokens int
	Temperature     float32
	Practice        document.Practice
	Archive         storage.Archive
	Logger          zerolog.Logger
}

type Options struct {
	RequestID  string
	Simplified bool
	// Policy overrides the configured exhaustion policy for this request.
	Policy generation.Policy
}

type Result struct {
	Document *document.Document
	Report   *Report
}

type Service struct {
	tables       *knowledge.Tables
	extractor    *prescription.Extractor
	safety       *safety.Engine
	prompts      *prompt.Builder
	orchestrator *generation.Orchestrator
	assembler    *document.Assembler
	archive      storage.Archive
	generator    string
	maxTokens    int
	temperature  float32
	logger       zerolog.Logger
}

func New(d Deps) *Service {
	tables := d.Tables
	if tables == nil {
		tables = knowledge.MustDefault()
	}
	name := llm.ProviderNone
	if d.Generator != nil {
		name = d.Generator.Name()
	}
	return &Service{
		tables:       tables,
		extractor:    prescription.NewExtractor(tables),
		safety:       safety.NewEngine(tables),
		prompts:      prompt.NewBuilder(tables),
		orchestrator: generation.New(d.Generator, d.Generation, d.Logger),
		assembler:    document.NewAssembler(d.Practice),
		archive:      d.Archive,
		generator:    name,
		maxTokens:    d.MaxOutputTokens,
		temperature:  d.Temperature,
		logger:       d.Logger,
	}
}

// WithClock fixes document dates, for reproducible output.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.assembler = s.assembler.WithClock(now)
	return &cp
}

func (s *Service) Tables() *knowledge.Tables { return s.tables }
func (s *Service) Generator() string         { return s.generator }
func (s *Service) Policy() generation.Policy { return s.orchestrator.Policy() }
func (s *Service) Archive() storage.Archive  { return s.archive }

// Generate runs one request end to end. It fails only on invalid input, or when
// generation cannot succeed under the fail policy.
func (s *Service) Generate(ctx context.Context, b bundle.Bundle, opts Options) (*Result, error) {
	reqID := opts.RequestID
	if reqID == "" {
		reqID = uuid.NewString()
	}
	log := s.logger.With().Str("request_id", reqID).Logger()
	report := NewReport(reqID)

	h := report.BeginStage("normalize")
	if err := intake.Validate(b); err != nil {
		report.EndStage(h, "rejected", nil, nil, err)
		log.Warn().Err(err).Msg("Rejected intake bundle")
		return nil, err
	}
	record := intake.Normalize(b)
	report.EndStage(h, "ok", map[string]float64{
		"allergies": float64(len(record.Patient.Allergies)),
		"age":       float64(record.Patient.Age),
	}, nil, nil)

	h = report.BeginStage("extract")
	extracted := s.extractor.Extract(b, record.Diagnosis.Primary)
	rx := extracted.Prescriptions
	report.EndStage(h, "ok", map[string]float64{
		"medications":   float64(len(rx.Medications)),
		"lab_exams":     float64(len(rx.LabExams)),
		"imaging_exams": float64(len(rx.ImagingExams)),
	}, extractionNotes(extracted.Report), nil)
	for _, cat := range extracted.Report.Synthesized {
		report.AddSignal(SignalSynthesized, "extract", clinical.SeverityInfo,
			fmt.Sprintf("no %s found in input; synthesized from diagnosis %q", cat, record.Diagnosis.Primary), 0)
	}

	h = report.BeginStage("enrich")
	rx = s.safety.Enrich(rx, record.Patient, record.Diagnosis.Primary)
	flags := rx.Flags()
	for _, f := range flags {
		switch f.Kind {
		case clinical.AllergyConflict:
			report.AddSignal(SignalAllergyConflict, "enrich", f.Severity, f.Message, 0)
			log.Warn().Str("item", f.Item).Msg("Allergy conflict on prescribed medication")
		case clinical.AgeDoseAdjustment:
			report.AddSignal(SignalAgeAdjustment, "enrich", f.Severity, f.Message, 0)
		}
	}
	report.EndStage(h, "ok", map[string]float64{"flags": float64(len(flags))}, nil, nil)

	h = report.BeginStage("prompt")
	p, err := s.prompts.Build(prompt.Input{Record: record, Prescriptions: rx, Simplified: opts.Simplified})
	if err != nil {
		report.EndStage(h, "error", nil, nil, err)
		return nil, err
	}
	report.EndStage(h, "ok", map[string]float64{"user_chars": float64(len(p.User))}, nil, nil)

	h = report.BeginStage("generate")
	orch := s.orchestrator
	if opts.Policy != "" {
		orch = orch.WithPolicy(opts.Policy)
	}
	var payload *validate.Payload
	accept := func(raw string) error {
		parsed, err := validate.Parse(raw)
		if err != nil {
			return generation.Transient(err)
		}
		payload = parsed
		return nil
	}
	outcome, genErr := orch.Run(ctx, llm.Request{
		System:          p.System,
		User:            p.User,
		MaxOutputTokens: s.maxTokens,
		Temperature:     s.temperature,
	}, accept)
	for _, t := range outcome.Transitions {
		report.Transitions = append(report.Transitions, fmt.Sprintf("%s->%s#%d", t.From, t.To, t.Attempt))
	}
	if genErr != nil {
		report.EndStage(h, "failed", map[string]float64{"attempts": float64(outcome.Attempts)}, nil, genErr)
		log.Error().Err(genErr).Int("attempts", outcome.Attempts).Msg("Generation failed")
		return nil, genErr
	}
	status := "ok"
	if outcome.UsedFallback {
		status = "fallback"
		msg := "generator unavailable; deterministic document produced"
		if outcome.LastError != nil {
			msg = fmt.Sprintf("generation failed after %d attempts: %v", outcome.Attempts, outcome.LastError)
		}
		report.AddSignal(SignalFallback, "generate", clinical.SeverityWarning, msg, float64(outcome.Attempts))
	}
	report.EndStage(h, status, map[string]float64{"attempts": float64(outcome.Attempts)}, nil, nil)

	h = report.BeginStage("repair")
	var sections []clinical.Section
	var repairs []document.Repair
	if outcome.UsedFallback || payload == nil {
		sections = validate.FallbackSections()
	} else {
		repaired := validate.RepairSections(payload)
		sections = repaired.Sections
		for _, r := range repaired.Repairs {
			repairs = append(repairs, document.Repair{Section: r.Section, Reason: r.Reason})
		}
		if len(repaired.Repairs) > 0 {
			report.AddSignal(SignalPlaceholder, "repair", clinical.SeverityWarning,
				fmt.Sprintf("%d section(s) replaced with default text", len(repaired.Repairs)), float64(len(repaired.Repairs)))
		}
		if repaired.DiscardedPrescriptions {
			report.AddSignal(SignalPrescriptionsCut, "repair", clinical.SeverityInfo,
				"generator returned prescriptions; they were ignored", 0)
		}
	}
	report.EndStage(h, "ok", map[string]float64{"repairs": float64(len(repairs))}, nil, nil)

	h = report.BeginStage("assemble")
	doc := s.assembler.Assemble(document.Input{
		ID:            uuid.NewString(),
		RequestID:     reqID,
		Record:        record,
		Prescriptions: rx,
		Sections:      sections,
		Repairs:       repairs,
		Synthesized:   extracted.Report.Synthesized,
		Simplified:    opts.Simplified,
		Attempts:      outcome.Attempts,
		UsedFallback:  outcome.UsedFallback,
		Generator:     s.generator,
		TablesVersion: s.tables.Version,
	})
	repairBySection := map[string]string{}
	for _, r := range doc.Metadata.RepairedSections {
		repairBySection[r.Section] = r.Reason
	}
	for _, sec := range doc.Sections {
		report.AddSection(SectionMetric{
			Key:    sec.Key,
			Origin: string(sec.Origin),
			Words:  len(strings.Fields(sec.Text)),
			Repair: repairBySection[sec.Key],
		})
	}
	report.EndStage(h, "ok", map[string]float64{
		"word_count": float64(doc.Metadata.WordCount),
		"size":       float64(doc.Metadata.Size),
		"alerts":     float64(len(doc.Alerts)),
	}, nil, nil)
	report.Finalize()

	s.archiveDocument(ctx, doc, record, report, log)

	log.Info().
		Str("document_id", doc.ID).
		Bool("used_fallback", doc.Metadata.UsedFallback).
		Int("attempts", doc.Metadata.Attempts).
		Int("alerts", len(doc.Alerts)).
		Msg("Document generated")
	return &Result{Document: doc, Report: report}, nil
}

func (s *Service) archiveDocument(ctx context.Context, doc *document.Document, record clinical.Canonical, report *Report, log zerolog.Logger) {
	if s.archive == nil {
		return
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode document for archive")
		return
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode report for archive")
		return
	}
	rec := &storage.Record{
		ID:           doc.ID,
		RequestID:    doc.Metadata.RequestID,
		PatientName:  record.Patient.FullName,
		Diagnosis:    record.Diagnosis.Primary,
		UsedFallback: doc.Metadata.UsedFallback,
		HasConflict:  doc.HasConflict(),
		CreatedAt:    time.Now(),
		Document:     docJSON,
		Report:       reportJSON,
	}
	// The document is already complete; archive failures are logged, not returned.
	if err := s.archive.SaveDocument(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to archive document")
	}
}

func extractionNotes(r prescription.Report) []string {
	var notes []string
	for _, st := range r.Stages {
		for cat, stats := range st.Stats {
			if stats.Found == 0 {
				continue
			}
			notes = append(notes, fmt.Sprintf("%s/%s: found=%d added=%d duplicates=%d",
				st.Adapter, cat, stats.Found, stats.Added, stats.Skipped))
		}
	}
	sort.Strings(notes)
	return notes
}
