package pipeline

import (
	"sort"
	"strings"
	"time"

	"consultdoc/internal/clinical"
)

// Signal codes.
const (
	SignalAllergyConflict  = "allergy_conflict"
	SignalAgeAdjustment    = "age_dose_adjustment"
	SignalFallback         = "generation_fallback"
	SignalPlaceholder      = "placeholder_repaired"
	SignalSynthesized      = "prescriptions_synthesized"
	SignalPrescriptionsCut = "generator_prescriptions_discarded"
)

type ReportSignal struct {
	Code     string  `json:"code"`
	Stage    string  `json:"stage"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Value    float64 `json:"value,omitempty"`
}

type StageMetric struct {
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartedAt  string             `json:"started_at"`
	FinishedAt string             `json:"finished_at"`
	DurationMS int64              `json:"duration_ms"`
	Counters   map[string]float64 `json:"counters,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type SectionMetric struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
	Words  int    `json:"words"`
	Repair string `json:"repair,omitempty"`
}

type ReportSummary struct {
	StageCount        int            `json:"stage_count"`
	FailedStages      int            `json:"failed_stages"`
	RepairedSections  int            `json:"repaired_sections"`
	GeneratorQuality  float64        `json:"generator_quality"`
	SignalsBySeverity map[string]int `json:"signals_by_severity"`
}

// Report is the per-request diagnostic trail.
type Report struct {
	Version     string          `json:"version"`
	RequestID   string          `json:"request_id"`
	GeneratedAt string          `json:"generated_at"`
	Stages      []StageMetric   `json:"stages"`
	Sections    []SectionMetric `json:"sections,omitempty"`
	Signals     []ReportSignal  `json:"signals,omitempty"`
	Transitions []string        `json:"transitions,omitempty"`
	Summary     ReportSummary   `json:"summary"`
}

type StageHandle struct {
	name    string
	started time.Time
}

func NewReport(requestID string) *Report {
	return &Report{
		Version:     "v1",
		RequestID:   requestID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Stages:      []StageMetric{},
		Signals:     []ReportSignal{},
	}
}

func (r *Report) BeginStage(name string) StageHandle {
	return StageHandle{name: strings.TrimSpace(name), started: time.Now().UTC()}
}

func (r *Report) EndStage(h StageHandle, status string, counters map[string]float64, notes []string, err error) {
	if r == nil || strings.TrimSpace(h.name) == "" {
		return
	}
	if strings.TrimSpace(status) == "" {
		status = "ok"
	}
	finished := time.Now().UTC()
	m := StageMetric{
		Name:       h.name,
		Status:     status,
		StartedAt:  h.started.Format(time.RFC3339Nano),
		FinishedAt: finished.Format(time.RFC3339Nano),
		DurationMS: finished.Sub(h.started).Milliseconds(),
	}
	for k, v := range counters {
		if k = strings.TrimSpace(k); k != "" {
			if m.Counters == nil {
				m.Counters = make(map[string]float64, len(counters))
			}
			m.Counters[k] = v
		}
	}
	for _, n := range notes {
		if n = strings.TrimSpace(n); n != "" {
			m.Notes = append(m.Notes, n)
		}
	}
	if err != nil {
		m.Error = err.Error()
		if status == "ok" {
			m.Status = "error"
		}
	}
	r.Stages = append(r.Stages, m)
}

func (r *Report) AddSignal(code, stage string, severity clinical.Severity, message string, value float64) {
	if r == nil {
		return
	}
	s := ReportSignal{
		Code:     strings.TrimSpace(code),
		Stage:    strings.TrimSpace(stage),
		Severity: strings.ToLower(strings.TrimSpace(string(severity))),
		Message:  strings.TrimSpace(message),
		Value:    value,
	}
	if s.Code == "" || s.Stage == "" || s.Severity == "" || s.Message == "" {
		return
	}
	r.Signals = append(r.Signals, s)
}

func (r *Report) AddSection(m SectionMetric) {
	if r == nil || strings.TrimSpace(m.Key) == "" {
		return
	}
	r.Sections = append(r.Sections, m)
}

// Finalize sorts signals by severity and computes the summary.
func (r *Report) Finalize() {
	if r == nil {
		return
	}
	r.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	severityCount := map[string]int{
		string(clinical.SeverityCritical): 0,
		string(clinical.SeverityWarning):  0,
		string(clinical.SeverityInfo):     0,
	}
	sort.SliceStable(r.Signals, func(i, j int) bool {
		pi := clinical.Severity(r.Signals[i].Severity).Rank()
		pj := clinical.Severity(r.Signals[j].Severity).Rank()
		if pi == pj {
			if r.Signals[i].Stage == r.Signals[j].Stage {
				return r.Signals[i].Code < r.Signals[j].Code
			}
			return r.Signals[i].Stage < r.Signals[j].Stage
		}
		return pi > pj
	})
	for _, s := range r.Signals {
		severityCount[s.Severity]++
	}

	failed := 0
	for _, st := range r.Stages {
		switch st.Status {
		case "error", "failed", "rejected":
			failed++
		}
	}

	repaired := 0
	generated := 0
	for _, sec := range r.Sections {
		if sec.Repair != "" {
			repaired++
		}
		if sec.Origin == string(clinical.OriginGenerated) {
			generated++
		}
	}
	quality := 0.0
	if len(r.Sections) > 0 {
		quality = float64(generated) / float64(len(r.Sections))
	}

	r.Summary = ReportSummary{
		StageCount:        len(r.Stages),
		FailedStages:      failed,
		RepairedSections:  repaired,
		GeneratorQuality:  quality,
		SignalsBySeverity: severityCount,
	}
}
