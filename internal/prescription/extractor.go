package prescription

import (
	"consultdoc/internal/bundle"
	"consultdoc/internal/clinical"
	"consultdoc/internal/knowledge"
)

// Synthesis caps per category.
const (
	MaxSynthesizedMedications = 3
	MaxSynthesizedLabExams    = 5
	MaxSynthesizedImaging     = 2
)

const (
	CategoryMedications = "medications"
	CategoryLabExams    = "labExams"
	CategoryImaging     = "imagingExams"
)

type AdapterStats struct {
	Found   int
	Added   int
	Skipped int
}

type StageResult struct {
	Adapter string
	Stats   map[string]AdapterStats
}

// Report describes where the final items came from.
type Report struct {
	Stages      []StageResult
	Synthesized []string
}

type Result struct {
	Prescriptions clinical.Prescriptions
	Report        Report
}

// Extractor runs the adapters in priority order, dedups, then synthesizes
// categories that stayed empty.
type Extractor struct {
	adapters []Adapter
	tables   *knowledge.Tables
}

func NewExtractor(tables *knowledge.Tables, adapters ...Adapter) *Extractor {
	if len(adapters) == 0 {
		adapters = DefaultAdapters()
	}
	return &Extractor{adapters: adapters, tables: tables}
}

// Extract never fails; in the worst case every list is empty.
func (e *Extractor) Extract(b bundle.Bundle, diagnosis string) Result {
	var (
		out  clinical.Prescriptions
		rep  Report
		meds = newSeen()
		labs = newSeen()
		imgs = newSeen()
	)
	out.Medications = []clinical.Medication{}
	out.LabExams = []clinical.LabExam{}
	out.ImagingExams = []clinical.ImagingExam{}

	for _, a := range e.adapters {
		found := a.Extract(b)
		src := a.Source()
		stage := StageResult{Adapter: a.Name(), Stats: map[string]AdapterStats{}}

		var st AdapterStats
		for _, m := range found.Medications {
			st.Found++
			name := clean(m.Name)
			if !meds.add(name) {
				st.Skipped++
				continue
			}
			st.Added++
			out.Medications = append(out.Medications, clinical.Medication{
				Name:         name,
				Dosage:       orDefault(m.Dosage, clinical.Unspecified),
				Frequency:    orDefault(m.Frequency, clinical.Unspecified),
				Duration:     orDefault(m.Duration, clinical.Unspecified),
				Instructions: m.Instructions,
				Source:       src,
			})
		}
		stage.Stats[CategoryMedications] = st

		st = AdapterStats{}
		for _, l := range found.LabExams {
			st.Found++
			name := clean(l.Name)
			if !labs.add(name) {
				st.Skipped++
				continue
			}
			st.Added++
			out.LabExams = append(out.LabExams, clinical.LabExam{
				Name:          name,
				Urgency:       orDefault(l.Urgency, "routine"),
				Justification: l.Justification,
				Source:        src,
			})
		}
		stage.Stats[CategoryLabExams] = st

		st = AdapterStats{}
		for _, i := range found.ImagingExams {
			st.Found++
			kind := clean(i.Type)
			if !imgs.add(kind) {
				st.Skipped++
				continue
			}
			st.Added++
			out.ImagingExams = append(out.ImagingExams, clinical.ImagingExam{
				Type:       kind,
				Region:     i.Region,
				Indication: i.Indication,
				Urgency:    orDefault(i.Urgency, "routine"),
				Source:     src,
			})
		}
		stage.Stats[CategoryImaging] = st
		rep.Stages = append(rep.Stages, stage)
	}

	e.synthesize(&out, &rep, diagnosis, meds, labs, imgs)
	return Result{Prescriptions: out, Report: rep}
}

func (e *Extractor) synthesize(out *clinical.Prescriptions, rep *Report, diagnosis string, meds, labs, imgs *seen) {
	if e.tables == nil {
		return
	}
	needMeds := len(out.Medications) == 0
	needLabs := len(out.LabExams) == 0
	needImgs := len(out.ImagingExams) == 0
	if !needMeds && !needLabs && !needImgs {
		return
	}

	for _, rule := range e.tables.MatchingRules(diagnosis) {
		if needMeds {
			for _, t := range rule.Medications {
				if len(out.Medications) >= MaxSynthesizedMedications {
					break
				}
				name := clean(t.Name)
				if !meds.add(name) {
					continue
				}
				out.Medications = append(out.Medications, clinical.Medication{
					Name:         name,
					Dosage:       t.Dosage,
					Frequency:    t.Frequency,
					Duration:     t.Duration,
					Instructions: t.Instructions,
					Source:       clinical.SourceSynthesized,
				})
			}
		}
		if needLabs {
			for _, t := range rule.LabExams {
				if len(out.LabExams) >= MaxSynthesizedLabExams {
					break
				}
				name := clean(t.Name)
				if !labs.add(name) {
					continue
				}
				out.LabExams = append(out.LabExams, clinical.LabExam{
					Name:          name,
					Urgency:       orDefault(t.Urgency, "routine"),
					Justification: t.Justification,
					Source:        clinical.SourceSynthesized,
				})
			}
		}
		if needImgs {
			for _, t := range rule.ImagingExams {
				if len(out.ImagingExams) >= MaxSynthesizedImaging {
					break
				}
				kind := clean(t.Type)
				if !imgs.add(kind) {
					continue
				}
				out.ImagingExams = append(out.ImagingExams, clinical.ImagingExam{
					Type:       kind,
					Region:     t.Region,
					Indication: t.Indication,
					Urgency:    orDefault(t.Urgency, "routine"),
					Source:     clinical.SourceSynthesized,
				})
			}
		}
	}

	if needMeds && len(out.Medications) > 0 {
		rep.Synthesized = append(rep.Synthesized, CategoryMedications)
	}
	if needLabs && len(out.LabExams) > 0 {
		rep.Synthesized = append(rep.Synthesized, CategoryLabExams)
	}
	if needImgs && len(out.ImagingExams) > 0 {
		rep.Synthesized = append(rep.Synthesized, CategoryImaging)
	}
}

type seen struct {
	keys map[string]bool
}

func newSeen() *seen {
	return &seen{keys: map[string]bool{}}
}

// add records name and reports whether it was new and non-empty. Callers pass
// the cleaned display name so the stored item and its key always agree.
func (s *seen) add(name string) bool {
	k := clinical.DedupKey(name)
	if k == "" || s.keys[k] {
		return false
	}
	s.keys[k] = true
	return true
}
