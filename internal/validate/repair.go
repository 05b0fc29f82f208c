package validate

import (
	"strings"

	"consultdoc/internal/clinical"
	"consultdoc/internal/prompt"
)

// Repair reasons.
const (
	ReasonMissing     = "missing"
	ReasonNotString   = "not_string"
	ReasonEmpty       = "empty"
	ReasonPlaceholder = "placeholder"
)

type RepairRecord struct {
	Section string `json:"section"`
	Reason  string `json:"reason"`
}

type Repaired struct {
	Sections []clinical.Section
	Repairs  []RepairRecord
	// DiscardedPrescriptions is set when the answer carried its own prescriptions.
	DiscardedPrescriptions bool
	QualityScore           float64
}

// RepairSections resolves every catalog section in order, substituting the
// fixed default for missing, non-string, empty or placeholder text. A section
// that repeats a fixed prompt line counts as a placeholder.
func RepairSections(p *Payload) Repaired {
	out := Repaired{DiscardedPrescriptions: p != nil && p.HadPrescriptions}
	total := 0.0
	for _, spec := range clinical.ReportSections {
		var raw any
		var present bool
		if p != nil {
			raw, present = p.Sections[spec.Key]
		}

		text, reason := assess(raw, present)
		sec := clinical.Section{Key: spec.Key, Title: spec.Title, Text: text, Origin: clinical.OriginGenerated}
		if reason != "" {
			sec.Text = spec.DefaultText
			sec.Origin = clinical.OriginDefault
			out.Repairs = append(out.Repairs, RepairRecord{Section: spec.Key, Reason: reason})
		} else {
			total += 1
		}
		out.Sections = append(out.Sections, sec)
	}
	if n := len(clinical.ReportSections); n > 0 {
		out.QualityScore = total / float64(n)
	}
	return out
}

// FallbackSections returns the default text for every section.
func FallbackSections() []clinical.Section {
	out := make([]clinical.Section, 0, len(clinical.ReportSections))
	for _, spec := range clinical.ReportSections {
		out = append(out, clinical.Section{
			Key:    spec.Key,
			Title:  spec.Title,
			Text:   spec.DefaultText,
			Origin: clinical.OriginFallback,
		})
	}
	return out
}

func assess(raw any, present bool) (string, string) {
	if !present || raw == nil {
		return "", ReasonMissing
	}
	s, ok := raw.(string)
	if !ok {
		return "", ReasonNotString
	}
	if clinical.HasPlaceholder(s) || prompt.HasEcho(s) {
		return "", ReasonPlaceholder
	}
	text := strings.TrimSpace(s)
	if text == "" {
		return "", ReasonEmpty
	}
	return text, ""
}
