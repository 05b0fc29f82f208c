package clinical

import (
	"sort"
	"strings"
)

type FlagKind string

const (
	AllergyConflict   FlagKind = "AllergyConflict"
	AgeDoseAdjustment FlagKind = "AgeDoseAdjustment"
	RenewalEligible   FlagKind = "RenewalEligible"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities, highest first when sorted descending.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	default:
		return 1
	}
}

type SafetyFlag struct {
	Kind     FlagKind `json:"kind"`
	Severity Severity `json:"severity"`
	Item     string   `json:"item"`
	Message  string   `json:"message"`
}

// SortFlags orders flags by severity, then kind, then item, keeping output stable.
func SortFlags(flags []SafetyFlag) {
	sort.SliceStable(flags, func(i, j int) bool {
		ri, rj := flags[i].Severity.Rank(), flags[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		if flags[i].Kind != flags[j].Kind {
			return flags[i].Kind < flags[j].Kind
		}
		return flags[i].Item < flags[j].Item
	})
}

// Source records where an item came from.
type Source string

const (
	SourceEdited      Source = "edited"
	SourceDiagnosis   Source = "diagnosis"
	SourceCompleted   Source = "completeData"
	SourceSynthesized Source = "synthesized"
)

type AgeAdjustment struct {
	ReductionMin int    `json:"reductionMinPercent"`
	ReductionMax int    `json:"reductionMaxPercent"`
	Note         string `json:"note"`
}

type Medication struct {
	Name            string         `json:"name"`
	Dosage          string         `json:"dosage"`
	Frequency       string         `json:"frequency"`
	Duration        string         `json:"duration"`
	Instructions    string         `json:"instructions"`
	Quantity        string         `json:"quantity,omitempty"`
	DCI             string         `json:"dci,omitempty"`
	Form            string         `json:"form,omitempty"`
	AllergyFlag     bool           `json:"allergyFlag"`
	AgeAdjustment   *AgeAdjustment `json:"ageAdjustment,omitempty"`
	RenewalEligible bool           `json:"renewalEligible"`
	Flags           []SafetyFlag   `json:"flags,omitempty"`
	Source          Source         `json:"source"`
}

type LabExam struct {
	Name            string `json:"name"`
	Urgency         string `json:"urgency"`
	Justification   string `json:"justification"`
	Code            string `json:"code,omitempty"`
	FastingRequired bool   `json:"fastingRequired"`
	Source          Source `json:"source"`
}

type ImagingExam struct {
	Type             string `json:"type"`
	Region           string `json:"region"`
	Indication       string `json:"indication"`
	Urgency          string `json:"urgency"`
	ContrastRequired bool   `json:"contrastRequired"`
	Source           Source `json:"source"`
}

// Prescriptions is the per-category item set carried through the pipeline.
type Prescriptions struct {
	Medications  []Medication  `json:"medications"`
	LabExams     []LabExam     `json:"labExams"`
	ImagingExams []ImagingExam `json:"imagingExams"`
}

// Flags collects every medication flag, sorted by severity.
func (p Prescriptions) Flags() []SafetyFlag {
	var out []SafetyFlag
	for _, m := range p.Medications {
		out = append(out, m.Flags...)
	}
	SortFlags(out)
	return out
}

// DedupKey is the identity used for per-category uniqueness.
func DedupKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
