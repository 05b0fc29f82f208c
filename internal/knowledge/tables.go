package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

// Tables holds the read-only clinical lookup data. It is loaded once at start
// and shared by pointer; nothing mutates it after Load returns.
type Tables struct {
	Version           string            `yaml:"version"`
	Age               AgePolicy         `yaml:"age"`
	Brands            map[string]string `yaml:"brands"`
	Forms             FormTable         `yaml:"forms"`
	LabCodes          []LabCodeEntry    `yaml:"lab_codes"`
	FastingKeywords   []string          `yaml:"fasting_keywords"`
	ContrastKeywords  []string          `yaml:"contrast_keywords"`
	Regions           []RegionEntry     `yaml:"regions"`
	ChronicConditions []string          `yaml:"chronic_conditions"`
	Synthesis         []SynthesisRule   `yaml:"synthesis"`
	ClinicalScores    []ClinicalScore   `yaml:"clinical_scores"`

	brandIndex map[string]string
	formIndex  map[string]string
}

type AgePolicy struct {
	Threshold           int    `yaml:"threshold"`
	ReductionMinPercent int    `yaml:"reduction_min_percent"`
	ReductionMaxPercent int    `yaml:"reduction_max_percent"`
	Note                string `yaml:"note"`
}

type FormTable struct {
	Fallback string            `yaml:"fallback"`
	Keywords []FormKeyword     `yaml:"keywords"`
	Defaults map[string]string `yaml:"defaults"`
}

type FormKeyword struct {
	Form  string   `yaml:"form"`
	Match []string `yaml:"match"`
}

type LabCodeEntry struct {
	Code  string   `yaml:"code"`
	Match []string `yaml:"match"`
}

type RegionEntry struct {
	Region string   `yaml:"region"`
	Match  []string `yaml:"match"`
}

type MedicationTemplate struct {
	Name         string `yaml:"name"`
	Dosage       string `yaml:"dosage"`
	Frequency    string `yaml:"frequency"`
	Duration     string `yaml:"duration"`
	Instructions string `yaml:"instructions"`
}

type LabTemplate struct {
	Name          string `yaml:"name"`
	Urgency       string `yaml:"urgency"`
	Justification string `yaml:"justification"`
}

type ImagingTemplate struct {
	Type       string `yaml:"type"`
	Region     string `yaml:"region"`
	Indication string `yaml:"indication"`
	Urgency    string `yaml:"urgency"`
}

// SynthesisRule maps diagnosis keywords to the minimal items proposed when a
// category has no extracted entries.
type SynthesisRule struct {
	ID           string               `yaml:"id"`
	Match        []string             `yaml:"match"`
	Medications  []MedicationTemplate `yaml:"medications"`
	LabExams     []LabTemplate        `yaml:"lab_exams"`
	ImagingExams []ImagingTemplate    `yaml:"imaging_exams"`
}

type ClinicalScore struct {
	Name    string   `yaml:"name" json:"name"`
	Match   []string `yaml:"match" json:"-"`
	Purpose string   `yaml:"purpose" json:"purpose"`
}

// Load reads the tables from path, or the embedded defaults when path is empty.
func Load(path string) (*Tables, error) {
	data := defaultTables
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read knowledge tables: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// MustDefault returns the embedded tables and panics if they are malformed.
func MustDefault() *Tables {
	t, err := Parse(defaultTables)
	if err != nil {
		panic(err)
	}
	return t
}

func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode knowledge tables: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	t.index()
	return &t, nil
}

func (t *Tables) validate() error {
	if t.Age.Threshold <= 0 {
		return fmt.Errorf("knowledge tables: age.threshold must be positive")
	}
	if t.Age.ReductionMinPercent <= 0 || t.Age.ReductionMaxPercent < t.Age.ReductionMinPercent {
		return fmt.Errorf("knowledge tables: invalid age reduction range %d-%d",
			t.Age.ReductionMinPercent, t.Age.ReductionMaxPercent)
	}
	for _, r := range t.Synthesis {
		if r.ID == "" || len(r.Match) == 0 {
			return fmt.Errorf("knowledge tables: synthesis rule %q needs an id and keywords", r.ID)
		}
	}
	if t.Forms.Fallback == "" {
		t.Forms.Fallback = "tablet"
	}
	return nil
}

func (t *Tables) index() {
	t.brandIndex = make(map[string]string, len(t.Brands))
	for brand, dci := range t.Brands {
		t.brandIndex[Fold(brand)] = dci
	}
	t.formIndex = make(map[string]string, len(t.Forms.Defaults))
	for dci, form := range t.Forms.Defaults {
		t.formIndex[Fold(dci)] = form
	}
}

// Fold lowercases s and strips diacritics so "Aiguë" and "aigue" compare equal.
func Fold(s string) string {
	tr := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(tr, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// ContainsAny reports whether the folded text contains any folded keyword.
func ContainsAny(text string, keywords []string) bool {
	return firstMatch(Fold(text), keywords) != ""
}

func firstMatch(folded string, keywords []string) string {
	if folded == "" {
		return ""
	}
	for _, k := range keywords {
		fk := Fold(k)
		if fk != "" && strings.Contains(folded, fk) {
			return k
		}
	}
	return ""
}

// BrandDCI returns the generic name for a brand appearing in name.
func (t *Tables) BrandDCI(name string) (string, bool) {
	folded := Fold(name)
	for _, word := range strings.FieldsFunc(folded, isSeparator) {
		if dci, ok := t.brandIndex[word]; ok {
			return dci, true
		}
	}
	return "", false
}

// FormFor resolves the dosage form from keywords in the item text, then from
// the DCI default table, then the fallback.
func (t *Tables) FormFor(text, dci string) string {
	folded := Fold(text)
	for _, fk := range t.Forms.Keywords {
		if firstMatch(folded, fk.Match) != "" {
			return fk.Form
		}
	}
	if form, ok := t.formIndex[Fold(dci)]; ok {
		return form
	}
	return t.Forms.Fallback
}

func (t *Tables) LabCode(name string) (string, bool) {
	folded := Fold(name)
	for _, e := range t.LabCodes {
		if firstMatch(folded, e.Match) != "" {
			return e.Code, true
		}
	}
	return "", false
}

func (t *Tables) RequiresFasting(name string) bool {
	return ContainsAny(name, t.FastingKeywords)
}

func (t *Tables) RequiresContrast(text string) bool {
	return ContainsAny(text, t.ContrastKeywords)
}

// RegionFor returns the first region whose keywords match text.
func (t *Tables) RegionFor(text string) (string, bool) {
	folded := Fold(text)
	for _, r := range t.Regions {
		if firstMatch(folded, r.Match) != "" {
			return r.Region, true
		}
	}
	return "", false
}

func (t *Tables) IsChronic(diagnosis string) bool {
	return ContainsAny(diagnosis, t.ChronicConditions)
}

// MatchingRules returns the synthesis rules triggered by the diagnosis, in table order.
func (t *Tables) MatchingRules(diagnosis string) []SynthesisRule {
	folded := Fold(diagnosis)
	var out []SynthesisRule
	for _, r := range t.Synthesis {
		if firstMatch(folded, r.Match) != "" {
			out = append(out, r)
		}
	}
	return out
}

// ScoresFor returns the clinical score references relevant to the diagnosis.
func (t *Tables) ScoresFor(diagnosis string) []ClinicalScore {
	folded := Fold(diagnosis)
	var out []ClinicalScore
	for _, s := range t.ClinicalScores {
		if firstMatch(folded, s.Match) != "" {
			out = append(out, s)
		}
	}
	return out
}

// Counts summarizes table sizes for health and CLI output.
func (t *Tables) Counts() map[string]int {
	return map[string]int{
		"brands":          len(t.Brands),
		"lab_codes":       len(t.LabCodes),
		"regions":         len(t.Regions),
		"chronic":         len(t.ChronicConditions),
		"synthesis_rules": len(t.Synthesis),
		"clinical_scores": len(t.ClinicalScores),
	}
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
