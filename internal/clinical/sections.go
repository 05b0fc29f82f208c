package clinical

import "strings"

// Origin records who wrote a section's final text.
type Origin string

const (
	OriginGenerated Origin = "generated"
	OriginDefault   Origin = "default"
	OriginFallback  Origin = "fallback"
)

type Section struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Origin Origin `json:"origin"`
}

// SectionSpec describes one narrative section of the consultation report.
type SectionSpec struct {
	Key         string
	Title       string
	Marker      string
	DefaultText string
}

// PlaceholderPrefix starts every template marker handed to the generator.
const PlaceholderPrefix = "GENERATE_PARAGRAPH"

// ReportSections lists the narrative sections in document order.
var ReportSections = []SectionSpec{
	{
		Key:         "chiefComplaint",
		Title:       "Reason for consultation",
		Marker:      PlaceholderPrefix + "_80_120_WORDS",
		DefaultText: "The patient consulted by teleconsultation for the symptoms recorded in the intake form. The reason for consultation is summarized in the identification block and must be confirmed by the practitioner.",
	},
	{
		Key:         "history",
		Title:       "History of present illness",
		Marker:      PlaceholderPrefix + "_150_200_WORDS",
		DefaultText: "The history of the present illness was collected through the structured teleconsultation questionnaire. Onset, duration and evolution of symptoms are documented in the clinical data and should be reviewed with the patient.",
	},
	{
		Key:         "clinicalExamination",
		Title:       "Clinical examination",
		Marker:      PlaceholderPrefix + "_100_150_WORDS",
		DefaultText: "Examination was limited to what can be assessed remotely. Vital signs reported by the patient are listed in the clinical data. A physical examination in person is recommended if symptoms persist or worsen.",
	},
	{
		Key:         "diagnosticAssessment",
		Title:       "Diagnostic assessment",
		Marker:      PlaceholderPrefix + "_150_200_WORDS",
		DefaultText: "The working diagnosis is based on the reported symptoms and the available clinical data. Differential diagnoses remain open and the assessment must be validated by the practitioner before any decision.",
	},
	{
		Key:         "managementPlan",
		Title:       "Management plan",
		Marker:      PlaceholderPrefix + "_150_200_WORDS",
		DefaultText: "Treatment and investigations are detailed in the attached prescriptions. Doses take into account the patient's age and reported allergies. The patient was informed of the expected course and of the treatment's main side effects.",
	},
	{
		Key:         "followUp",
		Title:       "Follow-up and warning signs",
		Marker:      PlaceholderPrefix + "_80_120_WORDS",
		DefaultText: "A follow-up consultation is advised if symptoms do not improve within 48 to 72 hours. The patient should seek emergency care in case of breathing difficulty, chest pain, confusion or persistent high fever.",
	},
}

// SectionSpecByKey returns the catalog entry for key.
func SectionSpecByKey(key string) (SectionSpec, bool) {
	for _, s := range ReportSections {
		if s.Key == key {
			return s, true
		}
	}
	return SectionSpec{}, false
}

// placeholderSignals mark text the generator was supposed to replace.
var placeholderSignals = []string{
	strings.ToLower(PlaceholderPrefix),
	"generate_",
	"[to be completed]",
	"[a completer]",
	"placeholder",
	"lorem ipsum",
	"insert text here",
	"{{",
}

// HasPlaceholder reports whether text still carries template or instruction residue.
func HasPlaceholder(text string) bool {
	lower := strings.ToLower(text)
	for _, s := range placeholderSignals {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
