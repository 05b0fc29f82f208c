package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"consultdoc/internal/clinical"
	"consultdoc/internal/knowledge"
)

// Prompt is the rendered pair sent to the generator.
type Prompt struct {
	System string
	User   string
}

type Input struct {
	Record        clinical.Canonical
	Prescriptions clinical.Prescriptions
	Simplified    bool
}

// Builder renders the fixed system instruction and the per-request payload.
type Builder struct {
	tables *knowledge.Tables
}

func NewBuilder(tables *knowledge.Tables) *Builder {
	return &Builder{tables: tables}
}

const systemInstruction = `Role: physician assistant drafting a teleconsultation report for review by the treating practitioner.

OUTPUT FORMAT:
- Answer with a single JSON object and nothing else: no markdown fence, no text before or after.
- Shape: {"sections": {"<sectionKey>": "<paragraph>", ...}}
- Provide every section key listed in the template, each as a plain-text paragraph.

HARD CONSTRAINTS:
- Replace every GENERATE_PARAGRAPH_* marker with clinical prose of the requested length. No marker, bracket or instruction may remain.
- The prescriptions are final. Do not add, remove, rename or re-dose any medication or exam; do not output a prescriptions field.
- Mention every safety alert listed in the payload in the management plan.
- Do not invent vital signs, results or history absent from the data; write "not reported" instead.`

// Build renders the prompt for one request.
func (b *Builder) Build(in Input) (Prompt, error) {
	var sb strings.Builder

	writeBlock(&sb, blockPatient)
	if err := writeJSON(&sb, in.Record.Patient); err != nil {
		return Prompt{}, err
	}
	writeBlock(&sb, blockClinical)
	if err := writeJSON(&sb, in.Record.Clinical); err != nil {
		return Prompt{}, err
	}
	writeBlock(&sb, blockDiagnosis)
	if err := writeJSON(&sb, in.Record.Diagnosis); err != nil {
		return Prompt{}, err
	}

	if b.tables != nil {
		if scores := b.tables.ScoresFor(in.Record.Diagnosis.Primary); len(scores) > 0 {
			writeBlock(&sb, blockScores)
			for _, s := range scores {
				fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Purpose)
			}
		}
	}

	if flags := in.Prescriptions.Flags(); len(flags) > 0 {
		writeBlock(&sb, blockAlerts)
		for _, f := range flags {
			fmt.Fprintf(&sb, "- [%s] %s\n", strings.ToUpper(string(f.Severity)), f.Message)
		}
	}

	writeBlock(&sb, blockPrescriptions)
	if err := writeJSON(&sb, in.Prescriptions); err != nil {
		return Prompt{}, err
	}

	writeBlock(&sb, blockTemplate)
	if err := writeJSON(&sb, Template()); err != nil {
		return Prompt{}, err
	}
	if in.Simplified {
		sb.WriteString("\n" + simplifiedHint + "\n")
	}

	return Prompt{System: systemInstruction, User: sb.String()}, nil
}

// Template is the document skeleton whose narrative values are markers.
func Template() map[string]any {
	sections := make(map[string]string, len(clinical.ReportSections))
	for _, s := range clinical.ReportSections {
		sections[s.Key] = s.Marker
	}
	return map[string]any{"sections": sections}
}

func writeBlock(sb *strings.Builder, title string) {
	sb.WriteString("\n" + banner + "\n")
	fmt.Fprintf(sb, "### %s\n", title)
	sb.WriteString(banner + "\n")
}

func writeJSON(sb *strings.Builder, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("render prompt payload: %w", err)
	}
	sb.Write(b)
	sb.WriteByte('\n')
	return nil
}
