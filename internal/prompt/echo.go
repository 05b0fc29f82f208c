package prompt

import (
	"strings"
)

const (
	blockPatient       = "PATIENT"
	blockClinical      = "CLINICAL DATA"
	blockDiagnosis     = "DIAGNOSIS"
	blockScores        = "CLINICAL SCORE REFERENCES"
	blockAlerts        = "SAFETY ALERTS"
	blockPrescriptions = "FINALIZED PRESCRIPTIONS (read-only)"
	blockTemplate      = "TEMPLATE"

	simplifiedHint = "Keep each paragraph at the lower bound of its requested length."
	banner         = "=================================================================="
)

var blockTitles = []string{
	blockPatient, blockClinical, blockDiagnosis, blockScores,
	blockAlerts, blockPrescriptions, blockTemplate,
}

// echoLines holds every fixed line the prompt sends, normalized by echoKey.
var echoLines = func() map[string]bool {
	m := map[string]bool{echoKey(simplifiedHint): true}
	for _, line := range strings.Split(systemInstruction, "\n") {
		if k := echoKey(line); k != "" {
			m[k] = true
		}
	}
	for _, t := range blockTitles {
		m[echoKey("### "+t)] = true
	}
	return m
}()

func echoKey(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "- ")
	return strings.ToLower(strings.Join(strings.Fields(line), " "))
}

// IsEcho reports whether line repeats a fixed line of the prompt: an
// instruction, a block header or a separator banner. Ordinary clinical
// sentences that merely start with an imperative are not echoes.
func IsEcho(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if len(trimmed) >= 10 && strings.Trim(trimmed, "=") == "" {
		return true
	}
	return echoLines[echoKey(trimmed)]
}

// HasEcho reports whether any line of text is an echo.
func HasEcho(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if IsEcho(line) {
			return true
		}
	}
	return false
}
