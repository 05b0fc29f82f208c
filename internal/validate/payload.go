// Package validate extracts the generator's structured answer and repairs it locally.
package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"consultdoc/internal/llm"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var payloadSchema string

const schemaURL = "consultdoc://payload.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(payloadSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to load payload schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("failed to compile payload schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// ErrNoObject means no JSON object could be located in the answer.
var ErrNoObject = errors.New("no JSON object in generator output")

// StructuralError is a payload that cannot be used at all; the orchestrator retries it.
type StructuralError struct {
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Err == nil {
		return "invalid generator payload: " + e.Reason
	}
	return fmt.Sprintf("invalid generator payload: %s: %v", e.Reason, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// Payload is the parsed answer. Section values keep their raw JSON type.
type Payload struct {
	Sections         map[string]any
	HadPrescriptions bool
}

// Extract isolates the JSON object: fences are stripped, then the text from the
// first '{' to the last '}' is kept.
func Extract(raw string) (string, error) {
	text := llm.CleanOutput(raw)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", ErrNoObject
	}
	return text[start : end+1], nil
}

// Parse extracts, decodes and schema-checks raw. Every failure is a StructuralError.
func Parse(raw string) (*Payload, error) {
	body, err := Extract(raw)
	if err != nil {
		return nil, &StructuralError{Reason: "extract", Err: err}
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&doc); err != nil {
		return nil, &StructuralError{Reason: "decode", Err: err}
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, &StructuralError{Reason: "schema", Err: err}
	}

	obj := doc.(map[string]any)
	sections, _ := obj["sections"].(map[string]any)
	_, hadRx := obj["prescriptions"]
	return &Payload{Sections: sections, HadPrescriptions: hadRx}, nil
}
