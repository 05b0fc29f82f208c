// Package llm wraps the hosted text generation backends behind one interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is one generation call: a fixed system instruction plus the user payload.
type Request struct {
	System          string
	User            string
	MaxOutputTokens int
	Temperature     float32
}

// Generator produces raw text for a request. Implementations do not retry.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// ErrEmptyResponse is returned when the backend answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

type Options struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// New builds the configured backend. Provider "none" returns a nil Generator,
// which callers treat as offline mode.
func New(ctx context.Context, opts Options) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = ProviderGemini
	}

	switch provider {
	case ProviderNone:
		return nil, nil
	case ProviderGemini:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGemini(ctx, opts.APIKey, opts.Model)
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAI(opts.APIKey, opts.Model, opts.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", opts.Provider)
	}
}
