// Package generation drives the text generator through a bounded retry state machine.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"consultdoc/internal/llm"

	"github.com/rs/zerolog"
)

type State string

const (
	StateIdle              State = "Idle"
	StateRequesting        State = "Requesting"
	StateSucceeded         State = "Succeeded"
	StateTransientFailure  State = "TransientFailure"
	StateFailed            State = "Failed"
	StateFallbackSynthesis State = "FallbackSynthesis"
)

// Policy decides what happens once every attempt has failed.
type Policy string

const (
	PolicyFallback Policy = "fallback"
	PolicyFail     Policy = "fail"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyFallback:
		return PolicyFallback, nil
	case PolicyFail:
		return PolicyFail, nil
	}
	return "", fmt.Errorf("unknown exhaustion policy %q (want fallback or fail)", s)
}

const DefaultMaxAttempts = 3

type Transition struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

type Config struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        Backoff
	Clock          Clock
	Policy         Policy
}

// Outcome is the terminal result of one run. Raw is set only when Succeeded.
type Outcome struct {
	State        State
	Raw          string
	Attempts     int
	UsedFallback bool
	LastError    error
	Transitions  []Transition
}

// Accept checks a raw answer; a non-nil error turns the attempt into a TransientFailure.
type Accept func(raw string) error

type Orchestrator struct {
	gen    llm.Generator
	cfg    Config
	logger zerolog.Logger
}

// New builds an orchestrator. A nil generator means offline mode: every run
// goes straight to FallbackSynthesis.
func New(gen llm.Generator, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyFallback
	}
	return &Orchestrator{gen: gen, cfg: cfg, logger: logger}
}

func (o *Orchestrator) Policy() Policy { return o.cfg.Policy }

// WithPolicy returns a copy using p, leaving o unchanged.
func (o *Orchestrator) WithPolicy(p Policy) *Orchestrator {
	cp := *o
	cp.cfg.Policy = p
	return &cp
}

type run struct {
	o     *Orchestrator
	state State
	out   Outcome
}

func (r *run) move(to State, attempt int, err error) {
	t := Transition{From: r.state, To: to, Attempt: attempt, At: r.o.cfg.Clock.Now()}
	if err != nil {
		t.Error = err.Error()
	}
	r.out.Transitions = append(r.out.Transitions, t)
	r.state = to
}

// Run executes the state machine. It returns an error only under PolicyFail.
func (o *Orchestrator) Run(ctx context.Context, req llm.Request, accept Accept) (Outcome, error) {
	r := &run{o: o, state: StateIdle}

	if o.gen == nil {
		r.move(StateFallbackSynthesis, 0, nil)
		return r.finish(), nil
	}

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		r.move(StateRequesting, attempt, nil)
		r.out.Attempts = attempt

		raw, err := o.attempt(ctx, req, accept)
		if err == nil {
			r.out.Raw = raw
			r.move(StateSucceeded, attempt, nil)
			return r.finish(), nil
		}

		te := &TransientError{Attempt: attempt, Err: err}
		r.out.LastError = te
		r.move(StateTransientFailure, attempt, err)

		if ctx.Err() != nil {
			return r.abort(ctx.Err())
		}
		if attempt == o.cfg.MaxAttempts {
			break
		}

		delay := o.cfg.Backoff.Delay(attempt)
		o.logger.Warn().
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("Generation attempt failed, retrying")

		select {
		case <-ctx.Done():
			return r.abort(ctx.Err())
		case <-o.cfg.Clock.After(delay):
		}
	}

	r.move(StateFailed, r.out.Attempts, r.out.LastError)
	o.logger.Error().
		Int("attempts", r.out.Attempts).
		Str("policy", string(o.cfg.Policy)).
		Err(r.out.LastError).
		Msg("Generation exhausted")

	if o.cfg.Policy == PolicyFail {
		return r.finish(), &ExhaustedError{Attempts: r.out.Attempts, Last: r.out.LastError}
	}
	r.move(StateFallbackSynthesis, r.out.Attempts, nil)
	return r.finish(), nil
}

func (o *Orchestrator) attempt(ctx context.Context, req llm.Request, accept Accept) (string, error) {
	actx := ctx
	if o.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		defer cancel()
	}
	raw, err := o.gen.Generate(actx, req)
	if err != nil {
		return "", err
	}
	if accept != nil {
		if err := accept(raw); err != nil {
			return "", err
		}
	}
	return raw, nil
}

// abort handles caller cancellation: fail returns a TimeoutError, fallback degrades immediately.
func (r *run) abort(cause error) (Outcome, error) {
	r.o.logger.Warn().
		Int("attempts", r.out.Attempts).
		Err(cause).
		Msg("Generation interrupted by caller deadline")
	if r.o.cfg.Policy == PolicyFail {
		r.move(StateFailed, r.out.Attempts, cause)
		return r.finish(), &TimeoutError{Attempts: r.out.Attempts, Err: cause}
	}
	if r.out.LastError == nil {
		r.out.LastError = cause
	}
	r.move(StateFailed, r.out.Attempts, cause)
	r.move(StateFallbackSynthesis, r.out.Attempts, nil)
	return r.finish(), nil
}

func (r *run) finish() Outcome {
	r.out.State = r.state
	r.out.UsedFallback = r.state == StateFallbackSynthesis
	return r.out
}
