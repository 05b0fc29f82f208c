package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"consultdoc/internal/llm"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	answers []string
	errs    []error
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.answers) {
		return f.answers[i], nil
	}
	return "", errors.New("unavailable")
}

// blockingGenerator holds every call until its context ends.
type blockingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (b *blockingGenerator) Name() string { return "blocking" }

func (b *blockingGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func newTestOrchestrator(gen llm.Generator, clock *fakeClock, policy Policy) *Orchestrator {
	return New(gen, Config{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2},
		Clock:       clock,
		Policy:      policy,
	}, zerolog.Nop())
}

func TestRun_SucceedsFirstAttempt(t *testing.T) {
	gen := &fakeGenerator{answers: []string{`{"sections":{}}`}}
	clock := &fakeClock{}

	out, err := newTestOrchestrator(gen, clock, PolicyFallback).Run(context.Background(), llm.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.UsedFallback)
	assert.Empty(t, clock.sleeps)
}

func TestRun_RetriesRejectedPayloadThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{answers: []string{"not json", "still not", `{"ok":true}`}}
	clock := &fakeClock{}
	accept := func(raw string) error {
		if raw[0] != '{' {
			return Transient(errors.New("no object"))
		}
		return nil
	}

	out, err := newTestOrchestrator(gen, clock, PolicyFail).Run(context.Background(), llm.Request{}, accept)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, `{"ok":true}`, out.Raw)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps)
}

func TestRun_ExactlyThreeAttemptsThenFallback(t *testing.T) {
	boom := errors.New("503")
	gen := &fakeGenerator{errs: []error{boom, boom, boom, boom}}
	clock := &fakeClock{}

	out, err := newTestOrchestrator(gen, clock, PolicyFallback).Run(context.Background(), llm.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, StateFallbackSynthesis, out.State)
	assert.True(t, out.UsedFallback)
	assert.Len(t, clock.sleeps, 2)

	var te *TransientError
	require.True(t, errors.As(out.LastError, &te))
	assert.Equal(t, 3, te.Attempt)

	states := []State{}
	for _, tr := range out.Transitions {
		states = append(states, tr.To)
	}
	assert.Equal(t, []State{
		StateRequesting, StateTransientFailure,
		StateRequesting, StateTransientFailure,
		StateRequesting, StateTransientFailure,
		StateFailed, StateFallbackSynthesis,
	}, states)
}

func TestRun_FailPolicyReturnsExhausted(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}

	out, err := newTestOrchestrator(gen, &fakeClock{}, PolicyFail).Run(context.Background(), llm.Request{}, nil)
	require.Error(t, err)
	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 3, ex.Attempts)
	assert.Contains(t, err.Error(), "c")
	assert.Equal(t, StateFailed, out.State)
	assert.False(t, out.UsedFallback)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &fakeGenerator{answers: []string{"{}"}}
	out, err := newTestOrchestrator(gen, &fakeClock{}, PolicyFail).Run(ctx, llm.Request{}, nil)
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, out.Attempts)

	gen = &fakeGenerator{answers: []string{"{}"}}
	out, err = newTestOrchestrator(gen, &fakeClock{}, PolicyFallback).Run(ctx, llm.Request{}, nil)
	require.NoError(t, err)
	assert.True(t, out.UsedFallback)
	assert.Equal(t, 1, gen.calls)
}

func TestRun_AttemptTimeoutIsRetried(t *testing.T) {
	gen := &blockingGenerator{}
	o := newTestOrchestrator(gen, &fakeClock{}, PolicyFallback)
	o.cfg.AttemptTimeout = 5 * time.Millisecond

	out, err := o.Run(context.Background(), llm.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, 3, out.Attempts)
	assert.True(t, out.UsedFallback)
	assert.ErrorIs(t, out.LastError, context.DeadlineExceeded)

	var failures int
	for _, tr := range out.Transitions {
		if tr.To == StateTransientFailure {
			failures++
		}
	}
	assert.Equal(t, 3, failures)
}

func TestRun_DeadlineExpiresWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	gen := &blockingGenerator{}
	out, err := newTestOrchestrator(gen, &fakeClock{}, PolicyFallback).Run(ctx, llm.Request{}, nil)
	require.NoError(t, err)
	assert.True(t, out.UsedFallback)
	assert.Less(t, out.Attempts, 3)
	assert.Equal(t, 1, gen.calls)

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out, err = newTestOrchestrator(&blockingGenerator{}, &fakeClock{}, PolicyFail).Run(ctx, llm.Request{}, nil)
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, 1, out.Attempts)
}

func TestRun_OfflineGoesStraightToFallback(t *testing.T) {
	out, err := newTestOrchestrator(nil, &fakeClock{}, PolicyFail).Run(context.Background(), llm.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateFallbackSynthesis, out.State)
	assert.Equal(t, 0, out.Attempts)
}

func TestExponentialBackoff_Caps(t *testing.T) {
	b := ExponentialBackoff{Initial: time.Second, Max: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 3*time.Second, b.Delay(3))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFallback, p)
	p, err = ParsePolicy("FAIL")
	require.NoError(t, err)
	assert.Equal(t, PolicyFail, p)
	_, err = ParsePolicy("retry")
	require.Error(t, err)
}
