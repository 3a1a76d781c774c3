package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a single candidate attempt.
const DefaultTimeout = 20 * time.Second

// Candidate is one provider/model pair in a fallback chain.
type Candidate struct {
	Provider Provider
	Model    string
}

func (c Candidate) String() string {
	return c.Provider.Name() + ":" + c.Model
}

// Chain tries its candidates in order and returns the first successful
// completion. Each attempt gets its own timeout.
type Chain struct {
	candidates []Candidate
	timeout    time.Duration
	params     Params
}

// NewChain builds a chain over candidates. A zero timeout uses DefaultTimeout.
func NewChain(candidates []Candidate, timeout time.Duration) *Chain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Chain{candidates: candidates, timeout: timeout, params: DefaultParams}
}

// Candidates returns the chain's candidates in order.
func (c *Chain) Candidates() []Candidate {
	return c.candidates
}

// Complete implements Completer.
func (c *Chain) Complete(ctx context.Context, prompt string) (string, error) {
	var errs []error
	for _, cand := range c.candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		text, err := c.attempt(ctx, cand, prompt)
		if err == nil {
			slog.Debug("completion succeeded", "candidate", cand.String(), "duration", time.Since(start))
			return text, nil
		}
		slog.Warn("model failed", "candidate", cand.String(), "duration", time.Since(start), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", cand, err))
	}
	return "", fmt.Errorf("%w: %w", ErrAllCandidatesFailed, errors.Join(errs...))
}

// attempt runs one candidate. A panicking adapter counts as a failed attempt.
func (c *Chain) attempt(ctx context.Context, cand Candidate, prompt string) (text string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("provider panicked: %v", r)
		}
	}()
	text, err = cand.Provider.Complete(ctx, Request{Prompt: prompt, Model: cand.Model, Params: c.params})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// ProbeResult reports whether one candidate answered a probe prompt.
type ProbeResult struct {
	Candidate string
	Duration  time.Duration
	Err       error
}

// Probe sends a tiny prompt to every candidate, not stopping at the first success.
func (c *Chain) Probe(ctx context.Context) []ProbeResult {
	results := make([]ProbeResult, 0, len(c.candidates))
	for _, cand := range c.candidates {
		start := time.Now()
		_, err := c.attempt(ctx, cand, "Reply with the single word: ok")
		results = append(results, ProbeResult{
			Candidate: cand.String(),
			Duration:  time.Since(start),
			Err:       err,
		})
	}
	return results
}
