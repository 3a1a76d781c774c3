// Package llm provides the text-completion capability used for feedback,
// overviews and mastery problems: provider adapters behind one interface
// and an ordered fallback chain over candidate models.
package llm

import "context"

// Provider completes a prompt with a named model.
type Provider interface {
	// Complete returns the generated text for req.
	Complete(ctx context.Context, req Request) (string, error)

	// Name identifies the provider in logs and candidate strings.
	Name() string
}

// Request describes one completion call.
type Request struct {
	Prompt string
	Model  string
	Params Params
}

// Params are the sampling controls sent with every request.
type Params struct {
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
}

// DefaultParams are the fixed generation settings. They are not user tunable.
var DefaultParams = Params{
	Temperature: 0.9,
	TopP:        0.8,
	TopK:        60,
	MaxTokens:   1024,
}

// Completer is what callers depend on: prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
