package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		in           string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{"gemini:gemini-2.5-flash", "gemini", "gemini-2.5-flash", false},
		{"gemini-pro", "gemini", "gemini-pro", false},
		{" OpenAI : gpt-4o-mini ", "openai", "gpt-4o-mini", false},
		{"anthropic:claude-haiku-4-5", "anthropic", "claude-haiku-4-5", false},
		{"openai:", "", "", true},
		{"cohere:command", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			provider, model, err := ParseCandidate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestNewChainFromConfigWithoutKeys(t *testing.T) {
	chain, err := NewChainFromConfig(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, chain)
}

func TestNewChainFromConfigDropsCandidatesWithoutKey(t *testing.T) {
	chain, err := NewChainFromConfig(context.Background(), Config{
		OpenAIKey:     "sk-test",
		OpenAIBaseURL: "http://localhost:11434/v1",
		Models:        []string{"gemini:gemini-2.5-flash", "openai:llama3", "anthropic:claude-haiku-4-5", "openai:qwen2"},
	})
	require.NoError(t, err)
	require.NotNil(t, chain)

	var names []string
	for _, c := range chain.Candidates() {
		names = append(names, c.String())
	}
	assert.Equal(t, []string{"openai:llama3", "openai:qwen2"}, names)
}

func TestNewChainFromConfigRejectsBadCandidate(t *testing.T) {
	_, err := NewChainFromConfig(context.Background(), Config{OpenAIKey: "k", Models: []string{"bogus:x"}})
	assert.Error(t, err)
}
