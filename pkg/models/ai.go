// Package models contains shared data models used across the IntentFlow codebase.
package models

import (
	"context"
	"errors"
)

// Sentinel errors every provider maps its failures onto, so callers can
// branch without knowing which backend is configured.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// ChatRequest is a single structured completion request sent to a language model.
type ChatRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// LLMProvider is the core interface that all language model integrations must
// implement. Never call specific model APIs directly — always inject this interface.
type LLMProvider interface {
	// Complete sends one chat request and returns the raw text of the response.
	Complete(ctx context.Context, req ChatRequest) (string, error)
	// Name returns the provider identifier (e.g., "anthropic", "openai").
	Name() string
}
