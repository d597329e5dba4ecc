package mock

import (
	"context"
	"sync"

	"github.com/intentflow/intentflow/pkg/models"
)

// MockProvider satisfies models.LLMProvider for testing and local development.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req models.ChatRequest) (string, error)

	mu       sync.Mutex
	requests []models.ChatRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, req models.ChatRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "{}", nil
}

// Requests returns a copy of all requests seen so far.
func (m *MockProvider) Requests() []models.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// NewProvider returns a MockProvider that answers every request with an empty
// decision list.
func NewProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, _ models.ChatRequest) (string, error) {
			return `{"assignments": []}`, nil
		},
	}
}

// NewScriptedProvider returns a MockProvider that replays the given responses
// in order, repeating the last one once exhausted.
func NewScriptedProvider(responses ...string) *MockProvider {
	var mu sync.Mutex
	i := 0
	return &MockProvider{
		Name_: "mock-scripted",
		CompleteFunc: func(_ context.Context, _ models.ChatRequest) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			resp := responses[i]
			if i < len(responses)-1 {
				i++
			}
			return resp, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CompleteFunc: func(_ context.Context, _ models.ChatRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ models.ChatRequest) (string, error) {
			<-ctx.Done()
			return "", models.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements LLMProvider.
var _ models.LLMProvider = (*MockProvider)(nil)
