package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for AI providers. Queued responses are
// returned first in FIFO order; once the queue is empty every call returns
// Response.
type MockProvider struct {
	Response string
	Err      error

	mu       sync.Mutex
	queue    []string
	requests []CompletionRequest
}

// NewMockProvider creates a MockProvider that returns the given responses in
// order, repeating the last one.
func NewMockProvider(responses ...string) *MockProvider {
	m := &MockProvider{}
	if len(responses) > 0 {
		m.Response = responses[len(responses)-1]
		m.queue = append(m.queue, responses[:len(responses)-1]...)
	}
	return m
}

// Enqueue adds responses to be returned before the default Response.
func (m *MockProvider) Enqueue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, err
	}
	if m.Err != nil {
		return CompletionResponse{}, m.Err
	}

	content := m.Response
	if len(m.queue) > 0 {
		content = m.queue[0]
		m.queue = m.queue[1:]
	}
	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, or nil.
func (m *MockProvider) LastRequest() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

func (m *MockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "mock", Name: "Mock Model", MaxTokens: 4096, Description: "Test mock"},
	}
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}
