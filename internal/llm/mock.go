package llm

import (
	"context"
	"sync"
)

// MockClient queues canned responses for tests and records requests.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	Requests  []CompletionRequest
}

// NewMockClient returns a mock that replies with the given responses in order,
// repeating the last one when exhausted.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// Fail makes every call return err.
func (m *MockClient) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &CompletionResponse{}, nil
	}
	content := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return &CompletionResponse{Content: content}, nil
}
