// Package llm speaks the OpenAI-compatible chat completions wire protocol.
// The understanding agent, refiner, and memory retriever consume it through
// the small interfaces below so tests can substitute fakes.
package llm

import "context"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// CompletionRequest is a provider-independent completion request.
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// TokenUsage reports provider-side token accounting.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse carries the assistant text and usage.
type CompletionResponse struct {
	Content string
	Usage   TokenUsage
}

// Client is the minimal "prompt in, text out" contract.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// StreamHandler receives content deltas during a streaming completion.
type StreamHandler func(delta string) error

// StreamingClient adds server-sent-event streaming.
type StreamingClient interface {
	Client
	CompleteStream(ctx context.Context, req CompletionRequest, handler StreamHandler) (*CompletionResponse, error)
}

// Embedder turns text into a vector for the memory retriever.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config carries the provider connection settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	TimeoutSeconds int
	MaxRetries     int
}
