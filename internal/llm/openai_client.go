package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	hermeserrors "hermes/internal/errors"
	jsonx "hermes/internal/shared/json"
	"hermes/internal/logging"
)

// openaiClient talks to any OpenAI-compatible chat completions endpoint.
type openaiClient struct {
	model          string
	embeddingModel string
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	logger         logging.Logger
}

// NewOpenAIClient constructs a client from the provided configuration.
func NewOpenAIClient(config Config, logger logging.Logger) StreamingClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	timeout := 60 * time.Second
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}
	return &openaiClient{
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
		apiKey:         config.APIKey,
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logging.OrNop(logger),
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := c.post(ctx, "/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, hermeserrors.NewTransientError(err, "read completion response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, hermeserrors.FromHTTPStatus(resp.StatusCode, preview(body))
	}

	var parsed chatResponse
	if err := jsonx.Unmarshal(body, &parsed); err != nil {
		return nil, hermeserrors.NewPermanentError(err, "decode completion response")
	}
	if parsed.Error != nil {
		return nil, hermeserrors.NewPermanentError(fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message), "")
	}
	if len(parsed.Choices) == 0 {
		return nil, hermeserrors.NewPermanentError(fmt.Errorf("empty choices"), "completion returned no choices")
	}

	c.logger.Debug("completion done: %d prompt / %d completion tokens",
		parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)

	return &CompletionResponse{
		Content: parsed.Choices[0].Message.Content,
		Usage:   parsed.Usage,
	}, nil
}

// CompleteStream consumes "data: {...}" SSE lines terminated by "data: [DONE]".
func (c *openaiClient) CompleteStream(ctx context.Context, req CompletionRequest, handler StreamHandler) (*CompletionResponse, error) {
	resp, err := c.post(ctx, "/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, hermeserrors.FromHTTPStatus(resp.StatusCode, preview(body))
	}

	var content strings.Builder
	var usage TokenUsage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := jsonx.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Warn("skip malformed stream chunk: %v", err)
			continue
		}
		if chunk.Usage.TotalTokens > 0 {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if handler != nil {
			if err := handler(delta); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, hermeserrors.NewTransientError(err, "read completion stream")
	}

	return &CompletionResponse{Content: content.String(), Usage: usage}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *openaiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.embeddingModel
	if model == "" {
		model = "text-embedding-3-small"
	}
	resp, err := c.post(ctx, "/embeddings", embeddingRequest{Model: model, Input: []string{text}})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, hermeserrors.NewTransientError(err, "read embedding response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, hermeserrors.FromHTTPStatus(resp.StatusCode, preview(body))
	}

	var parsed embeddingResponse
	if err := jsonx.Unmarshal(body, &parsed); err != nil {
		return nil, hermeserrors.NewPermanentError(err, "decode embedding response")
	}
	if len(parsed.Data) == 0 {
		return nil, hermeserrors.NewPermanentError(fmt.Errorf("empty data"), "embedding returned no vectors")
	}
	return parsed.Data[0].Embedding, nil
}

func (c *openaiClient) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := jsonx.Marshal(payload)
	if err != nil {
		return nil, hermeserrors.NewPermanentError(err, "marshal request")
	}

	endpoint := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, hermeserrors.NewPermanentError(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("POST %s model=%s", endpoint, c.model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Transport errors (DNS, refused connection, timeout) are retryable.
		return nil, hermeserrors.NewTransientError(err, "")
	}
	return resp, nil
}

func preview(body []byte) string {
	const max = 300
	s := string(body)
	if len(s) > max {
		return s[:max]
	}
	return s
}
