package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	openAIBaseURL      = "https://api.openai.com/v1"
	openAIChatEndpoint = "/chat/completions"

	// DefaultChatModel is the default reply model.
	DefaultChatModel = "gpt-4o-mini"

	defaultChatTimeout = 120 * time.Second

	defaultSystemPrompt = "You are a friendly voice assistant. " +
		"Answer briefly in complete spoken sentences, without markup or lists."
)

// OpenAIProducer streams replies from an OpenAI-compatible chat
// completions API, splitting the delta stream into sentences.
type OpenAIProducer struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
}

// OpenAIOption configures the OpenAI producer.
type OpenAIOption func(*OpenAIProducer)

// WithOpenAIBaseURL sets a custom base URL, for compatible backends or tests.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProducer) { p.baseURL = url }
}

// WithOpenAIClient sets a custom HTTP client.
func WithOpenAIClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProducer) { p.client = client }
}

// WithOpenAIModel sets the chat model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(p *OpenAIProducer) { p.model = model }
}

// NewOpenAI creates an OpenAI-backed reply producer.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIProducer {
	p := &OpenAIProducer{
		apiKey:  apiKey,
		baseURL: openAIBaseURL,
		client:  &http.Client{Timeout: defaultChatTimeout},
		model:   DefaultChatModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the producer identifier.
func (p *OpenAIProducer) Name() string {
	return "openai-chat"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamSentences generates the reply, emitting sentences as the delta
// stream closes them.
func (p *OpenAIProducer) StreamSentences(ctx context.Context, req Request, emit EmitFunc) error {
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if req.Language != "" {
		systemPrompt += " Reply in language: " + req.Language + "."
	}

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Text},
		},
		Stream: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.baseURL+openAIChatEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat request failed with status %d: %s", resp.StatusCode, errBody)
	}

	splitter := NewSplitter()
	scanner := newSSEScanner(resp.Body)
	for scanner.Scan() {
		data := scanner.Data()
		if data == "[DONE]" {
			break
		}

		var delta chatDelta
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			continue
		}
		for _, choice := range delta.Choices {
			if choice.Delta.Content != "" {
				splitter.Feed(choice.Delta.Content, emit)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading chat stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	splitter.Finish(emit)
	return nil
}
