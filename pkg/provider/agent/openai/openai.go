// Package openai provides an agent provider backed by the OpenAI chat API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/anima-voice/anima/pkg/types"
)

// Provider implements agent.Provider using the OpenAI API. Each Provider
// owns the conversation history of exactly one session.
type Provider struct {
	client       oai.Client
	model        string
	systemPrompt string

	mu      sync.Mutex
	history []types.Message

	temperature float64
	maxTokens   int
}

// config holds optional configuration for the provider.
type config struct {
	baseURL     string
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to point at a
// compatible local server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = n
	}
}

// New constructs a new OpenAI agent Provider. systemPrompt may be empty.
func New(apiKey, model, systemPrompt string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		systemPrompt: systemPrompt,
		temperature:  cfg.temperature,
		maxTokens:    cfg.maxTokens,
	}, nil
}

// ChatStream implements agent.Provider.
func (p *Provider) ChatStream(ctx context.Context, text string) (<-chan types.Chunk, error) {
	p.mu.Lock()
	p.history = append(p.history, types.Message{Role: "user", Content: text})
	params := p.buildParams()
	p.mu.Unlock()

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan types.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		var reply []byte
		toolCallAccum := map[int]*types.ToolCall{}

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			delta := choice.Delta

			if delta.Content != "" {
				reply = append(reply, delta.Content...)
				select {
				case ch <- types.Chunk{Type: types.ChunkText, Text: delta.Content}:
				case <-ctx.Done():
					return
				}
			}

			// Accumulate tool call fragments keyed by index.
			for _, tc := range delta.ToolCalls {
				idx := int(tc.Index)
				if _, ok := toolCallAccum[idx]; !ok {
					toolCallAccum[idx] = &types.ToolCall{
						ID:   tc.ID,
						Name: tc.Function.Name,
					}
				}
				existing := toolCallAccum[idx]
				if tc.ID != "" {
					existing.ID = tc.ID
				}
				if tc.Function.Name != "" {
					existing.Name = tc.Function.Name
				}
				existing.Arguments += tc.Function.Arguments
			}

			if choice.FinishReason != "" && len(toolCallAccum) > 0 {
				for i := 0; i < len(toolCallAccum); i++ {
					if tc, ok := toolCallAccum[i]; ok {
						select {
						case ch <- types.Chunk{Type: types.ChunkToolCall, ToolCall: tc}:
						case <-ctx.Done():
							return
						}
					}
				}
				toolCallAccum = map[int]*types.ToolCall{}
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- types.Chunk{Err: fmt.Errorf("openai: stream: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		if len(reply) > 0 {
			p.mu.Lock()
			p.history = append(p.history, types.Message{Role: "assistant", Content: string(reply)})
			p.mu.Unlock()
		}
	}()

	return ch, nil
}

// History implements agent.Provider.
func (p *Provider) History() []types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Message, len(p.history))
	copy(out, p.history)
	return out
}

// SetHistory implements agent.Provider.
func (p *Provider) SetHistory(msgs []types.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = make([]types.Message, len(msgs))
	copy(p.history, msgs)
}

// ClearHistory implements agent.Provider.
func (p *Provider) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
}

// Close implements agent.Provider.
func (p *Provider) Close() error {
	return nil
}

// buildParams assembles chat params from the system prompt plus the current
// history. Callers must hold p.mu.
func (p *Provider) buildParams() oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion

	if p.systemPrompt != "" {
		messages = append(messages, oai.SystemMessage(p.systemPrompt))
	}
	for _, m := range p.history {
		switch m.Role {
		case "assistant":
			asst := oai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = oai.String(m.Content)
			}
			if m.Name != "" {
				asst.Name = oai.String(m.Name)
			}
			messages = append(messages, oai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case "system":
			messages = append(messages, oai.SystemMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if p.temperature != 0 {
		params.Temperature = param.NewOpt(p.temperature)
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(p.maxTokens))
	}
	return params
}
