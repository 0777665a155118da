// Package anyllm provides an agent provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more. It exists so a persona can be pointed at any chat backend by config
// alone.
package anyllm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/anima-voice/anima/pkg/types"
)

// Provider implements agent.Provider by wrapping any-llm-go. Each Provider
// owns the conversation history of exactly one session.
type Provider struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string

	mu      sync.Mutex
	history []types.Message

	temperature *float64
	maxTokens   *int
}

// New creates a Provider backed by the given backend name.
//
// backendName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
//
// opts are any-llm-go options (e.g., anyllmlib.WithAPIKey). Without an API
// key option the backend falls back to its usual environment variable.
func New(backendName, model, systemPrompt string, opts ...anyllmlib.Option) (*Provider, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: backendName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(backendName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backendName, err)
	}

	return &Provider{
		backend:      backend,
		model:        model,
		systemPrompt: systemPrompt,
	}, nil
}

// SetTemperature sets the sampling temperature on subsequent completions.
func (p *Provider) SetTemperature(t float64) {
	p.temperature = &t
}

// SetMaxTokens caps the completion length on subsequent completions.
func (p *Provider) SetMaxTokens(n int) {
	p.maxTokens = &n
}

// createBackend creates the underlying any-llm-go provider by name.
func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", name)
	}
}

// ChatStream implements agent.Provider.
func (p *Provider) ChatStream(ctx context.Context, text string) (<-chan types.Chunk, error) {
	p.mu.Lock()
	p.history = append(p.history, types.Message{Role: "user", Content: text})
	params := p.buildParams()
	p.mu.Unlock()

	backendChunks, backendErrs := p.backend.CompletionStream(ctx, params)

	ch := make(chan types.Chunk, 32)
	go func() {
		defer close(ch)

		var reply []byte
		toolCallAccum := map[int]*types.ToolCall{}

		for chunk := range backendChunks {
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

			// Accumulate tool call fragments by index within this chunk.
			for i, tc := range delta.ToolCalls {
				if _, ok := toolCallAccum[i]; !ok {
					toolCallAccum[i] = &types.ToolCall{
						ID:   tc.ID,
						Name: tc.Function.Name,
					}
				}
				existing := toolCallAccum[i]
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

		// Check for backend errors after the chunk channel is drained.
		if err := <-backendErrs; err != nil {
			select {
			case ch <- types.Chunk{Err: fmt.Errorf("anyllm: stream: %w", err)}:
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

// buildParams assembles completion params from the system prompt plus the
// current history. Callers must hold p.mu.
func (p *Provider) buildParams() anyllmlib.CompletionParams {
	var messages []anyllmlib.Message

	if p.systemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: p.systemPrompt,
		})
	}
	for _, m := range p.history {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if p.temperature != nil {
		t := *p.temperature
		params.Temperature = &t
	}
	if p.maxTokens != nil {
		mt := *p.maxTokens
		params.MaxTokens = &mt
	}
	return params
}
