// Package agent defines the Provider interface for conversational language
// model backends.
//
// An agent provider wraps a chat model API (e.g., OpenAI, Anthropic via
// any-llm, or a local Ollama instance) and keeps the conversation history for
// exactly one session. Providers are therefore constructed per session and
// never shared — history isolation between sessions is a structural property,
// not a locking discipline.
//
// Channels returned by ChatStream must be closed by the implementation when
// the stream ends or when the supplied context is cancelled.
package agent

import (
	"context"

	"github.com/anima-voice/anima/pkg/types"
)

// Provider is the abstraction over any conversational LLM backend.
type Provider interface {
	// ChatStream appends text as a user turn, starts a streaming completion,
	// and returns a channel of reply chunks. The implementation records the
	// assistant's full reply in its history once the stream is drained.
	//
	// The returned channel is closed when the model finishes, the stream
	// fails (after a chunk carrying Err), or ctx is cancelled. The caller
	// must drain the channel to avoid leaking the provider's goroutine.
	ChatStream(ctx context.Context, text string) (<-chan types.Chunk, error)

	// History returns a copy of the conversation history, oldest first,
	// excluding the system prompt.
	History() []types.Message

	// SetHistory replaces the conversation history, e.g. when the client
	// restores a previous conversation.
	SetHistory(msgs []types.Message)

	// ClearHistory discards the conversation history but keeps the system
	// prompt.
	ClearHistory()

	// Close releases any resources held by the provider. Safe to call more
	// than once.
	Close() error
}
