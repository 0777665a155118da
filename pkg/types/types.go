// Package types defines the shared types used across all Anima packages.
//
// These types form the lingua franca between providers, pipelines, and the
// orchestrator. They are intentionally minimal — each package defines its own
// domain types, but cross-cutting data structures live here to avoid circular
// imports.
package types

// Message is a single entry in a conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the textual body of the message.
	Content string

	// Name optionally identifies the speaker (e.g., the client-supplied
	// from_name). Providers that support per-message names forward it.
	Name string
}

// ToolCall is a tool invocation requested by the language model. The core
// does not execute tools; tool calls are surfaced as events and forwarded to
// the client unchanged.
type ToolCall struct {
	// ID is the provider-assigned call identifier.
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the raw JSON-encoded argument payload. For streaming
	// providers this is the concatenation of all argument fragments.
	Arguments string
}

// ChunkType discriminates the payload of an agent stream Chunk.
type ChunkType string

const (
	// ChunkText is an incremental text fragment.
	ChunkText ChunkType = "text"

	// ChunkSentence is a complete sentence. Providers that buffer to
	// sentence boundaries emit these instead of raw text fragments.
	ChunkSentence ChunkType = "sentence"

	// ChunkToolCall carries a tool invocation request.
	ChunkToolCall ChunkType = "tool_call"
)

// Chunk is one element of an agent's streaming reply.
type Chunk struct {
	// Type selects which payload field is meaningful.
	Type ChunkType

	// Text is the text payload for ChunkText and ChunkSentence.
	Text string

	// ToolCall is the payload for ChunkToolCall.
	ToolCall *ToolCall

	// Err carries a mid-stream provider failure. The stream channel is
	// closed after a chunk with a non-nil Err.
	Err error
}
