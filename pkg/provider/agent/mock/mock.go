// Package mock provides a test double for the agent.Provider interface.
//
// Use Provider in unit tests to feed controlled reply chunks without a live
// model backend and to inspect the text the orchestrator sent. All fields
// are safe to set before calling any method; mutating them during a
// concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks: []types.Chunk{{Type: types.ChunkText, Text: "Hi [smile] there."}},
//	}
//	ch, err := p.ChatStream(ctx, "hello")
package mock

import (
	"context"
	"sync"

	"github.com/anima-voice/anima/pkg/provider/agent"
	"github.com/anima-voice/anima/pkg/types"
)

// ChatCall records a single invocation of ChatStream.
type ChatCall struct {
	// Ctx is the context passed to ChatStream.
	Ctx context.Context
	// Text is the user text passed to ChatStream.
	Text string
}

// Provider is a mock implementation of agent.Provider.
// Zero values for response fields cause methods to return zero values and
// nil errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Chunks is the sequence of chunks emitted on the channel returned by
	// ChatStream. All chunks are sent before the channel is closed.
	Chunks []types.Chunk

	// ChunkDelay, if set, is signalled on before each chunk is emitted,
	// letting a test pace the stream (e.g. to interrupt mid-reply).
	ChunkDelay <-chan struct{}

	// StreamErr, if non-nil, is returned from ChatStream instead of a
	// channel.
	StreamErr error

	// RecordHistory controls whether ChatStream appends the user text and
	// the concatenated text chunks to Messages, mimicking a real provider.
	RecordHistory bool

	// Messages is the mock's conversation history.
	Messages []types.Message

	// --- Call records (read after test) ---

	// ChatCalls records every invocation of ChatStream in order.
	ChatCalls []ChatCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// ChatStream records the call and returns a channel that emits Chunks.
func (p *Provider) ChatStream(ctx context.Context, text string) (<-chan types.Chunk, error) {
	p.mu.Lock()
	p.ChatCalls = append(p.ChatCalls, ChatCall{Ctx: ctx, Text: text})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]types.Chunk, len(p.Chunks))
	copy(chunks, p.Chunks)
	record := p.RecordHistory
	delay := p.ChunkDelay
	if record {
		p.Messages = append(p.Messages, types.Message{Role: "user", Content: text})
	}
	p.mu.Unlock()

	ch := make(chan types.Chunk, len(chunks))
	go func() {
		defer close(ch)
		var reply []byte
		for _, c := range chunks {
			if delay != nil {
				select {
				case <-delay:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- c:
				if c.Type == types.ChunkText {
					reply = append(reply, c.Text...)
				}
			}
		}
		if record && len(reply) > 0 {
			p.mu.Lock()
			p.Messages = append(p.Messages, types.Message{Role: "assistant", Content: string(reply)})
			p.mu.Unlock()
		}
	}()
	return ch, nil
}

// History returns a copy of Messages.
func (p *Provider) History() []types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Message, len(p.Messages))
	copy(out, p.Messages)
	return out
}

// SetHistory replaces Messages.
func (p *Provider) SetHistory(msgs []types.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = make([]types.Message, len(msgs))
	copy(p.Messages, msgs)
}

// ClearHistory discards Messages.
func (p *Provider) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = nil
}

// Close records the call and returns nil.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return nil
}

// Reset clears all recorded calls and the history. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ChatCalls = nil
	p.Messages = nil
	p.CloseCallCount = 0
}

// Ensure Provider implements agent.Provider at compile time.
var _ agent.Provider = (*Provider)(nil)
