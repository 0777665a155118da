// Package asr defines the Provider interface for speech recognition backends.
//
// Unlike a live streaming transcriber, Anima's recognition is one-shot: the
// VAD state machine delivers a complete utterance as 16 kHz mono float32 PCM
// and the provider returns its transcription. This matches the turn model —
// nothing downstream can act on partial transcripts anyway.
//
// Implementations must be safe for concurrent use across sessions.
package asr

import "context"

// Provider is the abstraction over any speech recognition backend.
type Provider interface {
	// Transcribe converts a complete utterance to text. samples is 16 kHz
	// mono PCM in [-1, 1]. An empty or silent utterance returns an empty
	// string and no error; transport and auth failures return an error.
	Transcribe(ctx context.Context, samples []float32) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}
