// Package tts defines the Provider interface for speech synthesis backends.
//
// Synthesis is file-oriented: the orchestrator needs the complete audio before
// it can compute a duration, a volume envelope, and an emotion timeline, so
// providers write the synthesized audio to a cache file and return its path.
//
// Implementations must be safe for concurrent use across sessions.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text to speech and returns the path of the written
	// audio file. The file format is provider-chosen (WAV or MP3); callers
	// derive it from the file extension.
	Synthesize(ctx context.Context, text string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}
