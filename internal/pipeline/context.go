// Package pipeline implements the two-stage turn processing: input
// normalization (recognize, clean) and output streaming (agent chunks to
// sequenced bus events).
package pipeline

// Context carries one turn through the input pipeline and accumulates the
// agent response during the output pipeline. Created per turn, discarded at
// turn end.
//
// Exactly one of RawText or RawAudio is set by the caller. Once
// SkipRemaining is set no further step mutates any other field.
type Context struct {
	// RawText is the turn input when the client sent text.
	RawText string
	// RawAudio is the turn input when the client sent an utterance:
	// 16 kHz mono float32 PCM.
	RawAudio []float32

	// IsAudio marks an audio turn even when RawAudio is nil (e.g. a
	// mic-audio-end with nothing buffered), so empty utterances fail
	// validation instead of running as empty text turns.
	IsAudio bool

	// Text is the normalized input text, filled by the recognize step and
	// rewritten by the clean step.
	Text string

	// Images are optional image attachments (data URLs), passed through to
	// the agent untouched.
	Images []string

	// FromName is the display name of the speaker.
	FromName string

	// Metadata is free-form per-turn metadata.
	Metadata map[string]any

	// Err records a soft failure (e.g. recognition failed). The turn
	// aborts after the pipeline but the session stays alive.
	Err error

	// Response accumulates the concatenated agent reply.
	Response string

	// SkipRemaining short-circuits the remaining steps.
	SkipRemaining bool
}

// HasAudio reports whether the turn input is PCM.
func (c *Context) HasAudio() bool {
	return c.IsAudio || c.RawAudio != nil
}
