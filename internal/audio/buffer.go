// Package audio holds the per-session utterance buffer and the synthesized
// audio analyzer.
package audio

import "sync"

// Buffer accumulates post-VAD PCM samples for one session until the turn
// dispatches. Samples are 16 kHz mono float32 in [-1, 1].
type Buffer struct {
	mu      sync.Mutex
	samples []float32
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds samples to the buffer.
func (b *Buffer) Append(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, samples...)
}

// Pop returns the accumulated samples and resets the buffer.
func (b *Buffer) Pop() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.samples
	b.samples = nil
	return out
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Clear discards the accumulated samples.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
}
