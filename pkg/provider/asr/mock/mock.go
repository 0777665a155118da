// Package mock provides a test double for the asr.Provider interface.
//
// Set Text (or Texts for multi-call scripts) before use; TranscribeCalls
// records the utterances the pipeline handed over.
package mock

import (
	"context"
	"sync"

	"github.com/anima-voice/anima/pkg/provider/asr"
)

// Provider is a mock implementation of asr.Provider.
// Zero values cause Transcribe to return "" and nil.
type Provider struct {
	mu sync.Mutex

	// Text is returned by every Transcribe call when Texts is empty.
	Text string

	// Texts, if non-empty, is consumed one entry per Transcribe call. After
	// the script runs out, Text is returned.
	Texts []string

	// Err, if non-nil, is returned from Transcribe.
	Err error

	// TranscribeCalls records the sample slices passed to Transcribe.
	TranscribeCalls [][]float32

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns the scripted text.
func (p *Provider) Transcribe(_ context.Context, samples []float32) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	recorded := make([]float32, len(samples))
	copy(recorded, samples)
	p.TranscribeCalls = append(p.TranscribeCalls, recorded)

	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Texts) > 0 {
		text := p.Texts[0]
		p.Texts = p.Texts[1:]
		return text, nil
	}
	return p.Text, nil
}

// Close records the call and returns nil.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return nil
}

// Ensure Provider implements asr.Provider at compile time.
var _ asr.Provider = (*Provider)(nil)
