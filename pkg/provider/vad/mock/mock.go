// Package mock provides a test double for the vad.Detector interface.
//
// Script probabilities with Probs; after the script runs out, Prob is
// returned. This lets state-machine tests drive exact hit/miss sequences.
package mock

import (
	"sync"

	"github.com/anima-voice/anima/pkg/provider/vad"
)

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Prob is returned once Probs is exhausted.
	Prob float64

	// Probs is consumed one entry per SpeechProbability call.
	Probs []float64

	// Err, if non-nil, is returned from SpeechProbability.
	Err error

	// Calls is the number of SpeechProbability invocations.
	Calls int

	// ResetCallCount is the number of Reset invocations.
	ResetCallCount int

	// CloseCallCount is the number of Close invocations.
	CloseCallCount int
}

// SpeechProbability returns the next scripted probability.
func (d *Detector) SpeechProbability(_ []float32) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Calls++
	if d.Err != nil {
		return 0, d.Err
	}
	if len(d.Probs) > 0 {
		p := d.Probs[0]
		d.Probs = d.Probs[1:]
		return p, nil
	}
	return d.Prob, nil
}

// Reset records the call.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCallCount++
}

// Close records the call and returns nil.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	return nil
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
