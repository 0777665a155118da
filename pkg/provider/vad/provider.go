// Package vad defines the Detector interface for per-window speech scoring.
//
// A Detector wraps a frame-level speech model (e.g., Silero VAD) and reduces
// one fixed-width PCM window to a speech probability. The surrounding state
// machine — smoothing, hysteresis, pre-roll, utterance assembly — lives in
// internal/vad and is shared by every detector; the Detector itself is
// deliberately tiny so that a model backend, an energy fallback, and a test
// mock are interchangeable.
//
// A single Detector instance belongs to one session: streaming models carry
// recurrent state between windows. Constructors must be cheap enough to call
// per session.
package vad

// WindowSize is the number of samples per detector window at 16 kHz (~32 ms).
const WindowSize = 512

// SampleRate is the PCM sample rate every detector operates on.
const SampleRate = 16000

// Detector scores one window of audio at a time.
type Detector interface {
	// SpeechProbability returns the probability in [0, 1] that window
	// contains speech. window is mono float32 PCM in [-1, 1] of exactly
	// WindowSize samples; shorter final windows are zero-padded by the
	// caller.
	SpeechProbability(window []float32) (float64, error)

	// Reset clears any recurrent model state, e.g. between utterances or
	// after an interrupt.
	Reset()

	// Close releases model resources. After Close the detector must not be
	// used.
	Close() error
}
