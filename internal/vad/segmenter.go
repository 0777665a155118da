// Package vad implements the streaming voice-activity state machine that
// turns continuous PCM into discrete utterances.
//
// The machine consumes fixed 512-sample windows at 16 kHz. Each window is
// reduced to a model speech probability and an RMS dB level, both smoothed
// by a trailing mean; hysteresis counters gate the IDLE/ACTIVE/INACTIVE
// transitions so single-window blips never flip the state. A bounded
// pre-roll ring of whole windows captures the utterance onset before the
// hysteresis confirmed it.
//
// A Segmenter is session-local and not safe for concurrent use; the session
// manager feeds it from one goroutine.
package vad

import (
	"context"
	"fmt"
	"time"

	"github.com/anima-voice/anima/internal/resilience"
	vadprov "github.com/anima-voice/anima/pkg/provider/vad"
	"github.com/anima-voice/anima/pkg/provider/vad/energy"
)

// State is the segmenter's hysteresis state.
type State int

const (
	// StateIdle means no utterance in progress.
	StateIdle State = iota
	// StateActive means speech confirmed and accumulating.
	StateActive
	// StateInactive means a possible utterance end, still accumulating.
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind discriminates segmenter events.
type EventKind int

const (
	// SpeechStart fires on the IDLE to ACTIVE transition.
	SpeechStart EventKind = iota
	// SpeechEnd fires on the INACTIVE to IDLE transition (or a forced end)
	// and carries the utterance samples.
	SpeechEnd
)

// Event is emitted by Process when the state machine crosses an utterance
// boundary. Samples is populated only for SpeechEnd.
type Event struct {
	Kind    EventKind
	Samples []float32
}

// Config holds the segmenter tuning knobs.
type Config struct {
	// SmoothingWindow is the trailing-mean width in windows.
	SmoothingWindow int
	// ProbThreshold is the minimum smoothed speech probability.
	ProbThreshold float64
	// DBThreshold is the minimum smoothed level in dB (int16 scale).
	DBThreshold float64
	// RequiredHits is the count of consecutive speech windows to enter or
	// re-enter ACTIVE.
	RequiredHits int
	// RequiredMisses is the count of consecutive non-speech windows to
	// leave ACTIVE and, again, to leave INACTIVE.
	RequiredMisses int
	// PreRollWindows bounds the pre-roll ring.
	PreRollWindows int
	// MinUtteranceBytes is the minimum utterance size in int16 bytes
	// (2 bytes per sample); shorter utterances are discarded silently.
	MinUtteranceBytes int
	// Timeout forces a synthetic speech end when an utterance stays open
	// this long. Enforced by the session manager via Deadline/ForceEnd.
	Timeout time.Duration
}

// DefaultConfig returns the standard tuning: ~32 ms windows, 5-window
// smoothing, 3 hits to open, 24 misses to close, 20 windows of pre-roll,
// 8000-byte minimum utterance, 15 s rescue timeout.
func DefaultConfig() Config {
	return Config{
		SmoothingWindow:   5,
		ProbThreshold:     0.4,
		DBThreshold:       60,
		RequiredHits:      3,
		RequiredMisses:    24,
		PreRollWindows:    20,
		MinUtteranceBytes: 8000,
		Timeout:           15 * time.Second,
	}
}

// Segmenter is the per-session streaming VAD state machine.
type Segmenter struct {
	cfg       Config
	detectors []vadprov.Detector
	group     *resilience.FallbackGroup[vadprov.Detector]

	state   State
	pending []float32 // partial window carried between Process calls

	probHist []float64
	dbHist   []float64

	hits   int
	misses int

	preRoll   [][]float32
	utterance []float32
}

// NewSegmenter builds a Segmenter over one or more detectors. The first
// detector is primary; the rest are fallbacks tried in order when scoring
// fails (e.g. the model runtime dies mid-session).
func NewSegmenter(cfg Config, primary vadprov.Detector, fallbacks ...vadprov.Detector) *Segmenter {
	detectors := append([]vadprov.Detector{primary}, fallbacks...)
	group := resilience.NewFallbackGroup[vadprov.Detector]()
	for i, det := range detectors {
		name := fmt.Sprintf("detector-%d", i)
		if i == 0 {
			name = "primary"
		}
		group.Add(name, det)
	}
	return &Segmenter{
		cfg:       cfg,
		detectors: detectors,
		group:     group,
	}
}

// State returns the current hysteresis state.
func (s *Segmenter) State() State {
	return s.state
}

// Timeout returns the configured rescue timeout.
func (s *Segmenter) Timeout() time.Duration {
	return s.cfg.Timeout
}

// InSpeech reports whether an utterance is open (ACTIVE or INACTIVE).
func (s *Segmenter) InSpeech() bool {
	return s.state != StateIdle
}

// UtteranceLen returns the number of samples accumulated for the open
// utterance.
func (s *Segmenter) UtteranceLen() int {
	return len(s.utterance)
}

// Process consumes a chunk of PCM samples and returns the boundary events it
// produced, in order. A chunk whose absolute range exceeds 1.0 is assumed
// int16-encoded and normalized by 1/32767 first.
func (s *Segmenter) Process(ctx context.Context, samples []float32) ([]Event, error) {
	samples = normalize(samples)
	s.pending = append(s.pending, samples...)

	var events []Event
	for len(s.pending) >= vadprov.WindowSize {
		window := make([]float32, vadprov.WindowSize)
		copy(window, s.pending[:vadprov.WindowSize])
		s.pending = s.pending[vadprov.WindowSize:]

		ev, err := s.step(ctx, window)
		if err != nil {
			return events, err
		}
		events = append(events, ev...)
	}
	return events, nil
}

// ForceEnd synthesizes a speech end from the current accumulated buffer, as
// the timeout rescue does when a detector sticks in ACTIVE. It returns nil
// if no utterance is open or the buffer is below the minimum.
func (s *Segmenter) ForceEnd() *Event {
	if s.state == StateIdle {
		return nil
	}
	utterance := s.utterance
	s.reset()
	if len(utterance)*2 < s.cfg.MinUtteranceBytes {
		return nil
	}
	return &Event{Kind: SpeechEnd, Samples: utterance}
}

// Reset returns the machine to IDLE, dropping any open utterance.
func (s *Segmenter) Reset() {
	s.reset()
}

// Close releases all detectors.
func (s *Segmenter) Close() error {
	var firstErr error
	for _, det := range s.detectors {
		if err := det.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// step advances the machine by one complete window.
func (s *Segmenter) step(ctx context.Context, window []float32) ([]Event, error) {
	prob, err := s.score(ctx, window)
	if err != nil {
		return nil, err
	}
	db := energy.DecibelLevel(window)

	smoothedProb := pushMean(&s.probHist, prob, s.cfg.SmoothingWindow)
	smoothedDB := pushMean(&s.dbHist, db, s.cfg.SmoothingWindow)

	isSpeech := smoothedProb >= s.cfg.ProbThreshold && smoothedDB >= s.cfg.DBThreshold

	var events []Event
	switch s.state {
	case StateIdle:
		s.pushPreRoll(window)
		if isSpeech {
			s.hits++
			if s.hits >= s.cfg.RequiredHits {
				s.state = StateActive
				s.hits = 0
				s.misses = 0
				s.utterance = flatten(s.preRoll)
				s.preRoll = nil
				events = append(events, Event{Kind: SpeechStart})
			}
		} else {
			s.hits = 0
		}

	case StateActive:
		s.utterance = append(s.utterance, window...)
		if isSpeech {
			s.misses = 0
		} else {
			s.misses++
			if s.misses >= s.cfg.RequiredMisses {
				s.state = StateInactive
				s.hits = 0
				s.misses = 0
			}
		}

	case StateInactive:
		s.utterance = append(s.utterance, window...)
		if isSpeech {
			s.misses = 0
			s.hits++
			if s.hits >= s.cfg.RequiredHits {
				s.state = StateActive
				s.hits = 0
			}
		} else {
			s.hits = 0
			s.misses++
			if s.misses >= s.cfg.RequiredMisses {
				utterance := s.utterance
				s.reset()
				if len(utterance)*2 >= s.cfg.MinUtteranceBytes {
					events = append(events, Event{Kind: SpeechEnd, Samples: utterance})
				}
			}
		}
	}

	return events, nil
}

// score reduces one window to a speech probability, degrading through the
// detector fallback chain on failure.
func (s *Segmenter) score(ctx context.Context, window []float32) (float64, error) {
	var prob float64
	err := s.group.Execute(ctx, func(_ context.Context, _ string, det vadprov.Detector) error {
		p, err := det.SpeechProbability(window)
		if err != nil {
			return err
		}
		prob = p
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("score window: %w", err)
	}
	return prob, nil
}

func (s *Segmenter) pushPreRoll(window []float32) {
	if s.cfg.PreRollWindows <= 0 {
		return
	}
	s.preRoll = append(s.preRoll, window)
	if len(s.preRoll) > s.cfg.PreRollWindows {
		s.preRoll = s.preRoll[1:]
	}
}

func (s *Segmenter) reset() {
	s.state = StateIdle
	s.hits = 0
	s.misses = 0
	s.utterance = nil
	s.preRoll = nil
	s.probHist = nil
	s.dbHist = nil
	for _, det := range s.detectors {
		det.Reset()
	}
}

// pushMean appends v to hist, trims it to width, and returns the mean.
func pushMean(hist *[]float64, v float64, width int) float64 {
	if width <= 0 {
		width = 1
	}
	*hist = append(*hist, v)
	if len(*hist) > width {
		*hist = (*hist)[len(*hist)-width:]
	}
	var sum float64
	for _, h := range *hist {
		sum += h
	}
	return sum / float64(len(*hist))
}

// normalize rescales an int16-encoded chunk into [-1, 1]. A chunk already in
// range is returned unchanged.
func normalize(samples []float32) []float32 {
	needs := false
	for _, v := range samples {
		if v > 1 || v < -1 {
			needs = true
			break
		}
	}
	if !needs {
		return samples
	}
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = v / 32767
	}
	return out
}

func flatten(windows [][]float32) []float32 {
	n := 0
	for _, w := range windows {
		n += len(w)
	}
	out := make([]float32, 0, n)
	for _, w := range windows {
		out = append(out, w...)
	}
	return out
}
