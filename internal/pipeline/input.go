package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anima-voice/anima/internal/eventbus"
	"github.com/anima-voice/anima/internal/observe"
	"github.com/anima-voice/anima/pkg/provider/asr"
)

// Soft validation failures recorded on Context.Err.
var (
	ErrEmptyAudio = errors.New("empty audio input")
	ErrNoText     = errors.New("no text recognized")
)

// RecognizeStep fills Context.Text: PCM input goes through the ASR
// provider (emitting a user-transcript event on success and an error event
// on failure, both soft); string input is copied through.
type RecognizeStep struct {
	ASR asr.Provider
	Bus *eventbus.Bus

	// Metrics records recognition latency. Nil disables recording.
	Metrics *observe.Metrics
}

// Name implements Step.
func (s *RecognizeStep) Name() string { return "recognize" }

// Enabled implements Step.
func (s *RecognizeStep) Enabled() bool { return true }

// Process implements Step.
func (s *RecognizeStep) Process(ctx context.Context, pc *Context) error {
	if !pc.HasAudio() {
		pc.Text = pc.RawText
		return nil
	}

	if len(pc.RawAudio) == 0 {
		pc.Err = ErrEmptyAudio
		s.emitError(ctx, pc.Err)
		return nil
	}
	if s.ASR == nil {
		pc.Err = errors.New("audio input but no recognition provider configured")
		s.emitError(ctx, pc.Err)
		return nil
	}

	start := time.Now()
	text, err := s.ASR.Transcribe(ctx, pc.RawAudio)
	if err != nil {
		pc.Err = fmt.Errorf("recognize: %w", err)
		s.emitError(ctx, pc.Err)
		return nil
	}
	if s.Metrics != nil {
		s.Metrics.ASRDuration.Record(ctx, time.Since(start).Seconds())
	}
	if strings.TrimSpace(text) == "" {
		pc.Err = ErrNoText
		s.emitError(ctx, pc.Err)
		return nil
	}

	pc.Text = text
	if s.Bus != nil {
		s.Bus.Emit(ctx, eventbus.Event{
			Type:     eventbus.TypeUserTranscript,
			Data:     text,
			Metadata: map[string]any{"is_final": true},
		})
	}
	return nil
}

func (s *RecognizeStep) emitError(ctx context.Context, err error) {
	if s.Bus == nil {
		return
	}
	s.Bus.Emit(ctx, eventbus.Event{Type: eventbus.TypeError, Data: err.Error()})
}

// CleanStep trims and collapses whitespace in Context.Text and optionally
// strips emoji (for personas configured not to speak them aloud).
type CleanStep struct {
	StripEmoji bool
}

// Name implements Step.
func (s *CleanStep) Name() string { return "clean" }

// Enabled implements Step.
func (s *CleanStep) Enabled() bool { return true }

// Process implements Step.
func (s *CleanStep) Process(_ context.Context, pc *Context) error {
	text := pc.Text
	if s.StripEmoji {
		text = stripEmoji(text)
	}
	pc.Text = strings.Join(strings.Fields(text), " ")
	return nil
}

// stripEmoji drops runes in the common emoji and symbol planes, including
// variation selectors and zero-width joiners left behind by sequences.
func stripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // mahjong through symbols-extended
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0x200D || r == 0xFE0E || r == 0xFE0F: // ZWJ, variation selectors
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	}
	return false
}
