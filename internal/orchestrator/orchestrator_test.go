package orchestrator_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/anima-voice/anima/internal/eventbus"
	"github.com/anima-voice/anima/internal/orchestrator"
	"github.com/anima-voice/anima/internal/pipeline"
	agentmock "github.com/anima-voice/anima/pkg/provider/agent/mock"
	ttsmock "github.com/anima-voice/anima/pkg/provider/tts/mock"
	"github.com/anima-voice/anima/pkg/types"
)

// recorder collects bus events by type, in dispatch order.
type recorder struct {
	events []eventbus.Event
}

func (r *recorder) handler() eventbus.Handler {
	return func(_ context.Context, ev eventbus.Event) error {
		r.events = append(r.events, ev)
		return nil
	}
}

func (r *recorder) ofType(eventType string) []eventbus.Event {
	var out []eventbus.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func textChunks(parts ...string) []types.Chunk {
	out := make([]types.Chunk, len(parts))
	for i, p := range parts {
		out[i] = types.Chunk{Type: types.ChunkText, Text: p}
	}
	return out
}

func TestProcessText_PlainTurn(t *testing.T) {
	t.Parallel()
	agent := &agentmock.Provider{Chunks: textChunks("你好，", "很高兴见到你")}
	o := orchestrator.New(orchestrator.Services{Agent: agent}, orchestrator.Config{})

	rec := &recorder{}
	o.RegisterHandler(eventbus.TypeSentence, rec.handler(), 0)
	o.RegisterHandler(eventbus.TypeExpression, rec.handler(), 0)

	result := o.ProcessText(context.Background(), "你好", nil, "")

	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Response != "你好，很高兴见到你" {
		t.Errorf("Response = %q", result.Response)
	}
	if result.AudioPath != "" {
		t.Errorf("AudioPath = %q, want empty without TTS", result.AudioPath)
	}

	sentences := rec.ofType(eventbus.TypeSentence)
	if len(sentences) != 3 {
		t.Fatalf("got %d sentence events, want 2 deltas + marker", len(sentences))
	}
	var concat string
	for _, ev := range sentences[:2] {
		concat += ev.Data.(string)
	}
	if concat != result.Response {
		t.Errorf("delta bodies concat to %q, want %q", concat, result.Response)
	}
	marker := sentences[2]
	if marker.Data != "" || marker.Seq <= sentences[1].Seq {
		t.Errorf("marker = %+v, want empty body with greater seq", marker)
	}

	expressions := rec.ofType(eventbus.TypeExpression)
	var names []string
	for _, ev := range expressions {
		names = append(names, ev.Data.(string))
	}
	want := []string{
		orchestrator.ExpressionThinking,
		orchestrator.ExpressionSpeaking,
		orchestrator.ExpressionIdle,
	}
	if len(names) != len(want) {
		t.Fatalf("expressions = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expression %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestProcessText_EmotionTagsDriveExpressionTimeline(t *testing.T) {
	t.Parallel()
	agent := &agentmock.Provider{
		Chunks: textChunks("你好 [happy] 今天天气不错 [neutral]"),
	}
	tts := &ttsmock.Provider{Dir: t.TempDir()}
	o := orchestrator.New(orchestrator.Services{Agent: agent, TTS: tts}, orchestrator.Config{})

	rec := &recorder{}
	o.RegisterHandler(eventbus.TypeAudio, rec.handler(), 0)
	o.RegisterHandler(eventbus.TypeAudioWithExpression, rec.handler(), 0)

	result := o.ProcessText(context.Background(), "今天怎样", nil, "")
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Response != "你好  今天天气不错 " {
		t.Errorf("Response = %q", result.Response)
	}
	if result.AudioPath == "" {
		t.Error("AudioPath empty, want synthesized file")
	}

	if plain := rec.ofType(eventbus.TypeAudio); len(plain) != 0 {
		t.Errorf("got %d plain audio events, want 0 when tags are present", len(plain))
	}
	withExpr := rec.ofType(eventbus.TypeAudioWithExpression)
	if len(withExpr) != 1 {
		t.Fatalf("got %d audio_with_expression events, want exactly 1", len(withExpr))
	}

	payload := withExpr[0].Data.(orchestrator.AudioPayload)
	if payload.Text != result.Response {
		t.Errorf("payload text = %q, want %q", payload.Text, result.Response)
	}
	if len(payload.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(payload.Segments))
	}
	if payload.Segments[0].Emotion != "happy" || payload.Segments[1].Emotion != "neutral" {
		t.Errorf("segments = %v", payload.Segments)
	}
	var sum float64
	for _, seg := range payload.Segments {
		sum += seg.Duration()
	}
	if math.Abs(sum-payload.TotalDuration) > 0.001 {
		t.Errorf("segment durations sum to %g, want %g", sum, payload.TotalDuration)
	}
	if len(payload.Envelope) == 0 {
		t.Error("payload has no volume envelope")
	}
}

func TestProcessText_PlainAudioWhenNoTags(t *testing.T) {
	t.Parallel()
	agent := &agentmock.Provider{Chunks: textChunks("just words")}
	tts := &ttsmock.Provider{Dir: t.TempDir()}
	o := orchestrator.New(orchestrator.Services{Agent: agent, TTS: tts}, orchestrator.Config{})

	rec := &recorder{}
	o.RegisterHandler(eventbus.TypeAudio, rec.handler(), 0)
	o.RegisterHandler(eventbus.TypeAudioWithExpression, rec.handler(), 0)

	result := o.ProcessText(context.Background(), "hi", nil, "")
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if len(rec.ofType(eventbus.TypeAudio)) != 1 {
		t.Error("want exactly one plain audio event")
	}
	if len(rec.ofType(eventbus.TypeAudioWithExpression)) != 0 {
		t.Error("audio_with_expression emitted without emotion tags")
	}
}

func TestInterrupt_StopsTurnAndSuppressesMarkerAndAudio(t *testing.T) {
	t.Parallel()
	agent := &agentmock.Provider{Chunks: textChunks("first ", "second ", "third")}
	tts := &ttsmock.Provider{Dir: t.TempDir()}
	o := orchestrator.New(orchestrator.Services{Agent: agent, TTS: tts}, orchestrator.Config{})

	rec := &recorder{}
	o.RegisterHandler(eventbus.TypeAudio, rec.handler(), 0)
	o.RegisterHandler(eventbus.TypeAudioWithExpression, rec.handler(), 0)
	o.RegisterHandler(eventbus.TypeExpression, rec.handler(), 0)

	var sentences []eventbus.Event
	o.RegisterHandler(eventbus.TypeSentence, func(_ context.Context, ev eventbus.Event) error {
		sentences = append(sentences, ev)
		if len(sentences) == 1 {
			o.Interrupt("first")
			o.Interrupt("first") // idempotent
		}
		return nil
	}, 0)

	result := o.ProcessText(context.Background(), "go on", nil, "")

	if result.Success || !result.Interrupted {
		t.Fatalf("result = %+v, want interrupted failure", result)
	}
	for _, ev := range sentences {
		if isComplete, _ := ev.Metadata["is_complete"].(bool); isComplete {
			t.Error("completion marker emitted despite interrupt")
		}
	}
	if audio := rec.ofType(eventbus.TypeAudio); len(audio) != 0 {
		t.Errorf("audio emitted despite interrupt: %v", audio)
	}
	if len(tts.SynthesizeCalls) != 0 {
		t.Errorf("TTS called %d times despite interrupt", len(tts.SynthesizeCalls))
	}

	surprised := 0
	for _, ev := range rec.ofType(eventbus.TypeExpression) {
		if ev.Data == orchestrator.ExpressionSurprised {
			surprised++
		}
	}
	if surprised != 1 {
		t.Errorf("surprised expression emitted %d times, want 1 (edge-triggered)", surprised)
	}

	if result.HeardResponse == "" || !strings.HasPrefix(result.Response, result.HeardResponse) {
		t.Errorf("HeardResponse = %q, want non-empty prefix of %q", result.HeardResponse, result.Response)
	}

	// The session stays usable.
	next := o.ProcessText(context.Background(), "again", nil, "")
	if !next.Success {
		t.Errorf("turn after interrupt = %+v, want success", next)
	}
}

func TestProcessText_AgentStreamErrorFailsTurn(t *testing.T) {
	t.Parallel()
	agent := &agentmock.Provider{StreamErr: errors.New("model offline")}
	o := orchestrator.New(orchestrator.Services{Agent: agent}, orchestrator.Config{})

	rec := &recorder{}
	o.RegisterHandler(eventbus.TypeError, rec.handler(), 0)

	result := o.ProcessText(context.Background(), "hello", nil, "")
	if result.Success || result.Err == nil {
		t.Fatalf("result = %+v, want failure with error", result)
	}
	if len(rec.ofType(eventbus.TypeError)) != 1 {
		t.Error("want exactly one error event on the bus")
	}
}

func TestProcessAudio_NilSamplesFailValidation(t *testing.T) {
	t.Parallel()
	agent := &agentmock.Provider{Chunks: textChunks("unused")}
	o := orchestrator.New(orchestrator.Services{Agent: agent}, orchestrator.Config{})

	rec := &recorder{}
	o.RegisterHandler(eventbus.TypeError, rec.handler(), 0)

	// mic_audio_end with nothing buffered hands over nil samples. That is
	// still an audio turn and must fail validation, not run as empty text.
	result := o.ProcessAudio(context.Background(), nil, nil)
	if result.Success {
		t.Fatalf("result = %+v, want failure", result)
	}
	if !errors.Is(result.Err, pipeline.ErrEmptyAudio) {
		t.Fatalf("Err = %v, want ErrEmptyAudio", result.Err)
	}
	if len(agent.ChatCalls) != 0 {
		t.Errorf("agent called %d times on an empty utterance", len(agent.ChatCalls))
	}
	if len(rec.ofType(eventbus.TypeError)) != 1 {
		t.Error("want exactly one error event on the bus")
	}
}

func TestProcessAudio_NoRecognizerIsSoftFailure(t *testing.T) {
	t.Parallel()
	agent := &agentmock.Provider{Chunks: textChunks("unused")}
	o := orchestrator.New(orchestrator.Services{Agent: agent}, orchestrator.Config{})

	result := o.ProcessAudio(context.Background(), make([]float32, 1600), nil)
	if result.Success || result.Err == nil {
		t.Fatalf("result = %+v, want soft failure", result)
	}
	if len(agent.ChatCalls) != 0 {
		t.Error("agent consulted despite failed input pipeline")
	}
}
