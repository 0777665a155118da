package handlers_test

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/anima-voice/anima/internal/handlers"
	"github.com/anima-voice/anima/internal/orchestrator"
	"github.com/anima-voice/anima/internal/protocol"
	agentmock "github.com/anima-voice/anima/pkg/provider/agent/mock"
	ttsmock "github.com/anima-voice/anima/pkg/provider/tts/mock"
	"github.com/anima-voice/anima/pkg/types"
)

type sink struct {
	mu     sync.Mutex
	frames []any
}

func (s *sink) send(_ context.Context, msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, msg)
	return nil
}

func TestAttach_TextTurnFrames(t *testing.T) {
	t.Parallel()
	agent := &agentmock.Provider{
		Chunks: []types.Chunk{
			{Type: types.ChunkText, Text: "well "},
			{Type: types.ChunkText, Text: "hello"},
		},
	}
	o := orchestrator.New(orchestrator.Services{Agent: agent}, orchestrator.Config{FromName: "Mira"})
	s := &sink{}
	handlers.Attach(o, s.send)

	result := o.ProcessText(context.Background(), "hi", nil, "")
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}

	var texts []protocol.Text
	var expressions []protocol.Expression
	for _, f := range s.frames {
		switch v := f.(type) {
		case protocol.Text:
			texts = append(texts, v)
		case protocol.Expression:
			expressions = append(expressions, v)
		}
	}

	if len(texts) != 3 {
		t.Fatalf("got %d text frames, want 2 deltas + marker", len(texts))
	}
	if texts[0].FromName != "" || texts[1].FromName != "" {
		t.Error("delta frames carry from_name")
	}
	marker := texts[2]
	if marker.Text != "" || marker.FromName != "Mira" {
		t.Errorf("marker = %+v, want empty text with from_name", marker)
	}
	for i, txt := range texts {
		if txt.Seq != i {
			t.Errorf("text frame %d has seq %d", i, txt.Seq)
		}
	}

	if len(expressions) != 3 {
		t.Fatalf("got %d expression frames, want thinking/speaking/idle", len(expressions))
	}
	for _, e := range expressions {
		if e.Timestamp == 0 {
			t.Errorf("expression %q has zero timestamp", e.Expression)
		}
	}
}

func TestAttach_AudioWithExpressionFrame(t *testing.T) {
	t.Parallel()
	agent := &agentmock.Provider{
		Chunks: []types.Chunk{{Type: types.ChunkText, Text: "good [happy] news"}},
	}
	tts := &ttsmock.Provider{Dir: t.TempDir()}
	o := orchestrator.New(orchestrator.Services{Agent: agent, TTS: tts}, orchestrator.Config{})
	s := &sink{}
	handlers.Attach(o, s.send)

	result := o.ProcessText(context.Background(), "any news?", nil, "")
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}

	var frame protocol.AudioWithExpression
	found := false
	for _, f := range s.frames {
		if v, ok := f.(protocol.AudioWithExpression); ok {
			frame = v
			found = true
		}
		if _, ok := f.(protocol.Audio); ok {
			t.Error("plain audio frame sent alongside audio_with_expression")
		}
	}
	if !found {
		t.Fatal("no audio_with_expression frame sent")
	}

	if frame.Format != "wav" {
		t.Errorf("format = %q, want wav", frame.Format)
	}
	if _, err := base64.StdEncoding.DecodeString(frame.AudioData); err != nil {
		t.Errorf("audio_data is not valid base64: %v", err)
	}
	if frame.Text != result.Response {
		t.Errorf("frame text = %q, want %q", frame.Text, result.Response)
	}
	if len(frame.Expressions.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(frame.Expressions.Segments))
	}
	seg := frame.Expressions.Segments[0]
	if seg.Emotion != "happy" || seg.Time != 0 {
		t.Errorf("segment = %+v", seg)
	}
	if seg.Duration != frame.Expressions.TotalDuration {
		t.Errorf("single segment duration %g != total %g", seg.Duration, frame.Expressions.TotalDuration)
	}
	if len(frame.Volumes) == 0 {
		t.Error("frame has no volume envelope")
	}
}
