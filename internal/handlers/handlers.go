// Package handlers translates internal bus events into outbound wire
// frames. The adapter is stateless per message and never mutates the
// events it observes, so other handlers on the same bus see them
// unchanged.
package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/anima-voice/anima/internal/eventbus"
	"github.com/anima-voice/anima/internal/orchestrator"
	"github.com/anima-voice/anima/internal/protocol"
)

// Sender delivers one outbound frame to the client. The server provides a
// per-session implementation that serializes writes.
type Sender func(ctx context.Context, msg any) error

// Attach registers the full sink handler set on the orchestrator's bus,
// forwarding every outbound-relevant event through send.
func Attach(o *orchestrator.Orchestrator, send Sender) {
	a := &adapter{fromName: o.FromName(), send: send}
	o.RegisterHandler(eventbus.TypeSentence, a.onSentence, 0)
	o.RegisterHandler(eventbus.TypeToolCall, a.onToolCall, 0)
	o.RegisterHandler(eventbus.TypeUserTranscript, a.onTranscript, 0)
	o.RegisterHandler(eventbus.TypeAudio, a.onAudio, 0)
	o.RegisterHandler(eventbus.TypeAudioWithExpression, a.onAudioWithExpression, 0)
	o.RegisterHandler(eventbus.TypeExpression, a.onExpression, 0)
	o.RegisterHandler(eventbus.TypeError, a.onError, 0)
}

type adapter struct {
	fromName string
	send     Sender
}

// onSentence renames sentence to text. The completion marker (empty body,
// is_complete metadata) carries from_name so the client can close the
// streamed message; deltas go out bare.
func (a *adapter) onSentence(ctx context.Context, ev eventbus.Event) error {
	body, _ := ev.Data.(string)
	msg := protocol.Text{Type: "text", Text: body, Seq: ev.Seq}
	if isComplete(ev) {
		msg.FromName = a.fromName
	}
	return a.send(ctx, msg)
}

// onToolCall has no wire mapping; tool calls are an internal concern. Kept
// as a handler so the sequenced stream is still observable in debug logs.
func (a *adapter) onToolCall(_ context.Context, ev eventbus.Event) error {
	slog.Debug("tool call emitted", "seq", ev.Seq)
	return nil
}

func (a *adapter) onTranscript(ctx context.Context, ev eventbus.Event) error {
	text, _ := ev.Data.(string)
	return a.send(ctx, protocol.NewTranscript(text))
}

func (a *adapter) onAudio(ctx context.Context, ev eventbus.Event) error {
	payload, ok := ev.Data.(orchestrator.AudioPayload)
	if !ok {
		return fmt.Errorf("audio event carries %T, want AudioPayload", ev.Data)
	}
	data, err := encodeAudioFile(payload.Path)
	if err != nil {
		return err
	}
	return a.send(ctx, protocol.Audio{
		Type:      "audio",
		AudioData: data,
		Format:    payload.Format,
		Seq:       ev.Seq,
	})
}

func (a *adapter) onAudioWithExpression(ctx context.Context, ev eventbus.Event) error {
	payload, ok := ev.Data.(orchestrator.AudioPayload)
	if !ok {
		return fmt.Errorf("audio_with_expression event carries %T, want AudioPayload", ev.Data)
	}
	data, err := encodeAudioFile(payload.Path)
	if err != nil {
		return err
	}

	segments := make([]protocol.ExpressionSegment, len(payload.Segments))
	for i, seg := range payload.Segments {
		segments[i] = protocol.ExpressionSegment{
			Emotion:   seg.Emotion,
			Time:      seg.Start,
			Duration:  seg.Duration(),
			Intensity: seg.Intensity,
		}
	}

	return a.send(ctx, protocol.AudioWithExpression{
		Type:      "audio_with_expression",
		AudioData: data,
		Format:    payload.Format,
		Volumes:   payload.Envelope,
		Expressions: protocol.Expressions{
			Segments:      segments,
			TotalDuration: payload.TotalDuration,
		},
		Text: payload.Text,
		Seq:  ev.Seq,
	})
}

func (a *adapter) onExpression(ctx context.Context, ev eventbus.Event) error {
	name, _ := ev.Data.(string)
	timestamp, _ := ev.Metadata["timestamp"].(int64)
	return a.send(ctx, protocol.Expression{
		Type:       "expression",
		Expression: name,
		Timestamp:  timestamp,
	})
}

func (a *adapter) onError(ctx context.Context, ev eventbus.Event) error {
	message, _ := ev.Data.(string)
	return a.send(ctx, protocol.Error{Type: "error", Message: message, Seq: ev.Seq})
}

func isComplete(ev eventbus.Event) bool {
	v, ok := ev.Metadata["is_complete"].(bool)
	return ok && v
}

func encodeAudioFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read synthesized audio: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
