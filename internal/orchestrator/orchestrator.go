// Package orchestrator owns one session's conversational turn: input
// pipeline, agent stream, emotion extraction, synthesis, and the event
// fan-out to sink handlers.
//
// The orchestrator itself does not serialize turns — the session manager
// guarantees at most one ProcessText/ProcessAudio in flight per session.
// Interrupt is callable at any time from any goroutine.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/anima-voice/anima/internal/audio"
	"github.com/anima-voice/anima/internal/emotion"
	"github.com/anima-voice/anima/internal/eventbus"
	"github.com/anima-voice/anima/internal/observe"
	"github.com/anima-voice/anima/internal/pipeline"
	"github.com/anima-voice/anima/pkg/provider/agent"
	"github.com/anima-voice/anima/pkg/provider/asr"
	"github.com/anima-voice/anima/pkg/provider/tts"
	"github.com/anima-voice/anima/pkg/types"
)

// Expression names emitted around a turn.
const (
	ExpressionThinking  = "thinking"
	ExpressionSpeaking  = "speaking"
	ExpressionIdle      = "idle"
	ExpressionSurprised = "surprised"
)

// Services are the per-session provider instances driving one orchestrator.
// Agent is required; ASR and TTS are optional (text-only and silent
// deployments).
type Services struct {
	Agent agent.Provider
	ASR   asr.Provider
	TTS   tts.Provider
}

// Close releases all providers.
func (s Services) Close() error {
	var firstErr error
	if s.Agent != nil {
		if err := s.Agent.Close(); err != nil {
			firstErr = err
		}
	}
	if s.ASR != nil {
		if err := s.ASR.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.TTS != nil {
		if err := s.TTS.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Config tunes one orchestrator.
type Config struct {
	// FromName is the agent's display name on outbound events. Defaults
	// to "AI".
	FromName string

	// StripEmoji enables emoji removal in the clean step.
	StripEmoji bool

	// Extractor strips inline emotion tags. Nil means a permissive
	// extractor.
	Extractor *emotion.Extractor

	// Timeline builds expression timelines. Nil means position strategy
	// with neutral default.
	Timeline *emotion.Timeline

	// Analyzer computes duration and envelope from synthesized audio.
	// Nil means default envelope rate.
	Analyzer *audio.Analyzer

	// Metrics records turn telemetry. Nil disables recording.
	Metrics *observe.Metrics
}

// AudioPayload is the Data of audio and audio_with_expression events.
type AudioPayload struct {
	// Path of the synthesized audio file.
	Path string
	// Format derived from the file extension ("wav", "mp3").
	Format string
	// Text is the cleaned response text being spoken.
	Text string
	// Envelope is the normalized volume envelope.
	Envelope []float64
	// Segments is the expression timeline; empty for plain audio events.
	Segments []emotion.Segment
	// TotalDuration is the audio length in seconds.
	TotalDuration float64
}

// Result is the outcome of one turn.
type Result struct {
	Success     bool
	Interrupted bool
	// Response is the cleaned response text (tags removed).
	Response string
	// AudioPath is empty when no audio was synthesized.
	AudioPath string
	// HeardResponse is the response prefix the user actually heard before
	// interrupting, aligned from the client-reported heard text.
	HeardResponse string
	// Err carries the turn failure, nil on success or plain interrupt.
	Err error
}

// Orchestrator runs one session's turns.
type Orchestrator struct {
	svc Services
	cfg Config

	bus    *eventbus.Bus
	router *eventbus.Router
	input  *pipeline.Input
	output *pipeline.Output

	started     atomic.Bool
	interrupted atomic.Bool

	mu         sync.Mutex
	cancelTurn context.CancelFunc
	heardText  string
}

// New assembles an orchestrator with the default input pipeline
// (recognize, clean) over its own bus and router.
func New(svc Services, cfg Config) *Orchestrator {
	if cfg.FromName == "" {
		cfg.FromName = "AI"
	}
	if cfg.Extractor == nil {
		cfg.Extractor = &emotion.Extractor{}
	}
	if cfg.Timeline == nil {
		cfg.Timeline = emotion.NewTimeline(emotion.TimelineConfig{})
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = &audio.Analyzer{}
	}

	bus := eventbus.New()
	o := &Orchestrator{
		svc:    svc,
		cfg:    cfg,
		bus:    bus,
		router: eventbus.NewRouter(bus),
		output: pipeline.NewOutput(bus),
	}
	o.input = pipeline.NewInput(
		&pipeline.RecognizeStep{ASR: svc.ASR, Bus: bus, Metrics: cfg.Metrics},
		&pipeline.CleanStep{StripEmoji: cfg.StripEmoji},
	)
	return o
}

// FromName returns the agent display name.
func (o *Orchestrator) FromName() string {
	return o.cfg.FromName
}

// Agent exposes the session's agent provider for history operations.
func (o *Orchestrator) Agent() agent.Provider {
	return o.svc.Agent
}

// RegisterHandler proxies to the router: queued before the first turn,
// mounted immediately afterwards. Returns the orchestrator for chaining.
func (o *Orchestrator) RegisterHandler(eventType string, h eventbus.Handler, priority int) *Orchestrator {
	o.router.Register(eventType, h, priority)
	return o
}

// ProcessText runs one turn over a text input.
func (o *Orchestrator) ProcessText(ctx context.Context, text string, metadata map[string]any, fromName string) Result {
	return o.processTurn(ctx, &pipeline.Context{
		RawText:  text,
		FromName: fromName,
		Metadata: metadata,
	})
}

// ProcessAudio runs one turn over a complete utterance of 16 kHz mono
// float32 PCM.
func (o *Orchestrator) ProcessAudio(ctx context.Context, samples []float32, metadata map[string]any) Result {
	return o.processTurn(ctx, &pipeline.Context{
		RawAudio: samples,
		IsAudio:  true,
		Metadata: metadata,
	})
}

// Interrupt cancels the ongoing turn at its next synchronization point:
// the output pipeline stops at the chunk boundary, the agent stream is
// cancelled, TTS is skipped, and no completion marker is emitted.
// heardText is the client's report of what was actually heard; it refines
// the conversation history. Edge-triggered and idempotent.
func (o *Orchestrator) Interrupt(heardText string) {
	if !o.interrupted.CompareAndSwap(false, true) {
		return
	}
	o.output.Interrupt()

	o.mu.Lock()
	o.heardText = heardText
	cancel := o.cancelTurn
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.emitExpression(context.Background(), ExpressionSurprised)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.Interrupts.Add(context.Background(), 1)
	}
}

// Stop tears the orchestrator down: cancels any in-flight turn and clears
// every mounted handler. A stopped orchestrator can be restarted by the
// next turn.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancelTurn
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.router.Clear()
	o.started.Store(false)
}

// processTurn implements the turn algorithm.
func (o *Orchestrator) processTurn(ctx context.Context, pc *pipeline.Context) Result {
	start := time.Now()
	result := o.runTurn(ctx, pc)

	if o.cfg.Metrics != nil {
		status := "ok"
		switch {
		case result.Interrupted:
			status = "interrupted"
		case !result.Success:
			status = "failed"
		}
		o.cfg.Metrics.RecordTurn(ctx, status, time.Since(start).Seconds())
	}
	return result
}

func (o *Orchestrator) runTurn(ctx context.Context, pc *pipeline.Context) Result {
	if o.started.CompareAndSwap(false, true) {
		o.router.Setup()
	}

	o.interrupted.Store(false)
	o.output.ResetSeq()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancelTurn = cancel
	o.heardText = ""
	o.mu.Unlock()

	// Input normalization.
	if err := o.input.Run(turnCtx, pc); err != nil {
		o.emitError(ctx, err)
		return Result{Err: fmt.Errorf("input pipeline: %w", err)}
	}
	if pc.Err != nil {
		return Result{Err: pc.Err}
	}
	if o.interrupted.Load() {
		return o.interruptedResult(pc)
	}

	// Agent stream.
	o.emitExpression(turnCtx, ExpressionThinking)

	agentStart := time.Now()
	chunks, err := o.svc.Agent.ChatStream(turnCtx, pc.Text)
	if err != nil {
		o.emitError(ctx, err)
		o.recordProviderError(ctx, "agent", err)
		return Result{Err: fmt.Errorf("agent: %w", err)}
	}
	o.emitExpression(turnCtx, ExpressionSpeaking)

	if err := o.output.Run(turnCtx, chunks, pc); err != nil {
		o.emitError(ctx, err)
		o.recordProviderError(ctx, "agent", err)
		return Result{Err: err}
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.AgentDuration.Record(ctx, time.Since(agentStart).Seconds())
	}

	// Emotion extraction.
	cleaned, tags := o.cfg.Extractor.Extract(pc.Response)
	pc.Response = cleaned

	if o.interrupted.Load() {
		return o.interruptedResult(pc)
	}

	// Synthesis and timeline.
	audioPath := ""
	if o.svc.TTS != nil && strings.TrimSpace(cleaned) != "" {
		payload, err := o.synthesize(turnCtx, cleaned, tags)
		if err != nil {
			o.emitError(ctx, err)
			o.recordProviderError(ctx, "tts", err)
			return Result{Err: err}
		}
		if o.interrupted.Load() {
			return o.interruptedResult(pc)
		}
		if payload != nil {
			audioPath = payload.Path
			eventType := eventbus.TypeAudio
			if len(payload.Segments) > 0 {
				eventType = eventbus.TypeAudioWithExpression
			}
			o.bus.Emit(turnCtx, eventbus.Event{Type: eventType, Data: *payload})
		}
	}

	o.emitExpression(turnCtx, ExpressionIdle)

	if o.interrupted.Load() {
		return o.interruptedResult(pc)
	}
	return Result{Success: true, Response: cleaned, AudioPath: audioPath}
}

// synthesize runs TTS, analyzes the audio, and builds the timeline when
// emotion tags are present.
func (o *Orchestrator) synthesize(ctx context.Context, text string, tags []emotion.Tag) (*AudioPayload, error) {
	ttsStart := time.Now()
	path, err := o.svc.TTS.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	}

	analysis, err := o.cfg.Analyzer.Analyze(path)
	if err != nil {
		return nil, fmt.Errorf("analyze audio: %w", err)
	}

	payload := &AudioPayload{
		Path:          path,
		Format:        strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Text:          text,
		Envelope:      analysis.Envelope,
		TotalDuration: analysis.Duration,
	}
	if len(tags) > 0 {
		segments, err := o.cfg.Timeline.Build(emotion.Names(tags), analysis.Duration)
		if err != nil {
			return nil, fmt.Errorf("build timeline: %w", err)
		}
		payload.Segments = segments
	}
	return payload, nil
}

// interruptedResult builds the failure result for a barged-in turn and
// records the heard response prefix in the conversation history.
func (o *Orchestrator) interruptedResult(pc *pipeline.Context) Result {
	o.mu.Lock()
	heard := o.heardText
	o.mu.Unlock()

	heardResponse := alignHeard(pc.Response, heard)
	if heardResponse != "" && o.svc.Agent != nil {
		history := o.svc.Agent.History()
		if n := len(history); n > 0 && history[n-1].Role == "assistant" {
			history[n-1].Content = heardResponse
		} else {
			history = append(history, types.Message{Role: "assistant", Content: heardResponse})
		}
		o.svc.Agent.SetHistory(history)
	}

	return Result{Interrupted: true, Response: pc.Response, HeardResponse: heardResponse}
}

// alignHeard returns the prefix of response that best matches the
// client-reported heard text, by Jaro-Winkler similarity over rune
// prefixes. An empty heard report falls back to the full generated text so
// the history still reflects an attempt was made.
func alignHeard(response, heard string) string {
	response = strings.TrimSpace(response)
	heard = strings.TrimSpace(heard)
	if response == "" {
		return ""
	}
	if heard == "" {
		return response
	}

	runes := []rune(response)
	bestScore := -1.0
	bestLen := 0
	// Cap the scan; the heard prefix cannot plausibly be much longer than
	// the report itself.
	maxLen := min(len(runes), len([]rune(heard))*2+8)
	for n := 1; n <= maxLen; n++ {
		score := matchr.JaroWinkler(heard, string(runes[:n]), true)
		if score > bestScore {
			bestScore = score
			bestLen = n
		}
	}
	return string(runes[:bestLen])
}

func (o *Orchestrator) emitExpression(ctx context.Context, name string) {
	o.bus.Emit(ctx, eventbus.Event{
		Type:     eventbus.TypeExpression,
		Data:     name,
		Metadata: map[string]any{"timestamp": time.Now().UnixMilli()},
	})
}

func (o *Orchestrator) emitError(ctx context.Context, err error) {
	o.bus.Emit(ctx, eventbus.Event{Type: eventbus.TypeError, Data: err.Error()})
}

func (o *Orchestrator) recordProviderError(ctx context.Context, provider string, err error) {
	if o.cfg.Metrics == nil || err == nil {
		return
	}
	o.cfg.Metrics.RecordProviderError(ctx, provider, "request")
}
