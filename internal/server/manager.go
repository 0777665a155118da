package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anima-voice/anima/internal/audio"
	"github.com/anima-voice/anima/internal/config"
	"github.com/anima-voice/anima/internal/emotion"
	"github.com/anima-voice/anima/internal/handlers"
	"github.com/anima-voice/anima/internal/observe"
	"github.com/anima-voice/anima/internal/orchestrator"
	"github.com/anima-voice/anima/internal/protocol"
	"github.com/anima-voice/anima/internal/vad"
)

// Manager owns every live session and routes inbound frames to the
// session's orchestrator and segmenter.
type Manager struct {
	cfg       *config.AppConfig
	configDir string
	persona   *config.Persona
	reg       *config.Registry
	metrics   *observe.Metrics
	store     *HistoryStore

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a Manager over the loaded configuration. configDir is
// the directory of the main config file, used to resolve personas and
// switched configs.
func NewManager(cfg *config.AppConfig, configDir string, persona *config.Persona, reg *config.Registry, metrics *observe.Metrics) *Manager {
	return &Manager{
		cfg:       cfg,
		configDir: configDir,
		persona:   persona,
		reg:       reg,
		metrics:   metrics,
		store:     NewHistoryStore(),
		sessions:  make(map[string]*Session),
	}
}

// Connect creates a session for a new client, greets it, and asks it to
// start the microphone.
func (m *Manager) Connect(ctx context.Context, send handlers.Sender) (*Session, error) {
	s, err := m.buildSession(m.cfg, m.persona, send)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Info("session connected", "sid", s.ID)

	if err := send(ctx, protocol.NewConnectionEstablished(s.ID)); err != nil {
		return s, err
	}
	return s, send(ctx, protocol.NewControl(protocol.ControlStartMic))
}

// Disconnect tears the session down and releases its provider resources.
func (m *Manager) Disconnect(s *Session) {
	if s == nil || !s.markClosed() {
		return
	}

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	s.Orchestrator().Stop()
	if err := s.svc.Close(); err != nil {
		slog.Warn("closing session providers", "sid", s.ID, "error", err)
	}
	if s.segmenter != nil {
		if err := s.segmenter.Close(); err != nil {
			slog.Warn("closing session segmenter", "sid", s.ID, "error", err)
		}
	}
	s.micBuffer.Clear()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	slog.Info("session disconnected", "sid", s.ID)
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HandleMessage dispatches one inbound frame. Turn-starting messages spawn
// a goroutine so the read loop stays free to deliver interrupts.
func (m *Manager) HandleMessage(ctx context.Context, s *Session, in protocol.Inbound) {
	switch in.Type {
	case protocol.InTextInput:
		go m.runTextTurn(ctx, s, in.Text, in.Metadata, in.FromName)

	case protocol.InMicAudioData:
		s.micBuffer.Append(toFloat32(in.Audio))

	case protocol.InMicAudioEnd:
		samples := s.micBuffer.Pop()
		go m.runAudioTurn(ctx, s, samples, in.Metadata, false)

	case protocol.InRawAudioData:
		m.handleRawChunk(ctx, s, toFloat32(in.Audio))

	case protocol.InInterruptSignal:
		s.Orchestrator().Interrupt(in.Text)
		m.trySend(ctx, s, protocol.NewControl(protocol.ControlInterrupted))

	case protocol.InFetchHistoryList:
		m.trySend(ctx, s, protocol.HistoryList{Type: "history-list", Histories: m.store.List()})

	case protocol.InFetchHistory:
		msgs, ok := m.store.Get(in.HistoryUID)
		if !ok {
			m.trySend(ctx, s, protocol.NewError(fmt.Sprintf("unknown history %q", in.HistoryUID)))
			return
		}
		m.trySend(ctx, s, protocol.HistoryData{Type: "history-data", Messages: msgs})

	case protocol.InCreateNewHistory:
		uid := m.store.Create()
		s.setHistoryID(uid)
		s.Orchestrator().Agent().ClearHistory()
		m.trySend(ctx, s, protocol.NewHistoryCreated{Type: "new-history-created", HistoryUID: uid})

	case protocol.InClearHistory:
		m.store.Clear(s.historyID())
		s.Orchestrator().Agent().ClearHistory()
		m.trySend(ctx, s, protocol.HistoryCleared{Type: "history-cleared"})

	case protocol.InSwitchConfig:
		if err := m.switchConfig(s, in.File); err != nil {
			slog.Error("switch config failed", "sid", s.ID, "file", in.File, "error", err)
			m.trySend(ctx, s, protocol.NewError(fmt.Sprintf("switch config: %v", err)))
		}

	case protocol.InHeartbeat:
		m.trySend(ctx, s, protocol.HeartbeatAck{Type: "heartbeat-ack"})

	default:
		m.trySend(ctx, s, protocol.NewError(fmt.Sprintf("unknown message type %q", in.Type)))
	}
}

// handleRawChunk pushes one PCM chunk through the session's VAD, dispatches
// any utterance it closed, and enforces the timeout rescue.
func (m *Manager) handleRawChunk(ctx context.Context, s *Session, samples []float32) {
	if s.segmenter == nil {
		// No VAD configured: treat raw audio like buffered mic audio.
		s.micBuffer.Append(samples)
		return
	}

	events, err := s.segmenter.Process(ctx, samples)
	if err != nil {
		slog.Error("vad processing failed", "sid", s.ID, "error", err)
		m.trySend(ctx, s, protocol.NewError(fmt.Sprintf("voice detection: %v", err)))
		return
	}

	for _, ev := range events {
		switch ev.Kind {
		case vad.SpeechStart:
			s.utteranceStart = time.Now()
			s.chunkCount = 0
		case vad.SpeechEnd:
			s.resetTracker()
			m.dispatchUtterance(ctx, s, ev.Samples, "silence")
		}
	}

	if s.segmenter.InSpeech() {
		s.chunkCount++
		if s.utteranceStart.IsZero() {
			s.utteranceStart = time.Now()
		}
		if timeout := s.segmenter.Timeout(); timeout > 0 && time.Since(s.utteranceStart) > timeout {
			slog.Warn("utterance timeout, forcing end", "sid", s.ID, "chunks", s.chunkCount)
			ev := s.segmenter.ForceEnd()
			s.resetTracker()
			if ev != nil {
				m.dispatchUtterance(ctx, s, ev.Samples, "timeout")
			}
		}
	} else if len(events) == 0 {
		s.resetTracker()
	}
}

// dispatchUtterance starts a turn over a VAD-closed utterance.
func (m *Manager) dispatchUtterance(ctx context.Context, s *Session, samples []float32, trigger string) {
	if m.metrics != nil {
		m.metrics.RecordUtterance(ctx, trigger)
	}
	go m.runAudioTurn(ctx, s, samples, nil, true)
}

// runTextTurn serializes and runs one text turn.
func (m *Manager) runTextTurn(ctx context.Context, s *Session, text string, metadata map[string]any, fromName string) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	result := s.Orchestrator().ProcessText(ctx, text, metadata, fromName)
	m.finishTurn(ctx, s, text, result)
}

// runAudioTurn serializes and runs one audio turn, framed by the
// conversation controls.
func (m *Manager) runAudioTurn(ctx context.Context, s *Session, samples []float32, metadata map[string]any, fromVAD bool) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if fromVAD {
		m.trySend(ctx, s, protocol.NewControl(protocol.ControlMicAudioEnd))
	}
	m.trySend(ctx, s, protocol.NewControl(protocol.ControlConversationStart))

	result := s.Orchestrator().ProcessAudio(ctx, samples, metadata)
	m.finishTurn(ctx, s, "", result)

	m.trySend(ctx, s, protocol.NewControl(protocol.ControlConversationEnd))
}

// finishTurn surfaces the turn outcome on the wire and records the exchange
// in the history store. A failed turn's error frame already went out through
// the bus error sink; here it is only logged.
func (m *Manager) finishTurn(ctx context.Context, s *Session, userText string, result orchestrator.Result) {
	switch {
	case result.Interrupted:
		m.appendHistory(s, userText, result.HeardResponse)

	case result.Err != nil:
		slog.Error("turn failed", "sid", s.ID, "error", result.Err)

	case result.Success:
		m.appendHistory(s, userText, result.Response)
		if s.ttsConfigured() && result.AudioPath == "" {
			m.trySend(ctx, s, protocol.NewControl(protocol.ControlNoAudioData))
		}
	}
}

func (m *Manager) appendHistory(s *Session, userText, reply string) {
	uid := s.historyID()
	if uid == "" {
		uid = m.store.Create()
		s.setHistoryID(uid)
	}
	var msgs []protocol.HistoryMessage
	if userText != "" {
		msgs = append(msgs, protocol.HistoryMessage{Role: "user", Content: userText})
	}
	if reply != "" {
		msgs = append(msgs, protocol.HistoryMessage{Role: "assistant", Content: reply})
	}
	if len(msgs) > 0 {
		m.store.Append(uid, msgs...)
	}
}

// switchConfig rebuilds the session's providers from another config file.
// The manager-level default config is untouched; the switch is scoped to
// this session.
func (m *Manager) switchConfig(s *Session, file string) error {
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.configDir, file)
	}
	cfg, err := config.Load(path, m.reg)
	if err != nil {
		return err
	}
	persona, err := config.LoadPersona(filepath.Dir(path), cfg.Persona)
	if err != nil {
		return err
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	replacement, err := m.buildSession(cfg, persona, s.send)
	if err != nil {
		return err
	}

	s.Orchestrator().Stop()
	if err := s.svc.Close(); err != nil {
		slog.Warn("closing replaced providers", "sid", s.ID, "error", err)
	}
	if s.segmenter != nil {
		if err := s.segmenter.Close(); err != nil {
			slog.Warn("closing replaced segmenter", "sid", s.ID, "error", err)
		}
	}

	s.replaceProviders(replacement.Orchestrator(), replacement.svc, replacement.segmenter)
	s.resetTracker()
	s.micBuffer.Clear()

	slog.Info("session switched config", "sid", s.ID, "file", file, "persona", persona.Name)
	return nil
}

// buildSession instantiates providers, orchestrator, and segmenter for one
// session from cfg.
func (m *Manager) buildSession(cfg *config.AppConfig, persona *config.Persona, send handlers.Sender) (*Session, error) {
	svc, err := m.buildServices(cfg, persona)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(svc, orchestrator.Config{
		FromName:   persona.Name,
		StripEmoji: !persona.UseEmoji,
		Extractor:  &emotion.Extractor{Valid: persona.Emotions},
		Timeline:   emotion.NewTimeline(emotion.TimelineConfig{DefaultEmotion: persona.DefaultEmotion}),
		Metrics:    m.metrics,
	})
	handlers.Attach(orch, send)

	var segmenter *vad.Segmenter
	if vadCfg := cfg.Services.VAD; vadCfg != nil {
		segmenter, err = m.reg.CreateVAD(vadCfg)
		if err != nil {
			closeErr := svc.Close()
			if closeErr != nil {
				slog.Warn("closing providers after segmenter failure", "error", closeErr)
			}
			return nil, fmt.Errorf("create vad: %w", err)
		}
	}

	return &Session{
		ID:        uuid.NewString(),
		send:      send,
		orch:      orch,
		svc:       svc,
		segmenter: segmenter,
		micBuffer: audio.NewBuffer(),
		hasTTS:    svc.TTS != nil,
	}, nil
}

func (m *Manager) buildServices(cfg *config.AppConfig, persona *config.Persona) (orchestrator.Services, error) {
	var svc orchestrator.Services
	var err error

	svc.Agent, err = m.reg.CreateAgent(cfg.Services.Agent, persona.SystemPrompt())
	if err != nil {
		return svc, fmt.Errorf("create agent: %w", err)
	}
	if asrCfg := cfg.Services.ASR; asrCfg != nil {
		svc.ASR, err = m.reg.CreateASR(asrCfg)
		if err != nil {
			return svc, fmt.Errorf("create asr: %w", err)
		}
	}
	if ttsCfg := cfg.Services.TTS; ttsCfg != nil {
		svc.TTS, err = m.reg.CreateTTS(ttsCfg)
		if err != nil {
			return svc, fmt.Errorf("create tts: %w", err)
		}
	}
	return svc, nil
}

// trySend writes a frame, logging instead of failing the caller when the
// connection is already gone.
func (m *Manager) trySend(ctx context.Context, s *Session, msg any) {
	if err := s.send(ctx, msg); err != nil {
		slog.Debug("send failed", "sid", s.ID, "error", err)
	}
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
