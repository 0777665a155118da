package server

import (
	"sync"
	"time"

	"github.com/anima-voice/anima/internal/audio"
	"github.com/anima-voice/anima/internal/handlers"
	"github.com/anima-voice/anima/internal/orchestrator"
	"github.com/anima-voice/anima/internal/vad"
)

// Session is one connected client: its orchestrator, VAD segmenter, mic
// buffer, and utterance timeout tracker.
//
// turnMu serializes turns — at most one process_input in flight per
// session. Interrupt and the read loop never take it. Fields read by both
// the read loop and the turn goroutines (orch, hasTTS, historyUID, closed)
// are guarded by mu; the segmenter, mic buffer, and timeout tracker are
// touched by the read loop only.
type Session struct {
	ID   string
	send handlers.Sender

	svc       orchestrator.Services
	segmenter *vad.Segmenter
	micBuffer *audio.Buffer

	turnMu sync.Mutex

	// Timeout tracker for the open utterance; valid while the segmenter is
	// in speech.
	utteranceStart time.Time
	chunkCount     int

	mu         sync.Mutex
	orch       *orchestrator.Orchestrator
	hasTTS     bool
	historyUID string
	closed     bool
}

// Orchestrator returns the session's current orchestrator. switch_config
// replaces it, so callers must not cache the pointer across messages.
func (s *Session) Orchestrator() *orchestrator.Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orch
}

// ttsConfigured reports whether the current provider set synthesizes audio.
func (s *Session) ttsConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasTTS
}

// historyID returns the active conversation history UID ("" before the
// first exchange).
func (s *Session) historyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyUID
}

// setHistoryID switches the session to the history uid.
func (s *Session) setHistoryID(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyUID = uid
}

// replaceProviders swaps in the providers built from a switched config.
func (s *Session) replaceProviders(orch *orchestrator.Orchestrator, svc orchestrator.Services, segmenter *vad.Segmenter) {
	s.mu.Lock()
	s.orch = orch
	s.hasTTS = svc.TTS != nil
	s.mu.Unlock()
	s.svc = svc
	s.segmenter = segmenter
}

// markClosed flips the session to closed; returns false if already closed.
func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// resetTracker clears the utterance timeout tracker.
func (s *Session) resetTracker() {
	s.utteranceStart = time.Time{}
	s.chunkCount = 0
}
