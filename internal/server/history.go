package server

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/anima-voice/anima/internal/protocol"
)

const previewRunes = 40

// HistoryStore keeps conversation histories in memory, keyed by UID.
// Histories survive for the process lifetime only; durable storage is an
// external concern reached through the same fetch_history wire messages.
type HistoryStore struct {
	mu        sync.Mutex
	order     []string
	histories map[string][]protocol.HistoryMessage
}

// NewHistoryStore returns an empty store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{histories: make(map[string][]protocol.HistoryMessage)}
}

// Create allocates a new empty history and returns its UID.
func (s *HistoryStore) Create() string {
	uid := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, uid)
	s.histories[uid] = nil
	return uid
}

// Append records messages on the history uid. Unknown UIDs are created
// implicitly.
func (s *HistoryStore) Append(uid string, msgs ...protocol.HistoryMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[uid]; !ok {
		s.order = append(s.order, uid)
	}
	s.histories[uid] = append(s.histories[uid], msgs...)
}

// Get returns a copy of the history uid.
func (s *HistoryStore) Get(uid string) ([]protocol.HistoryMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.histories[uid]
	if !ok {
		return nil, false
	}
	out := make([]protocol.HistoryMessage, len(msgs))
	copy(out, msgs)
	return out, true
}

// List summarizes all histories in creation order. The preview is the
// first user message, truncated.
func (s *HistoryStore) List() []protocol.HistorySummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.HistorySummary, 0, len(s.order))
	for _, uid := range s.order {
		out = append(out, protocol.HistorySummary{
			UID:     uid,
			Preview: preview(s.histories[uid]),
		})
	}
	return out
}

// Clear drops the history uid's messages but keeps the UID alive.
func (s *HistoryStore) Clear(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[uid]; ok {
		s.histories[uid] = nil
	}
}

func preview(msgs []protocol.HistoryMessage) string {
	for _, m := range msgs {
		if m.Role != "user" {
			continue
		}
		text := strings.TrimSpace(m.Content)
		runes := []rune(text)
		if len(runes) > previewRunes {
			return string(runes[:previewRunes]) + "…"
		}
		return text
	}
	return ""
}
