package server_test

import (
	"strings"
	"testing"

	"github.com/anima-voice/anima/internal/protocol"
	"github.com/anima-voice/anima/internal/server"
)

func TestHistoryStore_CreateAppendGet(t *testing.T) {
	t.Parallel()
	store := server.NewHistoryStore()

	uid := store.Create()
	if uid == "" {
		t.Fatal("empty UID")
	}

	store.Append(uid,
		protocol.HistoryMessage{Role: "user", Content: "hi"},
		protocol.HistoryMessage{Role: "assistant", Content: "hello"},
	)

	msgs, ok := store.Get(uid)
	if !ok {
		t.Fatal("history not found")
	}
	if len(msgs) != 2 || msgs[0].Content != "hi" || msgs[1].Role != "assistant" {
		t.Errorf("msgs = %v", msgs)
	}

	// Get hands out a copy.
	msgs[0].Content = "mutated"
	again, _ := store.Get(uid)
	if again[0].Content != "hi" {
		t.Error("Get returned shared backing slice")
	}
}

func TestHistoryStore_GetUnknown(t *testing.T) {
	t.Parallel()
	store := server.NewHistoryStore()
	if _, ok := store.Get("nope"); ok {
		t.Error("unknown UID reported as found")
	}
}

func TestHistoryStore_AppendCreatesImplicitly(t *testing.T) {
	t.Parallel()
	store := server.NewHistoryStore()
	store.Append("external-uid", protocol.HistoryMessage{Role: "user", Content: "restored"})

	if _, ok := store.Get("external-uid"); !ok {
		t.Fatal("implicit history not created")
	}
	list := store.List()
	if len(list) != 1 || list[0].UID != "external-uid" {
		t.Errorf("list = %v", list)
	}
}

func TestHistoryStore_ListOrderAndPreview(t *testing.T) {
	t.Parallel()
	store := server.NewHistoryStore()

	first := store.Create()
	second := store.Create()
	store.Append(first, protocol.HistoryMessage{Role: "assistant", Content: "greeting"})
	store.Append(first, protocol.HistoryMessage{Role: "user", Content: "  what is the weather  "})
	store.Append(second, protocol.HistoryMessage{Role: "user", Content: strings.Repeat("长", 50)})

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("got %d summaries, want 2", len(list))
	}
	if list[0].UID != first || list[1].UID != second {
		t.Error("summaries not in creation order")
	}
	// Preview is the first user message, trimmed; assistant messages are
	// skipped.
	if list[0].Preview != "what is the weather" {
		t.Errorf("preview = %q", list[0].Preview)
	}
	// Long previews truncate on rune boundaries.
	if got := []rune(list[1].Preview); len(got) != 41 || got[40] != '…' {
		t.Errorf("truncated preview = %q (%d runes)", list[1].Preview, len(got))
	}
}

func TestHistoryStore_ClearKeepsUID(t *testing.T) {
	t.Parallel()
	store := server.NewHistoryStore()
	uid := store.Create()
	store.Append(uid, protocol.HistoryMessage{Role: "user", Content: "hi"})

	store.Clear(uid)

	msgs, ok := store.Get(uid)
	if !ok {
		t.Fatal("UID dropped by Clear")
	}
	if len(msgs) != 0 {
		t.Errorf("msgs = %v, want empty", msgs)
	}
	if len(store.List()) != 1 {
		t.Error("cleared history missing from List")
	}
}
