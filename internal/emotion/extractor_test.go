package emotion_test

import (
	"strings"
	"testing"

	"github.com/anima-voice/anima/internal/emotion"
)

func TestExtract_StripsTagsAndRecordsPositions(t *testing.T) {
	t.Parallel()
	e := &emotion.Extractor{}

	cleaned, tags := e.Extract("你好 [happy] 今天天气不错 [neutral]")

	if cleaned != "你好  今天天气不错 " {
		t.Errorf("cleaned = %q", cleaned)
	}
	if len(tags) != 2 {
		t.Fatalf("got %d tags, want 2", len(tags))
	}
	if tags[0].Emotion != "happy" || tags[1].Emotion != "neutral" {
		t.Errorf("tags = %v", tags)
	}
}

func TestExtract_RoundTrip(t *testing.T) {
	t.Parallel()
	e := &emotion.Extractor{}

	inputs := []string{
		"plain text without tags",
		"[happy] leading tag",
		"trailing tag [sad]",
		"middle [angry] tag",
		"[a][b] adjacent [c]",
		"多字节 [happy] 文本 [sad] 结尾",
		"",
	}
	for _, in := range inputs {
		cleaned, tags := e.Extract(in)
		if strings.Contains(cleaned, "[") {
			t.Errorf("Extract(%q) cleaned = %q still contains a tag", in, cleaned)
		}
		if got := emotion.Restore(cleaned, tags); got != in {
			t.Errorf("Restore(Extract(%q)) = %q", in, got)
		}
	}
}

func TestExtract_ValidSetFiltersUnknownTags(t *testing.T) {
	t.Parallel()
	e := &emotion.Extractor{Valid: []string{"happy", "sad"}}

	cleaned, tags := e.Extract("a [happy] b [confused] c")

	if len(tags) != 1 || tags[0].Emotion != "happy" {
		t.Fatalf("tags = %v, want only happy", tags)
	}
	if !strings.Contains(cleaned, "[confused]") {
		t.Errorf("cleaned = %q, unknown tag should remain literal", cleaned)
	}
}

func TestExtract_IgnoresNonTagBrackets(t *testing.T) {
	t.Parallel()
	e := &emotion.Extractor{}

	cleaned, tags := e.Extract("scores [99] and [a b]")
	if len(tags) != 0 {
		t.Errorf("tags = %v, want none for non-letter brackets", tags)
	}
	if cleaned != "scores [99] and [a b]" {
		t.Errorf("cleaned = %q, want input unchanged", cleaned)
	}
}

func TestNames(t *testing.T) {
	t.Parallel()
	tags := []emotion.Tag{{Emotion: "happy"}, {Emotion: "sad"}}
	names := emotion.Names(tags)
	if len(names) != 2 || names[0] != "happy" || names[1] != "sad" {
		t.Errorf("Names = %v", names)
	}
}
