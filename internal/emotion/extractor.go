// Package emotion extracts inline [tag] emotion markers from agent text and
// aligns them with synthesized audio as an expression timeline.
package emotion

import (
	"regexp"
	"slices"
	"strings"
)

// tagPattern matches inline emotion markers like [happy] or [slightly_sad].
var tagPattern = regexp.MustCompile(`\[([a-zA-Z_]+)\]`)

// Tag is one extracted emotion marker. Position is the rune offset in the
// cleaned text where the marker stood, so re-inserting tags at their
// positions (last first) reconstructs the original text.
type Tag struct {
	Emotion  string
	Position int
}

// Extractor strips emotion markers from text. If Valid is non-empty, only
// markers whose name is in Valid are stripped; anything else is left as
// literal text.
type Extractor struct {
	Valid []string
}

// Extract returns the cleaned text and the tags removed from it, in order
// of appearance.
func (e *Extractor) Extract(text string) (string, []Tag) {
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var (
		tags    []Tag
		cleaned strings.Builder
		prev    int
		runePos int
	)
	for _, m := range matches {
		start, end := m[0], m[1]
		name := text[m[2]:m[3]]
		if len(e.Valid) > 0 && !slices.Contains(e.Valid, name) {
			continue
		}
		segment := text[prev:start]
		cleaned.WriteString(segment)
		runePos += len([]rune(segment))
		tags = append(tags, Tag{Emotion: name, Position: runePos})
		prev = end
	}
	cleaned.WriteString(text[prev:])

	if len(tags) == 0 {
		return text, nil
	}
	return cleaned.String(), tags
}

// Restore re-inserts tags into cleaned text, inverting Extract.
func Restore(cleaned string, tags []Tag) string {
	runes := []rune(cleaned)
	for i := len(tags) - 1; i >= 0; i-- {
		t := tags[i]
		pos := min(max(t.Position, 0), len(runes))
		marker := []rune("[" + t.Emotion + "]")
		runes = slices.Insert(runes, pos, marker...)
	}
	return string(runes)
}

// Names returns just the emotion names of tags, in order.
func Names(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Emotion
	}
	return out
}
