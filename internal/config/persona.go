package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona describes one character: who the agent pretends to be and how it
// speaks. The system prompt built from it is shared by every session using
// this persona; conversation history stays per session.
type Persona struct {
	// Name is the character's display name, also used as from_name on
	// outbound text.
	Name string `yaml:"name"`

	// Identity is the core description of who the character is.
	Identity string `yaml:"identity"`

	// Traits are short personality descriptors.
	Traits []string `yaml:"traits"`

	// SpeakingStyle describes register, quirks, and verbosity.
	SpeakingStyle string `yaml:"speaking_style"`

	// Examples are sample exchanges teaching the voice.
	Examples []DialogueExample `yaml:"examples"`

	// UseEmoji permits emoji in replies. When false the clean step also
	// strips emoji from user input.
	UseEmoji bool `yaml:"use_emoji"`

	// Emotions lists the avatar's valid emotion tags. Non-empty enables
	// the inline [tag] instruction and restricts extraction to this set.
	Emotions []string `yaml:"emotions"`

	// DefaultEmotion fills timeline gaps. Defaults to "neutral".
	DefaultEmotion string `yaml:"default_emotion"`
}

// DialogueExample is one sample exchange.
type DialogueExample struct {
	User  string `yaml:"user"`
	Reply string `yaml:"reply"`
}

// LoadPersona reads personas/{name}.yaml relative to the main config
// directory.
func LoadPersona(configDir, name string) (*Persona, error) {
	path := filepath.Join(configDir, "personas", name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read persona %q: %w", path, err)
	}

	p := &Persona{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("config: decode persona %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	if p.DefaultEmotion == "" {
		p.DefaultEmotion = "neutral"
	}
	return p, nil
}

// SystemPrompt renders the persona into the agent's system prompt.
func (p *Persona) SystemPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.", p.Name)
	if p.Identity != "" {
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(p.Identity))
	}
	b.WriteString("\n")

	if len(p.Traits) > 0 {
		b.WriteString("\nPersonality traits:\n")
		for _, t := range p.Traits {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}

	if p.SpeakingStyle != "" {
		b.WriteString("\nSpeaking style: ")
		b.WriteString(strings.TrimSpace(p.SpeakingStyle))
		b.WriteString("\n")
	}

	if len(p.Examples) > 0 {
		b.WriteString("\nExample exchanges:\n")
		for _, ex := range p.Examples {
			fmt.Fprintf(&b, "User: %s\n%s: %s\n", ex.User, p.Name, ex.Reply)
		}
	}

	b.WriteString("\nYour replies are spoken aloud. Keep them short and conversational; never use markdown, lists, or stage directions.\n")

	if !p.UseEmoji {
		b.WriteString("Do not use emoji.\n")
	}

	if len(p.Emotions) > 0 {
		fmt.Fprintf(&b,
			"\nYou have an animated avatar. Mark your current emotion inline by inserting one of these tags where the feeling starts: %s. Use the bare tag with brackets, e.g. %s. Tags are removed before speaking.\n",
			"["+strings.Join(p.Emotions, "], [")+"]",
			"["+p.Emotions[0]+"]")
	}

	return b.String()
}
