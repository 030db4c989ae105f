// Package persona loads character definition files and renders them into
// prompt context for text generation.
package persona

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultTopicSeed is used when a character defines no topics.
const DefaultTopicSeed = "general relevant topics for social media"

// utf8BOM is stripped before parsing; character files edited on Windows
// often carry one.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Style holds tone guidelines split by context.
type Style struct {
	All  []string `json:"all,omitempty"`
	Chat []string `json:"chat,omitempty"`
	Post []string `json:"post,omitempty"`
}

// MessageContent is the body of a chat example turn.
type MessageContent struct {
	Text string `json:"text"`
}

// MessageTurn is a single turn inside a few-shot chat example.
type MessageTurn struct {
	User    string         `json:"user"`
	Content MessageContent `json:"content"`
}

// Persona is a parsed character definition.
type Persona struct {
	Name            string          `json:"name"`
	System          string          `json:"system,omitempty"`
	Bio             []string        `json:"bio,omitempty"`
	Lore            []string        `json:"lore,omitempty"`
	Style           Style           `json:"style,omitempty"`
	Adjectives      []string        `json:"adjectives,omitempty"`
	Topics          []string        `json:"topics,omitempty"`
	MessageExamples [][]MessageTurn `json:"messageExamples,omitempty"`
	PostExamples    []string        `json:"postExamples,omitempty"`
}

// Loader loads and validates character files
type Loader struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
}

// NewLoader creates a new character file loader
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:       logger.With().Str("component", "persona-loader").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(CharacterSchema),
	}
}

// Load reads, validates, and parses a character file
func (l *Loader) Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read character file: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.TrimSpace(data)

	if err := l.validateSchema(data); err != nil {
		return nil, fmt.Errorf("character schema validation failed: %w", err)
	}

	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse character JSON: %w", err)
	}

	l.logger.Debug().
		Str("name", p.Name).
		Int("topics", len(p.Topics)).
		Msg("Loaded character")

	return &p, nil
}

// validateSchema validates character JSON against the embedded schema
func (l *Loader) validateSchema(data []byte) error {
	documentLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(l.schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, verr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += verr.String()
		}
		return fmt.Errorf("schema validation errors: %s", errMsg)
	}

	return nil
}

// RandomTopic picks one of the character's topics, or the default seed
// when none are defined.
func (p *Persona) RandomTopic(rng *rand.Rand) string {
	if len(p.Topics) == 0 {
		return DefaultTopicSeed
	}
	return p.Topics[rng.Intn(len(p.Topics))]
}

// Summary returns a short persona description for lightweight prompts.
func (p *Persona) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", p.Name)
	if p.System != "" {
		fmt.Fprintf(&b, " Your core instruction is: '%s'.", p.System)
	}
	if len(p.Adjectives) > 0 {
		fmt.Fprintf(&b, " Key personality traits: %s.", strings.Join(p.Adjectives, ", "))
	}
	return b.String()
}

// PostContext renders the full persona context for post generation.
func (p *Persona) PostContext() string {
	return p.context("post")
}

// ChatContext renders the full persona context for replies and chat.
func (p *Persona) ChatContext() string {
	return p.context("chat")
}

func (p *Persona) context(kind string) string {
	parts := []string{fmt.Sprintf("## Roleplay Instructions for %s", p.Name)}

	if p.System != "" {
		parts = append(parts, fmt.Sprintf("**Core System Prompt:** %s", p.System))
	}
	if len(p.Bio) > 0 {
		parts = append(parts, fmt.Sprintf("**Bio Snippets:**\n- %s", strings.Join(p.Bio, "\n- ")))
	}
	if len(p.Lore) > 0 {
		parts = append(parts, fmt.Sprintf("**Key Lore/Background:**\n- %s", strings.Join(p.Lore, "\n- ")))
	}
	if len(p.Adjectives) > 0 {
		parts = append(parts, fmt.Sprintf("**Personality Adjectives:** %s", strings.Join(p.Adjectives, ", ")))
	}
	if len(p.Topics) > 0 {
		parts = append(parts, fmt.Sprintf("**Common Topics:** %s", strings.Join(p.Topics, ", ")))
	}

	rules := p.styleRules(kind)
	if len(rules) > 0 {
		parts = append(parts, fmt.Sprintf("**Style Guidelines (%s):**\n- %s", kind, strings.Join(rules, "\n- ")))
	}

	switch kind {
	case "chat":
		if len(p.MessageExamples) > 0 {
			parts = append(parts, p.renderChatExamples())
		}
	case "post":
		if len(p.PostExamples) > 0 {
			parts = append(parts, fmt.Sprintf("**Example Posts:**\n- %s", strings.Join(p.PostExamples, "\n- ")))
		}
	}

	return strings.Join(parts, "\n\n")
}

// styleRules merges the shared rules with context-specific ones, keeping
// first-seen order and dropping duplicates.
func (p *Persona) styleRules(kind string) []string {
	var contextRules []string
	switch kind {
	case "chat":
		contextRules = p.Style.Chat
	case "post":
		contextRules = p.Style.Post
	}

	seen := make(map[string]struct{})
	var rules []string
	for _, r := range append(append([]string{}, p.Style.All...), contextRules...) {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		rules = append(rules, r)
	}
	return rules
}

func (p *Persona) renderChatExamples() string {
	var b strings.Builder
	b.WriteString("**Example Chat Interactions:**")
	for i, example := range p.MessageExamples {
		fmt.Fprintf(&b, "\nExample %d:", i+1)
		for _, turn := range example {
			fmt.Fprintf(&b, "\n  %s: %s", turn.User, turn.Content.Text)
		}
	}
	return b.String()
}
