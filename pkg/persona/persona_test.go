package persona

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	t.Run("loads minimal valid character", func(t *testing.T) {
		character := `{"name": "Holly"}`

		path := createCharacterFile(t, character)
		p, err := loader.Load(path)

		require.NoError(t, err)
		assert.Equal(t, "Holly", p.Name)
		assert.Empty(t, p.Topics)
	})

	t.Run("loads character with all fields", func(t *testing.T) {
		character := `{
			"name": "Holly",
			"system": "Act as Holly, a cheerful botanist.",
			"bio": ["grew up in a greenhouse"],
			"lore": ["once named every fern in the county"],
			"style": {
				"all": ["be warm"],
				"chat": ["ask questions"],
				"post": ["keep it short"]
			},
			"adjectives": ["curious", "upbeat"],
			"topics": ["rare orchids", "soil chemistry"],
			"messageExamples": [
				[
					{"user": "visitor", "content": {"text": "hi"}},
					{"user": "Holly", "content": {"text": "hello! seen any good moss lately?"}}
				]
			],
			"postExamples": ["the fiddleheads are unfurling again"]
		}`

		path := createCharacterFile(t, character)
		p, err := loader.Load(path)

		require.NoError(t, err)
		assert.Equal(t, "Holly", p.Name)
		assert.Len(t, p.Bio, 1)
		assert.Len(t, p.Topics, 2)
		assert.Len(t, p.MessageExamples, 1)
		assert.Equal(t, "hi", p.MessageExamples[0][0].Content.Text)
	})

	t.Run("strips UTF-8 BOM before parsing", func(t *testing.T) {
		character := string(utf8BOM) + `{"name": "Holly"}`

		path := createCharacterFile(t, character)
		p, err := loader.Load(path)

		require.NoError(t, err)
		assert.Equal(t, "Holly", p.Name)
	})

	t.Run("rejects character missing name", func(t *testing.T) {
		character := `{"bio": ["no name here"]}`

		path := createCharacterFile(t, character)
		_, err := loader.Load(path)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation")
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		character := `{"name": "Holly",}`

		path := createCharacterFile(t, character)
		_, err := loader.Load(path)

		require.Error(t, err)
	})

	t.Run("fails on missing file", func(t *testing.T) {
		_, err := loader.Load(filepath.Join(t.TempDir(), "absent.json"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read character file")
	})
}

func TestPersona_RandomTopic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	t.Run("returns default seed without topics", func(t *testing.T) {
		p := &Persona{Name: "Holly"}
		assert.Equal(t, DefaultTopicSeed, p.RandomTopic(rng))
	})

	t.Run("picks from configured topics", func(t *testing.T) {
		p := &Persona{Name: "Holly", Topics: []string{"orchids", "ferns", "moss"}}
		for i := 0; i < 20; i++ {
			assert.Contains(t, p.Topics, p.RandomTopic(rng))
		}
	})
}

func TestPersona_Context(t *testing.T) {
	p := &Persona{
		Name:       "Holly",
		System:     "Act as Holly.",
		Bio:        []string{"botanist"},
		Adjectives: []string{"curious"},
		Style: Style{
			All:  []string{"be warm", "be brief"},
			Chat: []string{"ask questions", "be warm"},
			Post: []string{"keep it short"},
		},
		MessageExamples: [][]MessageTurn{
			{
				{User: "visitor", Content: MessageContent{Text: "hi"}},
			},
		},
		PostExamples: []string{"spring again"},
	}

	t.Run("post context includes post style and examples", func(t *testing.T) {
		ctx := p.PostContext()
		assert.Contains(t, ctx, "## Roleplay Instructions for Holly")
		assert.Contains(t, ctx, "**Core System Prompt:** Act as Holly.")
		assert.Contains(t, ctx, "keep it short")
		assert.Contains(t, ctx, "spring again")
		assert.NotContains(t, ctx, "Example Chat Interactions")
	})

	t.Run("chat context includes chat style and examples", func(t *testing.T) {
		ctx := p.ChatContext()
		assert.Contains(t, ctx, "ask questions")
		assert.Contains(t, ctx, "Example Chat Interactions")
		assert.Contains(t, ctx, "visitor: hi")
		assert.NotContains(t, ctx, "spring again")
	})

	t.Run("deduplicates shared style rules", func(t *testing.T) {
		ctx := p.ChatContext()
		assert.Equal(t, 1, countOccurrences(ctx, "be warm"))
	})
}

func TestPersona_Summary(t *testing.T) {
	p := &Persona{Name: "Holly", System: "Act as Holly.", Adjectives: []string{"curious", "upbeat"}}

	s := p.Summary()
	assert.Contains(t, s, "You are Holly.")
	assert.Contains(t, s, "Act as Holly.")
	assert.Contains(t, s, "curious, upbeat")
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func createCharacterFile(t *testing.T, content string) string {
	t.Helper()
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "character.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
