package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionPlainJSON(t *testing.T) {
	d, err := ParseDecision(`{"action": "reply", "text": "hello there"}`)
	require.NoError(t, err)
	assert.Equal(t, "reply", d.Action)
	assert.Equal(t, "hello there", d.Text)
}

func TestParseDecisionStripsFences(t *testing.T) {
	raw := "```json\n{\"action\": \"like\", \"text\": \"\"}\n```"
	d, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, "like", d.Action)
}

func TestParseDecisionToleratesSurroundingProse(t *testing.T) {
	raw := `Sure, here is my decision: {"action": "QUOTE_TWEET", "text": "worth a look"} hope that helps`
	d, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.Equal(t, "quote_tweet", d.Action)
	assert.Equal(t, "worth a look", d.Text)
}

func TestParseDecisionRejectsGarbage(t *testing.T) {
	_, err := ParseDecision("no structure at all")
	assert.Error(t, err)
}

func TestParseDecisionRejectsMissingAction(t *testing.T) {
	_, err := ParseDecision(`{"text": "orphaned"}`)
	assert.Error(t, err)
}
