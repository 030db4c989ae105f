package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/magpie/pkg/dispatch"
	"github.com/harun/magpie/pkg/social"
	"github.com/harun/magpie/pkg/vector"
)

func item(id, text string) social.Item {
	return social.Item{ID: id, Text: text, Author: social.Author{Handle: "someone"}}
}

func newPassAgent(t *testing.T, cfg Config) *Agent {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func TestEmptyPollDispatchesNothing(t *testing.T) {
	cfg := baseConfig()
	sink := &fakeSink{}
	llmFake := &fakeLLM{enabled: true}
	cfg.Dispatcher = sink
	cfg.LLM = llmFake

	a := newPassAgent(t, cfg)
	a.runActionsPass(context.Background())

	assert.Empty(t, sink.requests)
	assert.Empty(t, llmFake.prompts)
	assert.EqualValues(t, 1, a.Stats().ActionPasses)
}

func TestPassTruncatesToBudget(t *testing.T) {
	cfg := baseConfig()
	cfg.Actions.MaxPerCycle = 2
	poller := &fakePoller{items: []social.Item{
		item("1", "a"), item("2", "b"), item("3", "c"), item("4", "d"),
	}}
	sink := &fakeSink{}
	cfg.Social = poller
	cfg.Dispatcher = sink
	cfg.LLM = &fakeLLM{enabled: true, responses: []string{
		`{"action": "like"}`, `{"action": "like"}`,
	}}

	a := newPassAgent(t, cfg)
	a.runActionsPass(context.Background())

	require.Len(t, sink.requests, 2)
	assert.Equal(t, "1", sink.requests[0].ItemID)
	assert.Equal(t, "2", sink.requests[1].ItemID)
	// The poll reaches past the budget for headroom
	assert.Greater(t, poller.count, 2)
}

func TestSuppressedItemsSkipTheModel(t *testing.T) {
	cfg := baseConfig()
	poller := &fakePoller{items: []social.Item{item("seen", "old news")}}
	sink := &fakeSink{suppress: map[string]bool{"seen": true}}
	llmFake := &fakeLLM{enabled: true}
	cfg.Social = poller
	cfg.Dispatcher = sink
	cfg.LLM = llmFake

	a := newPassAgent(t, cfg)
	a.runActionsPass(context.Background())

	assert.Empty(t, llmFake.prompts)
	assert.Empty(t, sink.requests)
}

func TestUnparsableDecisionSkipsItem(t *testing.T) {
	cfg := baseConfig()
	cfg.Social = &fakePoller{items: []social.Item{item("1", "a")}}
	sink := &fakeSink{}
	cfg.Dispatcher = sink
	cfg.LLM = &fakeLLM{enabled: true, responses: []string{"I would rather not say"}}

	a := newPassAgent(t, cfg)
	a.runActionsPass(context.Background())

	assert.Empty(t, sink.requests)
}

func TestNoneDecisionSkipsItem(t *testing.T) {
	cfg := baseConfig()
	cfg.Social = &fakePoller{items: []social.Item{item("1", "a")}}
	sink := &fakeSink{}
	cfg.Dispatcher = sink
	cfg.LLM = &fakeLLM{enabled: true, responses: []string{`{"action": "none"}`}}

	a := newPassAgent(t, cfg)
	a.runActionsPass(context.Background())

	assert.Empty(t, sink.requests)
}

func TestConversationItemsAllowRepeat(t *testing.T) {
	cfg := baseConfig()
	reply := item("42", "replying to you")
	reply.IsReply = true
	cfg.Social = &fakePoller{items: []social.Item{reply}}
	sink := &fakeSink{suppress: map[string]bool{"42": true}}
	cfg.Dispatcher = sink
	cfg.LLM = &fakeLLM{enabled: true, responses: []string{`{"action": "reply", "text": "hey"}`}}

	a := newPassAgent(t, cfg)
	a.runActionsPass(context.Background())

	require.Len(t, sink.requests, 1)
	assert.True(t, sink.requests[0].AllowRepeat)
	assert.Equal(t, dispatch.KindReply, sink.requests[0].Kind)
}

func TestReplyTextRefinedWithContext(t *testing.T) {
	cfg := baseConfig()
	cfg.Social = &fakePoller{items: []social.Item{item("1", "thoughts on compilers?")}}
	sink := &fakeSink{}
	cfg.Dispatcher = sink
	cfg.Vector = &fakeSearcher{enabled: true, matches: []vector.Match{
		{Document: vector.Document{ID: "d1", Text: "we shipped a compiler last year"}, Score: 0.9},
	}}
	cfg.LLM = &fakeLLM{enabled: true, responses: []string{
		`{"action": "reply", "text": "interesting"}`,
		"We actually shipped one last year.",
	}}

	a := newPassAgent(t, cfg)
	a.runActionsPass(context.Background())

	require.Len(t, sink.requests, 1)
	assert.Equal(t, "We actually shipped one last year.", sink.requests[0].Text)
}

func TestRefinementFailureKeepsDraft(t *testing.T) {
	cfg := baseConfig()
	cfg.Social = &fakePoller{items: []social.Item{item("1", "hello")}}
	sink := &fakeSink{}
	cfg.Dispatcher = sink
	cfg.Vector = &fakeSearcher{enabled: true, matches: []vector.Match{
		{Document: vector.Document{ID: "d1", Text: "ctx"}, Score: 0.5},
	}}
	// Second call (the refinement) returns the empty sentinel
	cfg.LLM = &fakeLLM{enabled: true, responses: []string{
		`{"action": "reply", "text": "draft"}`,
	}}

	a := newPassAgent(t, cfg)
	a.runActionsPass(context.Background())

	require.Len(t, sink.requests, 1)
	assert.Equal(t, "draft", sink.requests[0].Text)
}

func TestLikeSkipsRefinement(t *testing.T) {
	cfg := baseConfig()
	cfg.Social = &fakePoller{items: []social.Item{item("1", "nice")}}
	sink := &fakeSink{}
	llmFake := &fakeLLM{enabled: true, responses: []string{`{"action": "like"}`}}
	cfg.Dispatcher = sink
	cfg.LLM = llmFake
	cfg.Vector = &fakeSearcher{enabled: true, matches: []vector.Match{
		{Document: vector.Document{ID: "d1", Text: "ctx"}, Score: 0.5},
	}}

	a := newPassAgent(t, cfg)
	a.runActionsPass(context.Background())

	require.Len(t, sink.requests, 1)
	assert.Equal(t, dispatch.KindLike, sink.requests[0].Kind)
	// Only the decision call happened
	assert.Len(t, llmFake.prompts, 1)
}
