package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/magpie/pkg/dispatch"
	"github.com/harun/magpie/pkg/llm"
	"github.com/harun/magpie/pkg/social"
	"github.com/harun/magpie/pkg/vector"
)

// Poll deeper than the per-cycle budget so items already acted on do not
// starve the pass.
const pollDepthFactor = 2

// runActionsPass polls the timeline and works through it item by item:
// suppression check, model decision, dispatch. Item-level failures are
// logged and skipped; only an empty or failed poll ends the pass early.
func (a *Agent) runActionsPass(ctx context.Context) {
	maxActions := a.cfg.Actions.MaxPerCycle
	if maxActions <= 0 {
		maxActions = 1
	}

	items, err := a.cfg.Social.Poll(ctx, a.cfg.Actions.Timeline, maxActions*pollDepthFactor)
	if err != nil {
		a.logger.Error().Err(err).Msg("Timeline poll failed")
		return
	}
	if a.metrics != nil {
		a.metrics.PollItemsTotal.Add(float64(len(items)))
	}
	if len(items) == 0 {
		a.logger.Info().Msg("Timeline empty, nothing to act on")
		a.actionPasses.Add(1)
		return
	}
	if len(items) > maxActions {
		items = items[:maxActions]
	}

	dispatched := 0
	for _, item := range items {
		// Conversation items may be acted on repeatedly
		allowRepeat := item.IsReply

		if !a.cfg.Dispatcher.ShouldAct(item.ID, allowRepeat) {
			a.logger.Debug().Str("item", item.ID).Msg("Already handled, skipping")
			continue
		}

		decision, err := a.decide(ctx, item)
		if err != nil {
			a.logger.Warn().Err(err).Str("item", item.ID).Msg("No usable decision, skipping")
			continue
		}

		kind, ok := dispatch.ParseKind(decision.Action)
		if !ok {
			a.logger.Debug().Str("item", item.ID).Str("action", decision.Action).Msg("Declined to act")
			continue
		}

		text := decision.Text
		if kind == dispatch.KindReply || kind == dispatch.KindQuote {
			text = a.refineText(ctx, item, text)
		}

		ok, err = a.cfg.Dispatcher.Dispatch(ctx, dispatch.Request{
			Kind:        kind,
			ItemID:      item.ID,
			Text:        text,
			AllowRepeat: allowRepeat,
		})
		if err != nil {
			a.logger.Warn().Err(err).Str("item", item.ID).Str("kind", string(kind)).Msg("Dispatch failed")
			continue
		}
		if ok {
			dispatched++
		}
	}

	a.actionPasses.Add(1)
	a.logger.Info().Int("items", len(items)).Int("dispatched", dispatched).Msg("Action pass complete")
	a.emit("action_pass_complete", map[string]any{"items": len(items), "dispatched": dispatched})
}

// decide asks the language manager what to do with a timeline item and
// parses the structured answer.
func (a *Agent) decide(ctx context.Context, item social.Item) (Decision, error) {
	res := a.cfg.LLM.GenerateText(ctx, llm.TextRequest{
		System: a.decisionSystem(),
		Prompt: a.decisionPrompt(item),
	})
	if res.Empty() {
		return Decision{}, fmt.Errorf("no backend produced a decision")
	}
	return ParseDecision(res.Text)
}

func (a *Agent) decisionSystem() string {
	var b strings.Builder
	if a.cfg.Persona != nil {
		b.WriteString(a.cfg.Persona.ChatContext())
		b.WriteString("\n\n")
	}
	b.WriteString("You are deciding how to react to a post on your timeline.")
	return b.String()
}

func (a *Agent) decisionPrompt(item social.Item) string {
	kinds := make([]string, 0, len(dispatch.SupportedKinds()))
	for _, k := range dispatch.SupportedKinds() {
		kinds = append(kinds, string(k))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Post by @%s:\n%s\n\n", item.Author.Handle, item.Text)
	fmt.Fprintf(&b, "Choose one action: %s, or none.\n", strings.Join(kinds, ", "))
	b.WriteString("Respond with JSON only: {\"action\": \"...\", \"text\": \"...\"}.\n")
	b.WriteString("Use text for reply and quote actions; leave it empty otherwise.")
	return b.String()
}

// refineText rewrites a reply using stored context when the vector layer
// has something relevant. Any retrieval or generation failure keeps the
// original text.
func (a *Agent) refineText(ctx context.Context, item social.Item, text string) string {
	if text == "" || a.cfg.Vector == nil || !a.cfg.Vector.Enabled() {
		return text
	}

	matches := a.cfg.Vector.Search(ctx, vector.Query{Text: item.Text, TopK: 2})
	if len(matches) == 0 {
		return text
	}

	snippets := make([]string, 0, len(matches))
	for _, m := range matches {
		snippets = append(snippets, m.Text)
	}

	res := a.cfg.LLM.GenerateText(ctx, llm.TextRequest{
		System: a.decisionSystem(),
		Prompt: fmt.Sprintf(
			"You drafted this reply to @%s:\n%s\n\nRelevant context:\n%s\n\nRewrite the reply to use the context where it helps. Respond with the reply text only.",
			item.Author.Handle, text, strings.Join(snippets, "\n---\n")),
	})
	if res.Empty() {
		return text
	}
	return strings.TrimSpace(res.Text)
}
