package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Decision is the structured answer the model returns for a timeline item.
// Action is one of the dispatch kinds or "none"; Text carries the reply or
// quote body when the action needs one.
type Decision struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

// ParseDecision parses a model response into a Decision. Models often wrap
// JSON in markdown fences or lead-in prose; both are stripped before the
// strict parse. Anything that still fails to parse is an error, not a
// default action.
func ParseDecision(raw string) (Decision, error) {
	s := stripFences(strings.TrimSpace(raw))

	// Tolerate prose around the object by cutting to its braces
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}

	var d Decision
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Decision{}, fmt.Errorf("failed to parse decision: %w", err)
	}
	if d.Action == "" {
		return Decision{}, errors.New("decision carries no action")
	}
	d.Action = strings.ToLower(strings.TrimSpace(d.Action))
	d.Text = strings.TrimSpace(d.Text)
	return d, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag like ```json
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
