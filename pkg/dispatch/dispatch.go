// Package dispatch maps a decided action onto the social client, gated by
// the interaction ledger so the same item is never acted on twice.
package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/metrics"
	"github.com/harun/magpie/pkg/ledger"
)

// Kind names one supported timeline action. The set is closed; anything
// else is refused with a warning, not an error.
type Kind string

const (
	KindQuote   Kind = "quote"
	KindReply   Kind = "reply"
	KindLike    Kind = "like"
	KindRetweet Kind = "retweet"
)

// SupportedKinds lists every dispatchable action kind.
func SupportedKinds() []Kind {
	return []Kind{KindQuote, KindReply, KindLike, KindRetweet}
}

// ParseKind normalizes a model-produced action name. Models are prompted
// with the upper-case forms but tend to improvise, so common spellings of
// each kind are accepted.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quote", "quote_tweet", "quotetweet":
		return KindQuote, true
	case "reply":
		return KindReply, true
	case "like", "favorite":
		return KindLike, true
	case "retweet", "repost":
		return KindRetweet, true
	default:
		return "", false
	}
}

// Actioner performs interactions on existing posts.
type Actioner interface {
	Reply(ctx context.Context, id, text string) error
	Like(ctx context.Context, id string) error
	Retweet(ctx context.Context, id string) error
	Quote(ctx context.Context, id, text, mediaPath string) error
}

// EventSink receives dispatch events for the ops console.
type EventSink interface {
	Emit(event string, fields map[string]any)
}

// Request describes one action to dispatch.
type Request struct {
	Kind      Kind
	ItemID    string
	Text      string
	MediaPath string
	// AllowRepeat bypasses the ledger check for ongoing conversations.
	AllowRepeat bool
}

// Config wires a Dispatcher.
type Config struct {
	Social  Actioner
	Store   *ledger.InteractionStore
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Events  EventSink
}

// Dispatcher routes decided actions to the social client.
type Dispatcher struct {
	social  Actioner
	store   *ledger.InteractionStore
	logger  zerolog.Logger
	metrics *metrics.Metrics
	events  EventSink
}

// New builds a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Social == nil {
		return nil, errors.New("social client is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("interaction store is required")
	}
	return &Dispatcher{
		social:  cfg.Social,
		store:   cfg.Store,
		logger:  cfg.Logger.With().Str("component", "dispatch").Logger(),
		metrics: cfg.Metrics,
		events:  cfg.Events,
	}, nil
}

// ShouldAct reports whether an action on id should proceed: always when
// allowRepeat is set, otherwise only if the ledger has no record of id.
func (d *Dispatcher) ShouldAct(id string, allowRepeat bool) bool {
	if allowRepeat {
		return true
	}
	return !d.store.Has(id)
}

// Dispatch performs the requested action. It returns (false, nil) when the
// action was suppressed or the kind is unknown, and (true, nil) when the
// external call succeeded.
//
// The interaction is recorded after the external call regardless of that
// call's outcome: a delivery the platform reported as failed may still
// have landed, and a duplicate public post is worse than a silently
// skipped retry. Only a ledger persistence failure makes the whole
// dispatch fail, since losing durability risks exactly that duplicate.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (bool, error) {
	log := d.logger.With().Str("kind", string(req.Kind)).Str("id", req.ItemID).Logger()

	if !d.ShouldAct(req.ItemID, req.AllowRepeat) {
		log.Debug().Msg("Already interacted, suppressing")
		if d.metrics != nil {
			d.metrics.ActionsSuppressedTotal.Inc()
		}
		return false, nil
	}

	var callErr error
	switch req.Kind {
	case KindQuote:
		callErr = d.social.Quote(ctx, req.ItemID, req.Text, req.MediaPath)
	case KindReply:
		callErr = d.social.Reply(ctx, req.ItemID, req.Text)
	case KindLike:
		callErr = d.social.Like(ctx, req.ItemID)
	case KindRetweet:
		callErr = d.social.Retweet(ctx, req.ItemID)
	default:
		log.Warn().Msg("Unsupported action kind, ignoring")
		d.count(req.Kind, "unsupported")
		return false, nil
	}

	if err := d.store.Add(req.ItemID); err != nil {
		d.count(req.Kind, "ledger_error")
		if callErr != nil {
			return false, errors.Join(callErr, err)
		}
		return false, err
	}

	if callErr != nil {
		log.Error().Err(callErr).Msg("Action failed, interaction recorded anyway")
		d.count(req.Kind, "error")
		return false, callErr
	}

	log.Info().Msg("Action dispatched")
	d.count(req.Kind, "ok")
	if d.events != nil {
		d.events.Emit("action_dispatched", map[string]any{
			"kind": string(req.Kind), "id": req.ItemID,
		})
	}
	return true, nil
}

func (d *Dispatcher) count(kind Kind, outcome string) {
	if d.metrics != nil {
		d.metrics.ActionsDispatchedTotal.WithLabelValues(string(kind), outcome).Inc()
	}
}
