// Package scheduler runs content-generation cycles: each cycle retrieves
// topical context, fills up to a per-cycle quota of post slots with
// generated text or captioned media, and hands the finished content to a
// publisher. Slot failures are absorbed; only a ledger persistence
// failure aborts a cycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/config"
	"github.com/harun/magpie/internal/metrics"
	"github.com/harun/magpie/pkg/ledger"
	"github.com/harun/magpie/pkg/llm"
	"github.com/harun/magpie/pkg/media"
	"github.com/harun/magpie/pkg/persona"
	"github.com/harun/magpie/pkg/vector"
)

// TextEngine is the slice of the language fallback manager the scheduler
// uses.
type TextEngine interface {
	GenerateText(ctx context.Context, req llm.TextRequest) llm.Result
	AnalyzeImage(ctx context.Context, req llm.ImageRequest) llm.Result
}

// ContextSearcher is the slice of the vector fallback manager the
// scheduler uses.
type ContextSearcher interface {
	Search(ctx context.Context, q vector.Query) []vector.Match
	Enabled() bool
}

// Publisher receives finished content. The social client publishes
// immediately; the post queue defers to a scheduled time.
type Publisher interface {
	Publish(ctx context.Context, text, mediaPath string) error
}

// EventSink receives scheduler events for the ops console.
type EventSink interface {
	Emit(event string, fields map[string]any)
}

// Config wires a Scheduler.
type Config struct {
	Posting   config.PostingConfig
	LLM       TextEngine
	Vector    ContextSearcher
	Media     *media.Library
	MediaLog  *ledger.MediaLog
	Persona   *persona.Persona
	Publisher Publisher
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Events    EventSink
	// Rand seeds the media draws; nil uses a time-seeded source.
	Rand *rand.Rand
}

// Scheduler generates and publishes original content.
type Scheduler struct {
	cfg       config.PostingConfig
	llm       TextEngine
	vector    ContextSearcher
	media     *media.Library
	mediaLog  *ledger.MediaLog
	persona   *persona.Persona
	publisher Publisher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	events    EventSink
	rng       *rand.Rand
}

// New builds a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.LLM == nil {
		return nil, errors.New("language manager is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if cfg.MediaLog == nil {
		return nil, errors.New("media log is required")
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Scheduler{
		cfg:       cfg.Posting,
		llm:       cfg.LLM,
		vector:    cfg.Vector,
		media:     cfg.Media,
		mediaLog:  cfg.MediaLog,
		persona:   cfg.Persona,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.With().Str("component", "scheduler").Logger(),
		metrics:   cfg.Metrics,
		events:    cfg.Events,
		rng:       rng,
	}, nil
}

// RunCycle executes one scheduling cycle and returns how many posts were
// handed to the publisher. Per-slot failures never abort the cycle; a
// media-log persistence failure does, because continuing past a broken
// ledger risks reposting the same file.
func (s *Scheduler) RunCycle(ctx context.Context) int {
	start := time.Now()
	s.logger.Info().Msg("Starting scheduling cycle")

	topic := persona.DefaultTopicSeed
	if s.persona != nil {
		topic = s.persona.RandomTopic(s.rng)
	}
	contextBlock := s.retrieveContext(ctx, topic)

	var total, mediaScheduled int
	for slot := 0; slot < s.cfg.MaxPerCycle; slot++ {
		if total >= s.cfg.MaxPerCycle {
			break
		}

		text, mediaPath := s.fillSlot(ctx, topic, contextBlock, mediaScheduled)
		if text == "" {
			// No usable text: the slot is skipped entirely, consuming
			// no budget and marking no media
			s.logger.Info().Int("slot", slot).Msg("No content for slot, skipping")
			if s.metrics != nil {
				s.metrics.SlotsSkippedTotal.Inc()
			}
			continue
		}

		if err := s.publisher.Publish(ctx, text, mediaPath); err != nil {
			s.logger.Error().Err(err).Int("slot", slot).Msg("Failed to publish slot")
			continue
		}
		total++

		kind := "text"
		if mediaPath != "" {
			kind = "media"
			name := filepath.Base(mediaPath)
			if err := s.mediaLog.MarkUsed(name); err != nil {
				s.logger.Error().Err(err).Str("media", name).
					Msg("Media log persistence failed, aborting cycle")
				s.observeCycle(start)
				return total
			}
			mediaScheduled++
		}

		if s.metrics != nil {
			s.metrics.PostsScheduledTotal.WithLabelValues(kind).Inc()
		}
		s.emit("post_scheduled", map[string]any{"kind": kind, "length": len(text)})
	}

	s.logger.Info().
		Int("scheduled", total).
		Int("media", mediaScheduled).
		Msg("Scheduling cycle finished")
	s.emit("cycle_complete", map[string]any{"scheduled": total, "media": mediaScheduled})
	s.observeCycle(start)

	return total
}

// fillSlot resolves one slot to text plus an optional media path. An
// empty text means the slot is skipped.
func (s *Scheduler) fillSlot(ctx context.Context, topic, contextBlock string, mediaScheduled int) (text, mediaPath string) {
	if s.mediaEligible(mediaScheduled) {
		if path, ok := s.pickMedia(); ok {
			caption := s.captionMedia(ctx, path, contextBlock)
			if caption == "" {
				// A failed caption skips the slot rather than falling back
				// to text, so the picked file stays unused
				return "", ""
			}
			return caption, path
		}
		s.logger.Info().Msg("No unused media available, falling back to text")
	}

	return s.generateText(ctx, topic, contextBlock), ""
}

func (s *Scheduler) mediaEligible(mediaScheduled int) bool {
	return mediaScheduled < s.cfg.MaxMediaPerCycle &&
		s.rng.Float64() < s.cfg.MediaProbability
}

func (s *Scheduler) pickMedia() (string, bool) {
	if s.media == nil {
		return "", false
	}
	return s.media.PickUnused(s.rng, s.mediaLog.Used)
}

// retrieveContext searches the vector backends for snippets related to
// the topic. Any failure yields an empty context; generation proceeds
// without it.
func (s *Scheduler) retrieveContext(ctx context.Context, topic string) string {
	if s.vector == nil || !s.vector.Enabled() {
		s.logger.Debug().Msg("Vector search unavailable, proceeding without context")
		return ""
	}

	matches := s.vector.Search(ctx, vector.Query{Text: topic, TopK: 3})
	if len(matches) == 0 {
		s.logger.Debug().Str("topic", topic).Msg("No context found for topic")
		return ""
	}

	snippets := make([]string, 0, len(matches))
	for _, m := range matches {
		if t := strings.TrimSpace(m.Text); t != "" {
			snippets = append(snippets, t)
		}
	}
	if len(snippets) == 0 {
		return ""
	}

	s.logger.Info().Str("topic", topic).Int("snippets", len(snippets)).Msg("Retrieved context")
	return "Contextual Information:\n" + strings.Join(snippets, "\n---\n") + "\n\n"
}

func (s *Scheduler) captionMedia(ctx context.Context, path, contextBlock string) string {
	prompt := "Analyze the image and generate a post caption for it, reflecting your persona."
	if contextBlock != "" {
		prompt = contextBlock + "Based on the context above and your persona, analyze the image and generate a suitable post caption."
	}

	res := s.llm.AnalyzeImage(ctx, llm.ImageRequest{
		Path:   path,
		Prompt: prompt,
		System: s.systemPrompt(),
	})
	if res.Empty() {
		s.logger.Warn().Str("media", filepath.Base(path)).Msg("No caption produced for media")
		return ""
	}
	return res.Text
}

func (s *Scheduler) generateText(ctx context.Context, topic, contextBlock string) string {
	prompt := fmt.Sprintf("Based on your persona, generate a post about: %s.", topic)
	if contextBlock != "" {
		prompt = fmt.Sprintf("%sBased on the context above and your persona, generate a post about: %s.", contextBlock, topic)
	}

	res := s.llm.GenerateText(ctx, llm.TextRequest{
		Prompt: prompt,
		System: s.systemPrompt(),
	})
	if res.Empty() {
		s.logger.Warn().Str("topic", topic).Msg("No text produced for topic")
		return ""
	}
	return res.Text
}

func (s *Scheduler) systemPrompt() string {
	if s.persona == nil {
		return ""
	}
	return s.persona.PostContext()
}

func (s *Scheduler) observeCycle(start time.Time) {
	if s.metrics != nil {
		s.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *Scheduler) emit(event string, fields map[string]any) {
	if s.events != nil {
		s.events.Emit(event, fields)
	}
}
