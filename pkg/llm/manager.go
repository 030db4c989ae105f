package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/config"
	"github.com/harun/magpie/internal/metrics"
)

// EventSink receives manager events for the ops console. A nil sink
// disables emission.
type EventSink interface {
	Emit(event string, fields map[string]any)
}

// ManagerConfig configures the fallback manager.
type ManagerConfig struct {
	Providers []config.LLMProviderConfig
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Events    EventSink
}

// Manager walks an ordered list of language backends until one returns a
// usable result. Provider order is fixed at construction: no reordering,
// no promotion, no circuit breaking.
type Manager struct {
	providers []Provider
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	events    EventSink
}

// NewManager builds the provider chain from config. Entries that are
// disabled, of unknown type, or fail to construct are skipped; one bad
// entry never takes down the chain.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		logger:  cfg.Logger.With().Str("component", "llm-manager").Logger(),
		metrics: cfg.Metrics,
		events:  cfg.Events,
	}

	for _, entry := range cfg.Providers {
		name := entry.Name
		if name == "" {
			name = entry.Type
		}
		if !entry.Enabled {
			m.logger.Info().Str("provider", name).Msg("Provider disabled, skipping")
			continue
		}

		provider, err := newProvider(entry)
		if err != nil {
			m.logger.Error().Err(err).
				Str("provider", name).
				Str("type", entry.Type).
				Msg("Failed to initialize provider, skipping")
			continue
		}

		m.providers = append(m.providers, provider)
		m.logger.Info().Str("provider", name).Str("type", entry.Type).Msg("Initialized provider")
	}

	if len(m.providers) == 0 {
		m.logger.Warn().Msg("No usable language providers configured")
	}
	if m.metrics != nil {
		m.metrics.ProvidersConfiguredTotal.WithLabelValues("llm").Set(float64(len(m.providers)))
	}
	return m
}

func newProvider(entry config.LLMProviderConfig) (Provider, error) {
	switch entry.Type {
	case "anthropic":
		return NewAnthropicProvider(entry)
	case "openai":
		return NewOpenAIProvider(entry)
	case "gemini":
		return NewGeminiProvider(entry)
	default:
		return nil, fmt.Errorf("unknown provider type %q", entry.Type)
	}
}

// Enabled reports whether at least one backend survived construction.
func (m *Manager) Enabled() bool {
	return len(m.providers) > 0
}

// Providers lists the live backend names in fallback order.
func (m *Manager) Providers() []string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return names
}

// GenerateText tries each backend in order and returns the first usable
// result. Exhaustion returns an empty result, never an error.
func (m *Manager) GenerateText(ctx context.Context, req TextRequest) Result {
	return m.walk(ctx, "generate_text", func(p Provider) (Result, error) {
		return p.GenerateText(ctx, req)
	})
}

// AnalyzeImage tries each backend in order for an image description.
func (m *Manager) AnalyzeImage(ctx context.Context, req ImageRequest) Result {
	return m.walk(ctx, "analyze_image", func(p Provider) (Result, error) {
		return p.AnalyzeImage(ctx, req)
	})
}

// AnalyzeVideo tries each backend in order for a video description.
func (m *Manager) AnalyzeVideo(ctx context.Context, req VideoRequest) Result {
	return m.walk(ctx, "analyze_video", func(p Provider) (Result, error) {
		return p.AnalyzeVideo(ctx, req)
	})
}

func (m *Manager) walk(ctx context.Context, op string, call func(Provider) (Result, error)) Result {
	if len(m.providers) == 0 {
		m.logger.Error().Str("op", op).Msg("No providers configured")
		return Result{}
	}

	for _, provider := range m.providers {
		start := time.Now()
		result, err := call(provider)
		m.observe(provider.Name(), op, start, err, result)

		if err != nil {
			m.logger.Error().Err(err).
				Str("provider", provider.Name()).
				Str("op", op).
				Msg("Provider call failed, trying next")
			m.emit("provider_fallback", map[string]any{
				"manager": "llm", "provider": provider.Name(), "op": op, "reason": "error",
			})
			continue
		}
		if result.Empty() {
			m.logger.Warn().
				Str("provider", provider.Name()).
				Str("op", op).
				Msg("Provider returned no result, trying next")
			m.emit("provider_fallback", map[string]any{
				"manager": "llm", "provider": provider.Name(), "op": op, "reason": "empty",
			})
			continue
		}

		m.logger.Debug().Str("provider", provider.Name()).Str("op", op).Msg("Provider call succeeded")
		return result
	}

	m.logger.Error().Str("op", op).Msg("All providers exhausted")
	if m.metrics != nil {
		m.metrics.FallbackExhaustedTotal.WithLabelValues("llm", op).Inc()
	}
	return Result{}
}

func (m *Manager) observe(provider, op string, start time.Time, err error, result Result) {
	if m.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case result.Empty():
		outcome = "empty"
	}
	m.metrics.ProviderCallsTotal.WithLabelValues("llm", provider, op, outcome).Inc()
	m.metrics.ProviderCallDuration.WithLabelValues("llm", provider, op).Observe(time.Since(start).Seconds())
}

func (m *Manager) emit(event string, fields map[string]any) {
	if m.events != nil {
		m.events.Emit(event, fields)
	}
}
