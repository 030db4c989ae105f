package vector

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
	Providers []config.VectorProviderConfig
	Embedding config.EmbeddingConfig
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Events    EventSink
}

// Manager walks an ordered list of search backends until one returns a
// usable result. Store order is fixed at construction. A store whose kind
// cannot consume the query representation it was given is skipped with a
// type-mismatch warning, not crashed into.
type Manager struct {
	stores   []Store
	embedder Embedder
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	events   EventSink
}

// NewManager builds the store chain from config. Entries that are
// disabled, of unknown type, or fail to construct are skipped; one bad
// entry never takes down the chain. The embedding engine is shared by
// every store that needs one; if it cannot be built, stores requiring it
// are skipped entry by entry.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		logger:  cfg.Logger.With().Str("component", "vector-manager").Logger(),
		metrics: cfg.Metrics,
		events:  cfg.Events,
	}

	if len(cfg.Providers) > 0 {
		embedder, err := NewEmbedder(cfg.Embedding)
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to initialize embedding engine")
		} else {
			m.embedder = embedder
		}
	}

	for _, entry := range cfg.Providers {
		name := entry.Name
		if name == "" {
			name = entry.Type
		}
		if !entry.Enabled {
			m.logger.Info().Str("store", name).Msg("Store disabled, skipping")
			continue
		}

		store, err := m.newStore(entry)
		if err != nil {
			m.logger.Error().Err(err).
				Str("store", name).
				Str("type", entry.Type).
				Msg("Failed to initialize store, skipping")
			continue
		}

		m.stores = append(m.stores, store)
		m.logger.Info().Str("store", name).Str("type", entry.Type).Msg("Initialized store")
	}

	if len(m.stores) == 0 {
		m.logger.Warn().Msg("No usable vector stores configured")
	}
	if m.metrics != nil {
		m.metrics.ProvidersConfiguredTotal.WithLabelValues("vector").Set(float64(len(m.stores)))
	}
	return m
}

func (m *Manager) newStore(entry config.VectorProviderConfig) (Store, error) {
	switch entry.Type {
	case "sqlite":
		return NewSQLiteStore(entry, m.embedder, m.logger)
	case "postgres":
		if m.embedder == nil {
			return nil, fmt.Errorf("postgres store needs the embedding dimension but no engine is configured")
		}
		return NewPostgresStore(entry, m.embedder.Dimensions(), m.logger)
	default:
		return nil, fmt.Errorf("unknown store type %q", entry.Type)
	}
}

// Enabled reports whether at least one backend survived construction.
func (m *Manager) Enabled() bool {
	return len(m.stores) > 0
}

// Stores lists the live backend names in fallback order.
func (m *Manager) Stores() []string {
	names := make([]string, len(m.stores))
	for i, s := range m.stores {
		names[i] = s.Name()
	}
	return names
}

// Embedder exposes the shared embedding engine, nil when none was built.
func (m *Manager) Embedder() Embedder {
	return m.embedder
}

// Close releases every live store.
func (m *Manager) Close() error {
	var first error
	for _, s := range m.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// canServe reports whether a store's kind can consume the query
// representation it was given.
func canServe(s Store, q Query) bool {
	switch s.Kind() {
	case KindLocal:
		return q.Text != ""
	case KindRemote:
		return len(q.Embedding) > 0
	default:
		return true
	}
}

// Search tries each store in order and returns the first non-empty result
// set. Exhaustion returns nil, never an error; callers treat an empty
// result as "no context this round".
func (m *Manager) Search(ctx context.Context, q Query) []Match {
	if len(m.stores) == 0 {
		m.logger.Debug().Msg("No stores configured, skipping search")
		return nil
	}

	for _, store := range m.stores {
		if !canServe(store, q) {
			m.logger.Warn().
				Str("store", store.Name()).
				Str("kind", store.Kind()).
				Msg("Query representation mismatch, skipping store")
			continue
		}

		start := time.Now()
		matches, err := store.Search(ctx, q)
		m.observe(store.Name(), "search", start, err, len(matches) > 0)

		if err != nil {
			m.logger.Error().Err(err).Str("store", store.Name()).Msg("Search failed, trying next")
			m.emit("provider_fallback", map[string]any{
				"manager": "vector", "provider": store.Name(), "op": "search", "reason": "error",
			})
			continue
		}
		if len(matches) == 0 {
			m.logger.Warn().Str("store", store.Name()).Msg("Search returned nothing, trying next")
			m.emit("provider_fallback", map[string]any{
				"manager": "vector", "provider": store.Name(), "op": "search", "reason": "empty",
			})
			continue
		}

		m.logger.Debug().Str("store", store.Name()).Int("matches", len(matches)).Msg("Search succeeded")
		return matches
	}

	m.exhausted("search")
	return nil
}

// Add tries each store in order and returns the ids accepted by the first
// store that takes the documents.
func (m *Manager) Add(ctx context.Context, docs []Document, embeddings [][]float32) []string {
	if len(docs) == 0 {
		return nil
	}

	for _, store := range m.stores {
		if store.Kind() == KindRemote && embeddings == nil {
			m.logger.Warn().
				Str("store", store.Name()).
				Msg("Store needs precomputed embeddings, skipping")
			continue
		}

		start := time.Now()
		ids, err := store.Add(ctx, docs, embeddings)
		m.observe(store.Name(), "add", start, err, len(ids) > 0)

		if err != nil {
			m.logger.Error().Err(err).Str("store", store.Name()).Msg("Add failed, trying next")
			continue
		}

		m.logger.Debug().Str("store", store.Name()).Int("count", len(ids)).Msg("Documents added")
		return ids
	}

	m.exhausted("add")
	return nil
}

// Get tries each store in order and returns the first hit.
func (m *Manager) Get(ctx context.Context, id string) *Document {
	for _, store := range m.stores {
		start := time.Now()
		doc, err := store.Get(ctx, id)
		m.observe(store.Name(), "get", start, err, doc != nil)

		if err != nil {
			m.logger.Error().Err(err).Str("store", store.Name()).Str("id", id).Msg("Get failed, trying next")
			continue
		}
		if doc == nil {
			continue
		}
		return doc
	}

	m.exhausted("get")
	return nil
}

// Delete tries each store in order and reports whether any store
// confirmed the deletion.
func (m *Manager) Delete(ctx context.Context, ids []string) bool {
	for _, store := range m.stores {
		start := time.Now()
		ok, err := store.Delete(ctx, ids)
		m.observe(store.Name(), "delete", start, err, ok)

		if err != nil {
			m.logger.Error().Err(err).Str("store", store.Name()).Msg("Delete failed, trying next")
			continue
		}
		if !ok {
			continue
		}
		return true
	}

	m.exhausted("delete")
	return false
}

func (m *Manager) exhausted(op string) {
	m.logger.Warn().Str("op", op).Msg("All stores exhausted")
	if m.metrics != nil {
		m.metrics.FallbackExhaustedTotal.WithLabelValues("vector", op).Inc()
	}
}

func (m *Manager) observe(store, op string, start time.Time, err error, usable bool) {
	if m.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case !usable:
		outcome = "empty"
	}
	m.metrics.ProviderCallsTotal.WithLabelValues("vector", store, op, outcome).Inc()
	m.metrics.ProviderCallDuration.WithLabelValues("vector", store, op).Observe(time.Since(start).Seconds())
}

func (m *Manager) emit(event string, fields map[string]any) {
	if m.events != nil {
		m.events.Emit(event, fields)
	}
}
