// Package ledger holds the agent's durable idempotence state: the set of
// items already acted upon and the set of media files already posted.
// Every mutation is persisted synchronously before it returns so a crash
// right after a dispatched action never leaves the ledger behind the
// action itself.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// interactionsFile is the on-disk shape of the interaction ledger.
type interactionsFile struct {
	Interacted []string `json:"interacted"`
}

// InteractionStore tracks which item ids have already been acted upon.
// The full set lives in memory; the file is the crash-recovery copy.
// Growth is unbounded, which is accepted at this scale.
type InteractionStore struct {
	path   string
	logger zerolog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInteractionStore loads the ledger at path, treating a missing file as
// an empty ledger.
func NewInteractionStore(path string, logger zerolog.Logger) (*InteractionStore, error) {
	s := &InteractionStore{
		path:   path,
		logger: logger.With().Str("component", "interaction_store").Logger(),
		seen:   make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("path", path).Msg("No interaction ledger yet, starting empty")
			return s, nil
		}
		return nil, fmt.Errorf("failed to read interaction ledger: %w", err)
	}

	var file interactionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse interaction ledger: %w", err)
	}

	for _, id := range file.Interacted {
		if id != "" {
			s.seen[id] = struct{}{}
		}
	}

	s.logger.Info().Int("count", len(s.seen)).Msg("Loaded interaction ledger")

	return s, nil
}

// Has reports whether id has already been acted upon.
func (s *InteractionStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[id]
	return ok
}

// Add records id as acted upon and persists before returning. Adding an
// id that is already present is a no-op.
func (s *InteractionStore) Add(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return nil
	}

	s.seen[id] = struct{}{}
	if err := s.persistLocked(); err != nil {
		delete(s.seen, id)
		return fmt.Errorf("failed to persist interaction %s: %w", id, err)
	}

	s.logger.Debug().Str("id", id).Msg("Recorded interaction")
	return nil
}

// Remove forgets id, persisting before returning.
func (s *InteractionStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; !ok {
		return nil
	}

	delete(s.seen, id)
	if err := s.persistLocked(); err != nil {
		s.seen[id] = struct{}{}
		return fmt.Errorf("failed to persist interaction removal %s: %w", id, err)
	}

	return nil
}

// Clear empties the ledger, persisting before returning.
func (s *InteractionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.seen
	s.seen = make(map[string]struct{})
	if err := s.persistLocked(); err != nil {
		s.seen = old
		return fmt.Errorf("failed to persist cleared ledger: %w", err)
	}

	s.logger.Info().Int("removed", len(old)).Msg("Cleared interaction ledger")
	return nil
}

// Len returns the number of recorded interactions.
func (s *InteractionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.seen)
}

// persistLocked writes the ledger atomically. Callers hold s.mu.
func (s *InteractionStore) persistLocked() error {
	ids := make([]string, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(interactionsFile{Interacted: ids}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
