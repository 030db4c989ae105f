package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// MediaLog tracks media filenames that have already been attached to a
// post. Persistence is an append-only log with one filename per line; the
// in-memory set is shared by pointer between the agent and the scheduler
// so both observe marks immediately.
type MediaLog struct {
	path   string
	logger zerolog.Logger

	mu   sync.Mutex
	used map[string]struct{}
}

// NewMediaLog loads the log at path, treating a missing file as empty.
func NewMediaLog(path string, logger zerolog.Logger) (*MediaLog, error) {
	m := &MediaLog{
		path:   path,
		logger: logger.With().Str("component", "media_log").Logger(),
		used:   make(map[string]struct{}),
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Debug().Str("path", path).Msg("No media log yet, starting empty")
			return m, nil
		}
		return nil, fmt.Errorf("failed to open media log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			m.used[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read media log: %w", err)
	}

	m.logger.Info().Int("count", len(m.used)).Msg("Loaded used-media log")

	return m, nil
}

// Used reports whether name has already been posted.
func (m *MediaLog) Used(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.used[name]
	return ok
}

// MarkUsed appends name to the log and adds it to the in-memory set.
// Marking a name that is already used is a no-op. The append happens
// before the set insert so a failure leaves both sides unchanged.
func (m *MediaLog) MarkUsed(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.used[name]; ok {
		return nil
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create media log directory: %w", err)
	}

	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open media log: %w", err)
	}

	if _, err := file.WriteString(name + "\n"); err != nil {
		file.Close()
		return fmt.Errorf("failed to append to media log: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close media log: %w", err)
	}

	m.used[name] = struct{}{}
	m.logger.Debug().Str("media", name).Msg("Marked media as used")

	return nil
}

// Len returns the number of used media files.
func (m *MediaLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.used)
}
