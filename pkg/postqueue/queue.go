package postqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/config"
)

// Poster publishes due entries. The social client satisfies this.
type Poster interface {
	Post(ctx context.Context, text string) error
	PostWithMedia(ctx context.Context, text, mediaPath string) error
}

// Config wires a Queue.
type Config struct {
	Queue  config.QueueConfig
	Poster Poster
	Logger zerolog.Logger
	// Rand seeds the delay draws; nil uses a time-seeded source.
	Rand *rand.Rand
}

// Queue holds deferred posts and fires them when due. Timers run on their
// own goroutines, so all state is mutex-guarded.
type Queue struct {
	cfg    config.QueueConfig
	poster Poster
	logger zerolog.Logger
	window cron.Schedule

	mu      sync.Mutex
	rng     *rand.Rand
	entries map[string]*Entry
	timers  map[string]*time.Timer
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New loads queue state from disk and validates the posting window. Call
// Start to arm timers for pending entries.
func New(cfg Config) (*Queue, error) {
	if cfg.Queue.File == "" {
		return nil, fmt.Errorf("queue file is required")
	}
	if cfg.Poster == nil {
		return nil, fmt.Errorf("poster is required")
	}

	var window cron.Schedule
	if expr := cfg.Queue.PostingWindow; expr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		sched, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid posting window %q: %w", expr, err)
		}
		window = sched
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:     cfg.Queue,
		poster:  cfg.Poster,
		logger:  cfg.Logger.With().Str("component", "postqueue").Logger(),
		window:  window,
		rng:     rng,
		entries: make(map[string]*Entry),
		timers:  make(map[string]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := q.load(); err != nil {
		q.logger.Warn().Err(err).Msg("Failed to load queue state, starting empty")
	}

	return q, nil
}

// Start arms timers for every pending entry. Entries whose time passed
// while the process was down fire immediately.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	armed := 0
	for _, e := range q.entries {
		if e.Status == StatusPending {
			q.armLocked(e)
			armed++
		}
	}
	q.logger.Info().Int("pending", armed).Msg("Post queue started")
}

// Stop cancels all timers. Pending entries stay on disk for the next run.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	q.stopped = true
	q.cancel()
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.logger.Info().Msg("Post queue stopped")
}

// Publish enqueues content with a randomized delay, satisfying the
// scheduler's publisher seam.
func (q *Queue) Publish(ctx context.Context, text, mediaPath string) error {
	_, err := q.Enqueue(text, mediaPath)
	return err
}

// Enqueue adds one deferred post and persists before returning.
func (q *Queue) Enqueue(text, mediaPath string) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return nil, fmt.Errorf("queue is stopped")
	}
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	entry := &Entry{
		ID:        uuid.New().String(),
		Text:      text,
		MediaPath: mediaPath,
		NotBefore: q.nextPublishTimeLocked(time.Now()),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	q.entries[entry.ID] = entry

	if err := q.persistLocked(); err != nil {
		delete(q.entries, entry.ID)
		return nil, fmt.Errorf("failed to persist queue: %w", err)
	}

	q.armLocked(entry)

	q.logger.Info().
		Str("id", entry.ID).
		Time("notBefore", entry.NotBefore).
		Bool("media", mediaPath != "").
		Msg("Post enqueued")

	return entry, nil
}

// Cancel drops a pending entry.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[id]
	if !ok {
		return fmt.Errorf("entry not found: %s", id)
	}
	if entry.Status != StatusPending {
		return fmt.Errorf("entry %s is %s, not pending", id, entry.Status)
	}

	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	delete(q.entries, id)

	if err := q.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}

	q.logger.Info().Str("id", id).Msg("Entry cancelled")
	return nil
}

// List returns all entries ordered by creation time.
func (q *Queue) List() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Entry, 0, len(q.entries))
	for _, e := range q.entries {
		copied := *e
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Pending counts entries still waiting to fire.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.entries {
		if e.Status == StatusPending {
			n++
		}
	}
	return n
}

// nextPublishTimeLocked draws the configured delay and defers it to the
// next allowed window when one is configured. Callers hold q.mu.
func (q *Queue) nextPublishTimeLocked(now time.Time) time.Time {
	min := time.Duration(q.cfg.DelayMinSecs) * time.Second
	max := time.Duration(q.cfg.DelayMaxSecs) * time.Second

	delay := min
	if max > min {
		delay = min + time.Duration(q.rng.Int63n(int64(max-min)+1))
	}

	at := now.Add(delay)
	if q.window != nil {
		at = q.window.Next(at)
	}
	return at
}

// armLocked schedules the fire timer for a pending entry. Callers hold
// q.mu.
func (q *Queue) armLocked(e *Entry) {
	delay := time.Until(e.NotBefore)
	if delay < 0 {
		delay = 0
	}
	id := e.ID
	q.timers[id] = time.AfterFunc(delay, func() {
		q.fire(id)
	})
}

// fire publishes one due entry.
func (q *Queue) fire(id string) {
	q.mu.Lock()
	entry, ok := q.entries[id]
	if !ok || entry.Status != StatusPending || q.stopped {
		q.mu.Unlock()
		return
	}
	delete(q.timers, id)
	text, mediaPath := entry.Text, entry.MediaPath
	q.mu.Unlock()

	var err error
	if mediaPath != "" {
		err = q.poster.PostWithMedia(q.ctx, text, mediaPath)
	} else {
		err = q.poster.Post(q.ctx, text)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	if err != nil {
		entry.Status = StatusFailed
		entry.Error = err.Error()
		q.logger.Error().Err(err).Str("id", id).Msg("Deferred post failed")
	} else {
		entry.Status = StatusPosted
		entry.PostedAt = &now
		q.logger.Info().Str("id", id).Msg("Deferred post published")
	}

	if perr := q.persistLocked(); perr != nil {
		q.logger.Error().Err(perr).Str("id", id).Msg("Failed to persist queue after firing")
	}
}

// load reads queue state, treating a missing file as an empty queue.
func (q *Queue) load() error {
	data, err := os.ReadFile(q.cfg.File)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read queue file: %w", err)
	}

	var file queueFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse queue file: %w", err)
	}

	for _, e := range file.Entries {
		if e.ID != "" {
			q.entries[e.ID] = e
		}
	}

	q.logger.Info().Int("entries", len(q.entries)).Msg("Loaded queue state")
	return nil
}

// persistLocked writes the queue atomically. Callers hold q.mu.
func (q *Queue) persistLocked() error {
	entries := make([]*Entry, 0, len(q.entries))
	for _, e := range q.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })

	data, err := json.MarshalIndent(queueFile{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(q.cfg.File), 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tempFile := q.cfg.File + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, q.cfg.File); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
