package postqueue

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/magpie/internal/config"
)

type recordingPoster struct {
	mu    sync.Mutex
	posts []string
	media []string
	err   error
}

func (p *recordingPoster) Post(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.posts = append(p.posts, text)
	return nil
}

func (p *recordingPoster) PostWithMedia(ctx context.Context, text, mediaPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.media = append(p.media, mediaPath)
	return nil
}

func (p *recordingPoster) postCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts) + len(p.media)
}

func newTestQueue(t *testing.T, qc config.QueueConfig, poster Poster) *Queue {
	t.Helper()
	if qc.File == "" {
		qc.File = filepath.Join(t.TempDir(), "queue.json")
	}
	q, err := New(Config{
		Queue:  qc,
		Poster: poster,
		Logger: zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
	require.NoError(t, err)
	t.Cleanup(q.Stop)
	return q
}

func TestQueue_FiresDueEntry(t *testing.T) {
	poster := &recordingPoster{}
	q := newTestQueue(t, config.QueueConfig{}, poster)
	q.Start()

	entry, err := q.Enqueue("hello world", "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, entry.Status)

	require.Eventually(t, func() bool {
		return poster.postCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return q.Pending() == 0
	}, 5*time.Second, 10*time.Millisecond)

	entries := q.List()
	require.Len(t, entries, 1)
	assert.Equal(t, StatusPosted, entries[0].Status)
	assert.NotNil(t, entries[0].PostedAt)
}

func TestQueue_MediaEntriesUseMediaCall(t *testing.T) {
	poster := &recordingPoster{}
	q := newTestQueue(t, config.QueueConfig{}, poster)
	q.Start()

	_, err := q.Enqueue("caption", "/media/shot.jpg")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return poster.postCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"/media/shot.jpg"}, poster.media)
	assert.Empty(t, poster.posts)
}

func TestQueue_FailedPostIsMarked(t *testing.T) {
	poster := &recordingPoster{err: assert.AnError}
	q := newTestQueue(t, config.QueueConfig{}, poster)
	q.Start()

	_, err := q.Enqueue("doomed", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		entries := q.List()
		return len(entries) == 1 && entries[0].Status == StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	assert.NotEmpty(t, q.List()[0].Error)
}

func TestQueue_StateSurvivesReload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "queue.json")
	poster := &recordingPoster{}

	q := newTestQueue(t, config.QueueConfig{File: file, DelayMinSecs: 3600, DelayMaxSecs: 3600}, poster)
	entry, err := q.Enqueue("later", "")
	require.NoError(t, err)
	q.Stop()

	// A fresh queue over the same file sees the pending entry
	q2 := newTestQueue(t, config.QueueConfig{File: file}, poster)
	entries := q2.List()
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, StatusPending, entries[0].Status)
	assert.Equal(t, 1, q2.Pending())
}

func TestQueue_Cancel(t *testing.T) {
	poster := &recordingPoster{}
	q := newTestQueue(t, config.QueueConfig{DelayMinSecs: 3600, DelayMaxSecs: 3600}, poster)
	q.Start()

	entry, err := q.Enqueue("never", "")
	require.NoError(t, err)

	require.NoError(t, q.Cancel(entry.ID))
	assert.Empty(t, q.List())
	assert.Error(t, q.Cancel(entry.ID), "cancelling twice reports the missing entry")
}

func TestQueue_DelayBoundsRespected(t *testing.T) {
	poster := &recordingPoster{}
	q := newTestQueue(t, config.QueueConfig{DelayMinSecs: 600, DelayMaxSecs: 1200}, poster)

	before := time.Now()
	entry, err := q.Enqueue("delayed", "")
	require.NoError(t, err)

	lower := before.Add(600 * time.Second)
	upper := time.Now().Add(1200 * time.Second)
	assert.False(t, entry.NotBefore.Before(lower), "delay must honor the minimum")
	assert.False(t, entry.NotBefore.After(upper), "delay must honor the maximum")
}

func TestQueue_PostingWindowDefersToWindow(t *testing.T) {
	poster := &recordingPoster{}
	// Only minute zero of each hour is an allowed posting time
	q := newTestQueue(t, config.QueueConfig{PostingWindow: "0 * * * *"}, poster)

	entry, err := q.Enqueue("windowed", "")
	require.NoError(t, err)

	assert.Equal(t, 0, entry.NotBefore.Minute())
	assert.True(t, entry.NotBefore.After(time.Now()))
}

func TestNew_RejectsBadWindow(t *testing.T) {
	_, err := New(Config{
		Queue:  config.QueueConfig{File: filepath.Join(t.TempDir(), "q.json"), PostingWindow: "not a cron"},
		Poster: &recordingPoster{},
		Logger: zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
	assert.Error(t, err)
}

func TestQueue_EnqueueAfterStop(t *testing.T) {
	q := newTestQueue(t, config.QueueConfig{}, &recordingPoster{})
	q.Stop()

	_, err := q.Enqueue("too late", "")
	assert.Error(t, err)
}
