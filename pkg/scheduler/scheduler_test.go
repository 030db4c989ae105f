package scheduler

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/magpie/internal/config"
	"github.com/harun/magpie/internal/metrics"
	"github.com/harun/magpie/pkg/ledger"
	"github.com/harun/magpie/pkg/llm"
	"github.com/harun/magpie/pkg/media"
	"github.com/harun/magpie/pkg/vector"
)

type fakeEngine struct {
	text        string
	caption     string
	textCalls   int
	imageCalls  []string
	lastPrompt  string
	lastCaption string
}

func (f *fakeEngine) GenerateText(ctx context.Context, req llm.TextRequest) llm.Result {
	f.textCalls++
	f.lastPrompt = req.Prompt
	return llm.Result{Text: f.text}
}

func (f *fakeEngine) AnalyzeImage(ctx context.Context, req llm.ImageRequest) llm.Result {
	f.imageCalls = append(f.imageCalls, req.Path)
	f.lastCaption = req.Prompt
	return llm.Result{Text: f.caption}
}

type fakeSearcher struct {
	matches []vector.Match
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, q vector.Query) []vector.Match {
	f.queries = append(f.queries, q.Text)
	return f.matches
}

func (f *fakeSearcher) Enabled() bool { return true }

type published struct {
	text      string
	mediaPath string
}

type fakePublisher struct {
	posts []published
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, text, mediaPath string) error {
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, published{text: text, mediaPath: mediaPath})
	return nil
}

type fixture struct {
	engine    *fakeEngine
	searcher  *fakeSearcher
	publisher *fakePublisher
	mediaLog  *ledger.MediaLog
	library   *media.Library
	mediaDir  string
}

func newFixture(t *testing.T, posting config.PostingConfig, mediaFiles ...string) (*Scheduler, *fixture) {
	t.Helper()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	dir := t.TempDir()
	for _, name := range mediaFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0644))
	}

	lib, err := media.NewLibrary(dir, false, logger)
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })

	mediaLog, err := ledger.NewMediaLog(filepath.Join(t.TempDir(), "used.log"), logger)
	require.NoError(t, err)

	fx := &fixture{
		engine:    &fakeEngine{text: "a post", caption: "a caption"},
		searcher:  &fakeSearcher{},
		publisher: &fakePublisher{},
		mediaLog:  mediaLog,
		library:   lib,
		mediaDir:  dir,
	}

	s, err := New(Config{
		Posting:   posting,
		LLM:       fx.engine,
		Vector:    fx.searcher,
		Media:     lib,
		MediaLog:  mediaLog,
		Publisher: fx.publisher,
		Logger:    logger,
		Metrics:   metrics.NewMetrics(),
		Rand:      rand.New(rand.NewSource(7)),
	})
	require.NoError(t, err)
	return s, fx
}

func TestRunCycle_MediaAlways(t *testing.T) {
	posting := config.PostingConfig{
		MaxPerCycle:      1,
		MaxMediaPerCycle: 1,
		MediaProbability: 1.0,
	}
	s, fx := newFixture(t, posting, "shot.jpg")

	total := s.RunCycle(context.Background())

	require.Equal(t, 1, total)
	require.Len(t, fx.publisher.posts, 1)
	assert.Equal(t, "a caption", fx.publisher.posts[0].text)
	assert.Equal(t, filepath.Join(fx.mediaDir, "shot.jpg"), fx.publisher.posts[0].mediaPath)
	assert.True(t, fx.mediaLog.Used("shot.jpg"), "posted media must be marked used")

	// A second cycle over the same used-media set must not reuse the file;
	// with nothing unused it falls back to text
	total = s.RunCycle(context.Background())
	require.Equal(t, 1, total)
	assert.Equal(t, "", fx.publisher.posts[1].mediaPath)
	assert.Equal(t, "a post", fx.publisher.posts[1].text)
}

func TestRunCycle_MediaNever(t *testing.T) {
	posting := config.PostingConfig{
		MaxPerCycle:      3,
		MaxMediaPerCycle: 3,
		MediaProbability: 0.0,
	}
	s, fx := newFixture(t, posting, "one.jpg", "two.png")

	total := s.RunCycle(context.Background())

	assert.Equal(t, 3, total)
	for _, p := range fx.publisher.posts {
		assert.Empty(t, p.mediaPath, "probability zero must never select media")
	}
	assert.Empty(t, fx.engine.imageCalls)
	assert.Equal(t, 0, fx.mediaLog.Len())
}

func TestRunCycle_MediaSubCap(t *testing.T) {
	posting := config.PostingConfig{
		MaxPerCycle:      3,
		MaxMediaPerCycle: 1,
		MediaProbability: 1.0,
	}
	s, fx := newFixture(t, posting, "a.jpg", "b.jpg", "c.jpg")

	total := s.RunCycle(context.Background())

	require.Equal(t, 3, total)
	var mediaPosts int
	for _, p := range fx.publisher.posts {
		if p.mediaPath != "" {
			mediaPosts++
		}
	}
	assert.Equal(t, 1, mediaPosts, "media sub-cap bounds media posts within the cycle")
	assert.Equal(t, 1, fx.mediaLog.Len())
}

func TestRunCycle_EmptyTextSkipsSlot(t *testing.T) {
	posting := config.PostingConfig{
		MaxPerCycle:      2,
		MediaProbability: 0.0,
	}
	s, fx := newFixture(t, posting)
	fx.engine.text = ""

	total := s.RunCycle(context.Background())

	assert.Equal(t, 0, total, "empty generations consume no budget")
	assert.Empty(t, fx.publisher.posts)
	assert.Equal(t, 2, fx.engine.textCalls, "every slot is still attempted")
}

func TestRunCycle_FailedCaptionLeavesMediaUnused(t *testing.T) {
	posting := config.PostingConfig{
		MaxPerCycle:      1,
		MaxMediaPerCycle: 1,
		MediaProbability: 1.0,
	}
	s, fx := newFixture(t, posting, "shot.png")
	fx.engine.caption = ""

	total := s.RunCycle(context.Background())

	assert.Equal(t, 0, total)
	assert.False(t, fx.mediaLog.Used("shot.png"),
		"a slot that produced no caption must not consume the media file")
}

func TestRunCycle_ContextFlowsIntoPrompts(t *testing.T) {
	posting := config.PostingConfig{MaxPerCycle: 1}
	s, fx := newFixture(t, posting)
	fx.searcher.matches = []vector.Match{
		{Document: vector.Document{ID: "d1", Text: "snippet one"}},
		{Document: vector.Document{ID: "d2", Text: "snippet two"}},
	}

	s.RunCycle(context.Background())

	require.Len(t, fx.searcher.queries, 1)
	assert.Contains(t, fx.engine.lastPrompt, "snippet one")
	assert.Contains(t, fx.engine.lastPrompt, "snippet two")
}

func TestRunCycle_PublishErrorConsumesNoBudget(t *testing.T) {
	posting := config.PostingConfig{MaxPerCycle: 2}
	s, fx := newFixture(t, posting)
	fx.publisher.err = assert.AnError

	total := s.RunCycle(context.Background())

	assert.Equal(t, 0, total)
}
