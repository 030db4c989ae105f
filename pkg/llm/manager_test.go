package llm

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/magpie/internal/config"
	"github.com/harun/magpie/internal/metrics"
)

type fakeProvider struct {
	name   string
	result Result
	err    error
	calls  *[]string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) record() (Result, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
	if f.err != nil {
		return Result{}, f.err
	}
	res := f.result
	res.Provider = f.name
	return res, nil
}

func (f *fakeProvider) GenerateText(ctx context.Context, req TextRequest) (Result, error) {
	return f.record()
}

func (f *fakeProvider) AnalyzeImage(ctx context.Context, req ImageRequest) (Result, error) {
	return f.record()
}

func (f *fakeProvider) AnalyzeVideo(ctx context.Context, req VideoRequest) (Result, error) {
	return f.record()
}

type fakeSink struct {
	events []string
}

func (f *fakeSink) Emit(event string, fields map[string]any) {
	f.events = append(f.events, event)
}

func testManager(providers ...Provider) *Manager {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	return &Manager{
		providers: providers,
		logger:    logger,
		metrics:   metrics.NewMetrics(),
	}
}

func TestManager_Fallback(t *testing.T) {
	ctx := context.Background()

	t.Run("first usable result wins", func(t *testing.T) {
		var calls []string
		m := testManager(
			&fakeProvider{name: "a", err: errors.New("boom"), calls: &calls},
			&fakeProvider{name: "b", calls: &calls},
			&fakeProvider{name: "c", result: Result{Text: "hello"}, calls: &calls},
		)

		res := m.GenerateText(ctx, TextRequest{Prompt: "hi"})

		assert.Equal(t, "hello", res.Text)
		assert.Equal(t, "c", res.Provider)
		assert.Equal(t, []string{"a", "b", "c"}, calls, "every earlier provider must be attempted")
	})

	t.Run("first provider success short-circuits", func(t *testing.T) {
		var calls []string
		m := testManager(
			&fakeProvider{name: "a", result: Result{Text: "fast"}, calls: &calls},
			&fakeProvider{name: "b", result: Result{Text: "never"}, calls: &calls},
		)

		res := m.GenerateText(ctx, TextRequest{Prompt: "hi"})

		assert.Equal(t, "fast", res.Text)
		assert.Equal(t, []string{"a"}, calls)
	})

	t.Run("all failures yield empty result, no panic", func(t *testing.T) {
		m := testManager(
			&fakeProvider{name: "a", err: errors.New("down")},
			&fakeProvider{name: "b", err: errors.New("also down")},
		)

		res := m.GenerateText(ctx, TextRequest{Prompt: "hi"})
		assert.True(t, res.Empty())
	})

	t.Run("all sentinels yield empty result", func(t *testing.T) {
		m := testManager(
			&fakeProvider{name: "a"},
			&fakeProvider{name: "b"},
		)

		res := m.AnalyzeImage(ctx, ImageRequest{Path: "x.jpg"})
		assert.True(t, res.Empty())
	})

	t.Run("no providers yields empty result", func(t *testing.T) {
		m := testManager()
		res := m.GenerateText(ctx, TextRequest{Prompt: "hi"})
		assert.True(t, res.Empty())
		assert.False(t, m.Enabled())
	})

	t.Run("order is preserved across repeated calls", func(t *testing.T) {
		var calls []string
		m := testManager(
			&fakeProvider{name: "a", err: errors.New("down"), calls: &calls},
			&fakeProvider{name: "b", result: Result{Text: "ok"}, calls: &calls},
		)

		m.GenerateText(ctx, TextRequest{})
		m.GenerateText(ctx, TextRequest{})

		assert.Equal(t, []string{"a", "b", "a", "b"}, calls, "failing provider must not be demoted")
	})

	t.Run("fallback emits console events", func(t *testing.T) {
		sink := &fakeSink{}
		m := testManager(
			&fakeProvider{name: "a", err: errors.New("down")},
			&fakeProvider{name: "b", result: Result{Text: "ok"}},
		)
		m.events = sink

		m.GenerateText(ctx, TextRequest{})
		assert.Equal(t, []string{"provider_fallback"}, sink.events)
	})
}

func TestManager_VideoFallthrough(t *testing.T) {
	// Backends without video support return a sentinel, so a video-capable
	// backend later in the chain still gets its turn.
	var calls []string
	m := testManager(
		&fakeProvider{name: "text-only", calls: &calls},
		&fakeProvider{name: "video-capable", result: Result{Text: "a cat jumps"}, calls: &calls},
	)

	res := m.AnalyzeVideo(context.Background(), VideoRequest{Path: "clip.mp4"})

	assert.Equal(t, "a cat jumps", res.Text)
	assert.Equal(t, []string{"text-only", "video-capable"}, calls)
}

func TestNewManager_Construction(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	t.Run("skips disabled, unknown, and broken entries", func(t *testing.T) {
		m := NewManager(ManagerConfig{
			Providers: []config.LLMProviderConfig{
				{Name: "off", Type: "anthropic", Enabled: false, APIKey: "sk-ant-x"},
				{Name: "mystery", Type: "quantum", Enabled: true},
				{Name: "keyless", Type: "anthropic", Enabled: true},
				{Name: "live", Type: "anthropic", Enabled: true, APIKey: "sk-ant-x"},
			},
			Logger:  logger,
			Metrics: metrics.NewMetrics(),
		})

		require.True(t, m.Enabled())
		assert.Equal(t, []string{"live"}, m.Providers())
	})

	t.Run("empty config builds a disabled manager", func(t *testing.T) {
		m := NewManager(ManagerConfig{Logger: logger})
		assert.False(t, m.Enabled())
		assert.True(t, m.GenerateText(context.Background(), TextRequest{}).Empty())
	})

	t.Run("name defaults to type", func(t *testing.T) {
		m := NewManager(ManagerConfig{
			Providers: []config.LLMProviderConfig{
				{Type: "openai", Enabled: true, APIKey: "sk-x"},
			},
			Logger: logger,
		})
		assert.Equal(t, []string{"openai"}, m.Providers())
	})
}

func TestImageMediaType(t *testing.T) {
	assert.Equal(t, "image/jpeg", imageMediaType("a/b/photo.JPG"))
	assert.Equal(t, "image/jpeg", imageMediaType("photo.jpeg"))
	assert.Equal(t, "image/png", imageMediaType("shot.png"))
	assert.Equal(t, "image/gif", imageMediaType("loop.gif"))
	assert.Equal(t, "", imageMediaType("doc.pdf"))

	assert.Equal(t, "video/mp4", videoMediaType("clip.mp4"))
	assert.Equal(t, "", videoMediaType("clip.txt"))
}
