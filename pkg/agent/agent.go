// Package agent runs the control loop: a single cooperative flow that
// interleaves timeline interaction passes and content scheduling cycles.
// Each pass owns the process until it returns; there is no concurrent
// agent work, only timers deciding what the next tick picks up.
package agent

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/config"
	"github.com/harun/magpie/internal/metrics"
	"github.com/harun/magpie/pkg/dispatch"
	"github.com/harun/magpie/pkg/llm"
	"github.com/harun/magpie/pkg/persona"
	"github.com/harun/magpie/pkg/social"
	"github.com/harun/magpie/pkg/vector"
)

// Poller reads the timeline.
type Poller interface {
	Poll(ctx context.Context, timeline string, count int) ([]social.Item, error)
}

// Authenticator establishes the platform session before a pass runs.
type Authenticator interface {
	Login(ctx context.Context) error
}

// TextEngine generates text through the language fallback manager.
type TextEngine interface {
	GenerateText(ctx context.Context, req llm.TextRequest) llm.Result
	Enabled() bool
}

// ContextSearcher retrieves similar documents for reply refinement.
type ContextSearcher interface {
	Search(ctx context.Context, q vector.Query) []vector.Match
	Enabled() bool
}

// ActionSink routes decided actions, enforcing duplicate suppression.
type ActionSink interface {
	ShouldAct(id string, allowRepeat bool) bool
	Dispatch(ctx context.Context, req dispatch.Request) (bool, error)
}

// Cycler runs one content scheduling cycle and reports posts scheduled.
type Cycler interface {
	RunCycle(ctx context.Context) int
}

// EventSink receives agent events for the ops console.
type EventSink interface {
	Emit(event string, fields map[string]any)
}

// Clock abstracts time for the loop so tests can drive it synthetically.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Config wires an Agent.
type Config struct {
	Actions config.ActionsConfig
	Posting config.PostingConfig
	Loop    config.LoopConfig

	Social     Poller
	Auth       Authenticator
	LLM        TextEngine
	Vector     ContextSearcher
	Dispatcher ActionSink
	Scheduler  Cycler
	Persona    *persona.Persona

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Events  EventSink

	Rand  *rand.Rand
	Clock Clock
}

// task is one recurring pass the loop evaluates each tick.
type task struct {
	name    string
	due     time.Time
	enabled func() bool
	run     func(ctx context.Context)
	next    func(now time.Time) time.Time
}

// Agent owns the control loop and all its collaborators.
type Agent struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	events  EventSink
	rng     *rand.Rand
	clock   Clock

	// Evaluation order is fixed: actions run before posts when both due
	tasks []*task

	iterations     atomic.Uint64
	actionPasses   atomic.Uint64
	postCycles     atomic.Uint64
	postsScheduled atomic.Uint64
}

// New builds an Agent. The action task comes due immediately; the post
// task honours PostImmediately, otherwise it waits a full random interval.
func New(cfg Config) (*Agent, error) {
	if cfg.Social == nil {
		return nil, errors.New("social poller is required")
	}
	if cfg.LLM == nil {
		return nil, errors.New("language manager is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}

	a := &Agent{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("component", "agent").Logger(),
		metrics: cfg.Metrics,
		events:  cfg.Events,
		rng:     cfg.Rand,
		clock:   cfg.Clock,
	}

	now := a.clock.Now()

	postDue := now
	if !cfg.Posting.PostImmediately {
		postDue = now.Add(a.postInterval())
	}

	a.tasks = []*task{
		{
			name:    "actions",
			due:     now,
			enabled: func() bool { return a.cfg.Actions.Enabled },
			run:     a.runActionsPass,
			next: func(now time.Time) time.Time {
				return now.Add(time.Duration(a.cfg.Actions.IntervalSecs) * time.Second)
			},
		},
		{
			name:    "posts",
			due:     postDue,
			enabled: func() bool { return a.cfg.Posting.Enabled && a.cfg.LLM.Enabled() },
			run:     a.runPostCycle,
			next: func(now time.Time) time.Time {
				return now.Add(a.postInterval())
			},
		},
	}

	return a, nil
}

// Run executes the loop until the context is cancelled or, when
// Loop.MaxCycles is positive, the iteration cap is reached. The cap is
// checked before the tick's work, so a cap of N yields N-1 full passes.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info().
		Bool("actions", a.cfg.Actions.Enabled).
		Bool("posting", a.cfg.Posting.Enabled).
		Int("max_cycles", a.cfg.Loop.MaxCycles).
		Msg("Control loop starting")

	iter := 0
	for {
		iter++
		if a.cfg.Loop.MaxCycles > 0 && iter >= a.cfg.Loop.MaxCycles {
			a.logger.Info().Int("iterations", iter-1).Msg("Cycle cap reached, stopping")
			return nil
		}
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Control loop stopped")
			return ctx.Err()
		default:
		}

		a.tick(ctx)
		a.iterations.Add(1)
		if a.metrics != nil {
			a.metrics.LoopIterationsTotal.Inc()
		}

		a.clock.Sleep(ctx, a.sleepInterval())
	}
}

// tick runs every due task, in order, behind a single login attempt.
// A failed login leaves due times untouched so the next tick retries.
func (a *Agent) tick(ctx context.Context) {
	now := a.clock.Now()

	var due []*task
	for _, t := range a.tasks {
		if t.enabled() && !now.Before(t.due) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return
	}

	if a.cfg.Auth != nil {
		if err := a.cfg.Auth.Login(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Login failed, deferring due tasks")
			return
		}
	}

	for _, t := range due {
		a.logger.Debug().Str("task", t.name).Msg("Running task")
		t.run(ctx)
		t.due = t.next(a.clock.Now())
	}
}

func (a *Agent) runPostCycle(ctx context.Context) {
	n := a.cfg.Scheduler.RunCycle(ctx)
	a.postCycles.Add(1)
	a.postsScheduled.Add(uint64(n))
}

func (a *Agent) postInterval() time.Duration {
	return randDuration(a.rng,
		time.Duration(a.cfg.Posting.IntervalMinSecs)*time.Second,
		time.Duration(a.cfg.Posting.IntervalMaxSecs)*time.Second)
}

func (a *Agent) sleepInterval() time.Duration {
	return randDuration(a.rng,
		time.Duration(a.cfg.Loop.SleepMinSecs*float64(time.Second)),
		time.Duration(a.cfg.Loop.SleepMaxSecs*float64(time.Second)))
}

// randDuration draws uniformly from [min, max]; a degenerate range
// collapses to min.
func randDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}

// Snapshot reports loop counters for the ops console.
type Snapshot struct {
	Iterations     uint64
	ActionPasses   uint64
	PostCycles     uint64
	PostsScheduled uint64
}

// Stats returns the current loop counters.
func (a *Agent) Stats() Snapshot {
	return Snapshot{
		Iterations:     a.iterations.Load(),
		ActionPasses:   a.actionPasses.Load(),
		PostCycles:     a.postCycles.Load(),
		PostsScheduled: a.postsScheduled.Load(),
	}
}

func (a *Agent) emit(event string, fields map[string]any) {
	if a.events != nil {
		a.events.Emit(event, fields)
	}
}
