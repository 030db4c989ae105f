package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/config"
	"github.com/harun/magpie/internal/logger"
	"github.com/harun/magpie/internal/metrics"
	"github.com/harun/magpie/pkg/agent"
	"github.com/harun/magpie/pkg/console"
	"github.com/harun/magpie/pkg/dispatch"
	"github.com/harun/magpie/pkg/ledger"
	"github.com/harun/magpie/pkg/llm"
	"github.com/harun/magpie/pkg/media"
	"github.com/harun/magpie/pkg/persona"
	"github.com/harun/magpie/pkg/postqueue"
	"github.com/harun/magpie/pkg/scheduler"
	"github.com/harun/magpie/pkg/social"
	"github.com/harun/magpie/pkg/vector"
)

// runtime holds every wired collaborator for the run and once commands.
type runtime struct {
	cfg *config.Config
	log *logger.Logger
	zl  zerolog.Logger

	metrics      *metrics.Metrics
	events       *console.Broadcaster
	consoleSrv   *console.Server
	social       *social.Client
	llm          *llm.Manager
	vector       *vector.Manager
	library      *media.Library
	mediaLog     *ledger.MediaLog
	interactions *ledger.InteractionStore
	dispatcher   *dispatch.Dispatcher
	queue        *postqueue.Queue
	scheduler    *scheduler.Scheduler
	agent        *agent.Agent
	persona      *persona.Persona
}

// loadConfig reads and validates the configuration behind the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildRuntime wires the whole agent from config, bottom up. Collaborators
// that the config disables stay nil; everything downstream treats them as
// optional.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    cfg.Logging.Console,
		Pretty:     cfg.Logging.Pretty,
		Redaction:  cfg.Logging.Redaction,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	rt.log = log
	rt.zl = log.GetZerolog()

	rt.metrics = metrics.NewMetrics()

	if cfg.Console.Enabled {
		rt.events = console.NewBroadcaster(rt.zl)
	}

	if cfg.Persona.Path != "" {
		p, err := persona.NewLoader(rt.zl).Load(cfg.Persona.Path)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to load persona: %w", err)
		}
		rt.persona = p
	} else {
		rt.zl.Warn().Msg("No persona configured, running with a blank character")
	}

	rt.social, err = social.NewClient(&cfg.Social, rt.zl, rt.metrics)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize social client: %w", err)
	}

	rt.interactions, err = ledger.NewInteractionStore(cfg.Ledger.InteractionsFile, rt.zl)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open interaction ledger: %w", err)
	}
	rt.mediaLog, err = ledger.NewMediaLog(cfg.Ledger.MediaLogFile, rt.zl)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open media log: %w", err)
	}

	rt.llm = llm.NewManager(llm.ManagerConfig{
		Providers: cfg.LLM.Providers,
		Logger:    rt.zl,
		Metrics:   rt.metrics,
		Events:    rt.events,
	})
	rt.vector = vector.NewManager(vector.ManagerConfig{
		Providers: cfg.Vector.Providers,
		Embedding: cfg.Vector.Embedding,
		Logger:    rt.zl,
		Metrics:   rt.metrics,
		Events:    rt.events,
	})

	rt.library, err = media.NewLibrary(cfg.Posting.MediaDir, cfg.Posting.WatchMediaDir, rt.zl)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open media library: %w", err)
	}

	rt.dispatcher, err = dispatch.New(dispatch.Config{
		Social:  rt.social,
		Store:   rt.interactions,
		Logger:  rt.zl,
		Metrics: rt.metrics,
		Events:  rt.events,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build dispatcher: %w", err)
	}

	// Posts go out immediately unless the deferred queue is enabled
	var publisher scheduler.Publisher = rt.social
	if cfg.Queue.Enabled {
		rt.queue, err = postqueue.New(postqueue.Config{
			Queue:  cfg.Queue,
			Poster: rt.social,
			Logger: rt.zl,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to build post queue: %w", err)
		}
		publisher = rt.queue
	}

	rt.scheduler, err = scheduler.New(scheduler.Config{
		Posting:   cfg.Posting,
		LLM:       rt.llm,
		Vector:    rt.vector,
		Media:     rt.library,
		MediaLog:  rt.mediaLog,
		Persona:   rt.persona,
		Publisher: publisher,
		Logger:    rt.zl,
		Metrics:   rt.metrics,
		Events:    rt.events,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build scheduler: %w", err)
	}

	rt.agent, err = agent.New(agent.Config{
		Actions:    cfg.Actions,
		Posting:    cfg.Posting,
		Loop:       cfg.Loop,
		Social:     rt.social,
		Auth:       rt.social,
		LLM:        rt.llm,
		Vector:     rt.vector,
		Dispatcher: rt.dispatcher,
		Scheduler:  rt.scheduler,
		Persona:    rt.persona,
		Logger:     rt.zl,
		Metrics:    rt.metrics,
		Events:     rt.events,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build agent: %w", err)
	}

	if cfg.Console.Enabled {
		rt.consoleSrv = console.NewServer(cfg.Console, rt.events, rt.status, rt.metrics, rt.zl)
	}

	return rt, nil
}

// status assembles the /status snapshot from the live collaborators.
func (rt *runtime) status() console.Status {
	st := console.Status{
		LLMProviders:    rt.llm.Providers(),
		VectorProviders: rt.vector.Stores(),
	}
	if rt.agent != nil {
		s := rt.agent.Stats()
		st.Iterations = s.Iterations
		st.ActionPasses = s.ActionPasses
		st.PostCycles = s.PostCycles
		st.PostsScheduled = s.PostsScheduled
	}
	if rt.queue != nil {
		st.QueuePending = rt.queue.Pending()
	}
	return st
}

// start brings up the background pieces before the loop runs.
func (rt *runtime) start() error {
	if rt.queue != nil {
		rt.queue.Start()
	}
	if rt.consoleSrv != nil {
		if err := rt.consoleSrv.Start(); err != nil {
			return fmt.Errorf("failed to start console: %w", err)
		}
	}
	return nil
}

// Close tears down in reverse dependency order. Safe on a half-built
// runtime.
func (rt *runtime) Close() {
	if rt.consoleSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.consoleSrv.Stop(ctx); err != nil {
			rt.zl.Warn().Err(err).Msg("Console shutdown failed")
		}
		cancel()
	}
	if rt.queue != nil {
		rt.queue.Stop()
	}
	if rt.vector != nil {
		if err := rt.vector.Close(); err != nil {
			rt.zl.Warn().Err(err).Msg("Vector store shutdown failed")
		}
	}
	if rt.library != nil {
		if err := rt.library.Close(); err != nil {
			rt.zl.Warn().Err(err).Msg("Media watcher shutdown failed")
		}
	}
	if rt.log != nil {
		rt.log.Close()
	}
}
