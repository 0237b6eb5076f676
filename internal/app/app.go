// Package app assembles the engine from configuration and runs it: channel
// pollers feeding the queue, the serial pipeline worker draining it, and the
// observability endpoints around them.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"hermes/internal/agent"
	"hermes/internal/channels"
	"hermes/internal/channels/chat"
	"hermes/internal/channels/mail"
	"hermes/internal/config"
	"hermes/internal/executor"
	"hermes/internal/hooks"
	"hermes/internal/llm"
	"hermes/internal/logging"
	"hermes/internal/memory"
	"hermes/internal/observability"
	"hermes/internal/pipeline"
	"hermes/internal/report"
	"hermes/internal/router"
	"hermes/internal/session"
	"hermes/internal/skills"
	"hermes/internal/state"
	"hermes/internal/supervisor"
)

const (
	// receiveBatch caps how many messages one poll cycle ingests per channel.
	receiveBatch = 10
	// maxMailBackoff bounds the growth of the mail poll delay after
	// consecutive transport failures.
	maxMailBackoff = 5 * time.Minute
	// sessionMaxAge is how long archived sessions are kept on disk.
	sessionMaxAge = 30 * 24 * time.Hour
)

// App owns the assembled engine and the lifecycles of its parts.
type App struct {
	cfg config.Config
	log logging.Logger

	store    *state.Store
	sessions *session.Manager
	memory   *memory.Store
	exec     *executor.Executor
	pipeline *pipeline.Pipeline
	router   *router.Router
	adapters map[string]channels.Adapter
	mailAd   *mail.Adapter
	metrics  *observability.Metrics
	tracer   *observability.TracerProvider
}

// New wires every component from cfg. Channel adapters are built only for
// the configured transports; the LLM client is optional and its absence
// degrades the agents to their keyword heuristics.
func New(cfg config.Config, logger logging.Logger) (*App, error) {
	log := logging.OrNop(logger)

	store := state.NewStore(cfg.Storage.StateFile, log)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	sessions, err := session.NewManager(cfg.Storage.SessionDir, log)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	mem, err := memory.NewStore(cfg.Storage.MemoryDir, log)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	var llmClient llm.Client
	var embedder llm.Embedder
	if cfg.LLM.APIKey != "" {
		base := llm.NewOpenAIClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
			MaxRetries:     cfg.LLM.MaxRetries,
		}, log)
		llmClient = llm.NewRetryClient(base, cfg.LLM.MaxRetries, log)
		embedder, _ = base.(llm.Embedder)
	} else {
		log.Warn("app: no LLM api key configured, agents run on keyword heuristics")
	}

	retriever, err := memory.NewRetriever(mem, embedder, log)
	if err != nil {
		return nil, fmt.Errorf("build memory retriever: %w", err)
	}

	metrics, err := observability.NewMetrics(observability.MetricsConfig{
		Enabled:        cfg.Metrics.Enabled,
		PrometheusPort: cfg.Metrics.PrometheusPort,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("start metrics: %w", err)
	}
	tracer, err := observability.NewTracerProvider(observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		ZipkinEndpoint: cfg.Tracing.ZipkinEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("start tracer: %w", err)
	}

	exec := executor.New(executor.Config{
		CLIPath:      cfg.Executor.CLIPath,
		ShellPath:    cfg.Executor.ShellPath,
		SessionReuse: cfg.Executor.SessionReuse,
	}, log)

	thresholds := make(map[supervisor.TaskType]time.Duration, len(cfg.Supervisor.ThresholdSeconds))
	for taskType, seconds := range cfg.Supervisor.ThresholdSeconds {
		thresholds[supervisor.TaskType(taskType)] = time.Duration(seconds) * time.Second
	}
	monitor := supervisor.NewMonitor(supervisor.Config{
		HeartbeatInterval:  time.Duration(cfg.Supervisor.HeartbeatSeconds) * time.Second,
		MaxInactivePeriods: cfg.Supervisor.MaxInactivePeriods,
		Thresholds:         thresholds,
	}, log)

	registry := skills.NewRegistry(log)
	if err := skills.RegisterBuiltins(registry, cfg.WorkDir); err != nil {
		return nil, fmt.Errorf("register skills: %w", err)
	}

	adapters := make(map[string]channels.Adapter)
	var mailAd *mail.Adapter
	if cfg.ChatEnabled() {
		adapters[channels.TypeChat] = chat.New(chat.Config{
			Token:        cfg.Chat.Token,
			BaseURL:      cfg.Chat.BaseURL,
			PollTimeout:  cfg.Chat.PollTimeout,
			AllowedUsers: cfg.Chat.AllowedUsers,
		}, log)
	}
	if cfg.MailEnabled() {
		mailAd = mail.New(mail.Config{
			IMAPHost:   cfg.Mail.IMAPHost,
			IMAPPort:   cfg.Mail.IMAPPort,
			SMTPHost:   cfg.Mail.SMTPHost,
			SMTPPort:   cfg.Mail.SMTPPort,
			Username:   cfg.Mail.Username,
			Password:   cfg.Mail.Password,
			SubjectTag: cfg.Mail.SubjectTag,
		}, log)
		adapters[channels.TypeMail] = mailAd
	}

	pipe := pipeline.New(pipeline.Deps{
		Store:        store,
		Understander: agent.NewUnderstander(llmClient, log),
		Refiner:      agent.NewRefiner(llmClient, log),
		Executor:     exec,
		Monitor:      monitor,
		Skills:       registry,
		Sessions:     sessions,
		Memory:       mem,
		Retriever:    retriever,
		Artifacts:    report.NewArtifactWriter(cfg.Storage.ReportDir, log),
		Adapters:     adapters,
		Metrics:      metrics,
		Tracer:       tracer,
		Logger:       log,
	}, pipeline.Config{
		WorkDir:      cfg.WorkDir,
		PreviewPause: cfg.PreviewPause,
		SessionReuse: cfg.Executor.SessionReuse,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		sessions: sessions,
		memory:   mem,
		exec:     exec,
		pipeline: pipe,
		router:   router.New(store, log),
		adapters: adapters,
		mailAd:   mailAd,
		metrics:  metrics,
		tracer:   tracer,
	}, nil
}

// Store exposes the state store for the CLI surface.
func (a *App) Store() *state.Store { return a.store }

// Executor exposes the executor for the CLI self-test probe.
func (a *App) Executor() *executor.Executor { return a.exec }

// Run connects the channels and blocks until ctx is cancelled. Pollers only
// enqueue; the single worker drains the queue serially.
func (a *App) Run(ctx context.Context) error {
	a.housekeeping()

	for name, adapter := range a.adapters {
		if err := adapter.Connect(ctx); err != nil {
			// Transports reconnect lazily on the next poll cycle.
			a.log.Warn("app: initial %s connect failed: %v", name, err)
		}
	}
	a.store.UpdateStatus(state.StatusIdle)
	a.log.Info("app: engine started, channels=%d poll=%s", len(a.adapters), a.cfg.PollInterval)

	group, ctx := errgroup.WithContext(ctx)
	for name, adapter := range a.adapters {
		group.Go(func() error { return a.pollLoop(ctx, name, adapter) })
	}
	group.Go(func() error { return a.workLoop(ctx) })

	err := group.Wait()
	a.shutdown()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// housekeeping runs the startup chores: hook scripts, expired memories,
// stale sessions.
func (a *App) housekeeping() {
	hookDir := filepath.Join(filepath.Dir(a.cfg.Storage.StateFile), "hooks")
	gen := hooks.NewGenerator(filepath.Join(hookDir, "events.log"), a.log)
	if err := gen.Generate(hookDir); err != nil {
		a.log.Warn("app: hook generation: %v", err)
	}
	if purged := a.memory.PurgeExpired(); purged > 0 {
		a.log.Info("app: purged %d expired memory entries", purged)
	}
	if removed := a.sessions.Cleanup(sessionMaxAge); removed > 0 {
		a.log.Info("app: removed %d stale sessions", removed)
	}
}

// pollLoop ingests new messages from one channel. Receive failures are never
// fatal; the mail transport additionally backs off while its consecutive
// failure counter grows.
func (a *App) pollLoop(ctx context.Context, name string, adapter channels.Adapter) error {
	for {
		messages, err := adapter.Receive(ctx, receiveBatch)
		if err != nil {
			a.log.Warn("app: %s receive: %v", name, err)
			a.metrics.RecordChannelError(ctx, name)
		}
		for _, msg := range messages {
			if _, err := a.router.Route(msg); err != nil {
				a.log.Warn("app: drop %s message %s: %v", name, msg.ID, err)
				continue
			}
			a.metrics.RecordTaskReceived(ctx, name)
			if err := adapter.MarkProcessed(ctx, msg.ID); err != nil {
				a.log.Warn("app: ack %s message %s: %v", name, msg.ID, err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.pollDelay(name)):
		}
	}
}

// pollDelay stretches the poll interval while the mail transport is failing.
func (a *App) pollDelay(name string) time.Duration {
	delay := a.cfg.PollInterval
	if name == channels.TypeMail && a.mailAd != nil {
		if failures := a.mailAd.FailureCount(); failures > 0 {
			if failures > 6 {
				failures = 6
			}
			delay = a.cfg.PollInterval * time.Duration(1<<uint(failures))
			if delay > maxMailBackoff {
				delay = maxMailBackoff
			}
		}
	}
	return delay
}

// workLoop drains the queue one task at a time. A task failure, even a panic,
// only costs that task: the loop pauses briefly and keeps serving.
func (a *App) workLoop(ctx context.Context) error {
	for {
		processed, err := a.pipeline.ProcessNext(ctx)
		if err != nil {
			a.log.Error("app: task failed: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.PollInterval):
		}
	}
}

// shutdown releases everything in reverse dependency order.
func (a *App) shutdown() {
	a.log.Info("app: shutting down")
	for name, adapter := range a.adapters {
		adapter.Disconnect()
		a.log.Debug("app: %s disconnected", name)
	}
	a.store.UpdateStatus(state.StatusIdle)
	if err := a.store.Persist(); err != nil {
		a.log.Error("app: final snapshot: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(ctx); err != nil {
		a.log.Warn("app: metrics shutdown: %v", err)
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.log.Warn("app: tracer shutdown: %v", err)
	}
}
