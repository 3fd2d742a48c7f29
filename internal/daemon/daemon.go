package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aldan/opschat/internal/config"
	"github.com/aldan/opschat/internal/logger"
	"github.com/aldan/opschat/internal/metrics"
	"github.com/aldan/opschat/internal/tracing"
	"github.com/aldan/opschat/pkg/agent"
	"github.com/aldan/opschat/pkg/engine"
	"github.com/aldan/opschat/pkg/opstools"
	"github.com/aldan/opschat/pkg/rescache"
	"github.com/aldan/opschat/pkg/session"
	"github.com/aldan/opschat/pkg/toolregistry"
	"github.com/aldan/opschat/pkg/turnqueue"
)

// Daemon wires together the chat service: config, session store with
// idle eviction, response cache, tool registry, engine client, and
// the turn orchestrator behind an HTTP surface.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store        *session.Store
	archiver     *session.Archiver
	cleanup      *session.Cleanup
	cache        *rescache.Cache
	registry     *toolregistry.Registry
	queue        *turnqueue.Queue
	engineClient engine.Client
	orchestrator *agent.Orchestrator

	watcher   *config.Watcher
	server    *httpServer
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status is a point-in-time daemon summary.
type Status struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	Uptime       time.Duration `json:"uptime"`
	Sessions     int           `json:"sessions"`
	CacheEntries int           `json:"cache_entries"`
	Tools        []string      `json:"tools"`
	Provider     string        `json:"provider"`
}

// New creates a daemon instance. Collaborator connections are lazy;
// nothing external is contacted until a turn arrives.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	metrics.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := tracing.InitOpenTelemetry("opschat"); err != nil {
		zl := log.GetZerolog()
		zl.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
	} else {
		d.tracingEnabled = true
	}

	if err := d.initModules(); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) initModules() error {
	zl := d.logger.GetZerolog()
	cfg := d.config

	d.store = session.NewStore(session.StoreConfig{Logger: zl})

	if cfg.Sessions.ArchivePath != "" {
		archiver, err := session.NewArchiver(cfg.Sessions.ArchivePath, zl)
		if err != nil {
			return fmt.Errorf("failed to open session archive: %w", err)
		}
		d.archiver = archiver
	}

	d.cleanup = session.NewCleanup(
		d.store,
		d.archiver,
		time.Duration(cfg.Sessions.IdleTTL)*time.Second,
		cfg.Sessions.SweepSchedule,
		zl,
	)

	if cfg.Cache.Enabled {
		d.cache = rescache.New(zl)
	}

	d.registry = toolregistry.New(zl)
	d.queue = turnqueue.New()

	profile, err := d.selectProfile()
	if err != nil {
		return err
	}
	d.engineClient, err = engine.New(profile)
	if err != nil {
		return fmt.Errorf("failed to create engine client: %w", err)
	}

	if cfg.Tools.MetricsServiceURL != "" {
		toolTimeout := time.Duration(cfg.Tools.RequestTimeout) * time.Second
		opts := opstools.Options{
			Metrics:        opstools.NewMetricsClient(cfg.Tools.MetricsServiceURL, toolTimeout),
			Engine:         d.engineClient,
			DashboardModel: cfg.Agent.Model,
		}
		if cfg.Tools.DashboardServiceURL != "" {
			opts.Dashboards = opstools.NewDashboardClient(cfg.Tools.DashboardServiceURL, toolTimeout)
		}
		if err := opstools.Register(d.registry, opts); err != nil {
			return fmt.Errorf("failed to register ops tools: %w", err)
		}
	}

	ttls := map[string]time.Duration{}
	if cfg.Cache.Enabled {
		ttls[agent.TypeChat] = time.Duration(cfg.Cache.ChatTTL) * time.Second
		ttls[agent.TypeDashboard] = time.Duration(cfg.Cache.DashboardTTL) * time.Second
		ttls[agent.TypeDiagnostics] = time.Duration(cfg.Cache.DiagnosticsTTL) * time.Second
	}

	d.orchestrator, err = agent.New(agent.Config{
		Store:           d.store,
		Registry:        d.registry,
		Engine:          d.engineClient,
		Queue:           d.queue,
		Cache:           d.cache,
		Fallback:        agent.NewFallback(cfg.Fallbacks),
		Logger:          zl,
		Model:           cfg.Agent.Model,
		Temperature:     cfg.Agent.Temperature,
		MaxTokens:       cfg.Agent.MaxTokens,
		SystemPrompt:    cfg.Agent.SystemPrompt,
		MaxRounds:       cfg.Agent.MaxRounds,
		TurnTimeout:     time.Duration(cfg.Agent.TurnTimeout) * time.Second,
		ToolTimeout:     time.Duration(cfg.Agent.ToolTimeout) * time.Second,
		ToolParallelism: cfg.Agent.ToolParallelism,
		CacheTTLs:       ttls,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	d.server = newHTTPServer(d)
	d.lifecycle = NewLifecycleManager(d)
	return nil
}

// selectProfile picks the default engine profile, or the first one.
func (d *Daemon) selectProfile() (config.EngineProfile, error) {
	profiles := d.config.Engine.Profiles
	if len(profiles) == 0 {
		return config.EngineProfile{}, fmt.Errorf("no engine profiles configured")
	}
	if d.config.Engine.Default != "" {
		for _, p := range profiles {
			if p.ID == d.config.Engine.Default {
				return p, nil
			}
		}
		return config.EngineProfile{}, fmt.Errorf("default engine profile %q not found", d.config.Engine.Default)
	}
	return profiles[0], nil
}

// Start brings up background services and the HTTP listener.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	zl := d.logger.GetZerolog()

	if err := d.lifecycle.Start(); err != nil {
		return err
	}

	if err := d.cleanup.Start(); err != nil {
		return fmt.Errorf("failed to start session cleanup: %w", err)
	}

	if d.cache != nil && d.config.Cache.JanitorInterval > 0 {
		d.cache.StartJanitor(time.Duration(d.config.Cache.JanitorInterval) * time.Second)
	}

	if err := d.startConfigWatcher(); err != nil {
		zl.Warn().Err(err).Msg("Config hot reload disabled")
	}

	if d.config.Admin.Enabled {
		if err := d.server.Start(); err != nil {
			return fmt.Errorf("failed to start http server: %w", err)
		}
	}

	zl.Info().
		Str("provider", d.engineClient.Provider()).
		Str("model", d.config.Agent.Model).
		Int("tools", len(d.registry.Names())).
		Msg("Daemon started")
	return nil
}

func (d *Daemon) startConfigWatcher() error {
	loader := config.NewLoader("")
	watcher, err := config.NewWatcher(loader, d.config, d.logger.GetZerolog(), d.onConfigReload)
	if err != nil {
		return err
	}
	d.watcher = watcher
	return nil
}

// onConfigReload applies the subset of settings that are safe to
// change at runtime. Engine profiles and listener settings need a
// restart.
func (d *Daemon) onConfigReload(cfg *config.Config) {
	d.mu.Lock()
	d.config.Fallbacks = cfg.Fallbacks
	d.config.Agent.SystemPrompt = cfg.Agent.SystemPrompt
	d.mu.Unlock()

	zl := d.logger.GetZerolog()
	zl.Info().Msg("Configuration reloaded")
}

// Stop shuts the daemon down gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	zl := d.logger.GetZerolog()
	zl.Info().Msg("Stopping daemon")

	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	if d.server != nil {
		_ = d.server.Stop()
	}
	if err := d.cleanup.Stop(); err != nil {
		zl.Warn().Err(err).Msg("Failed to stop session cleanup")
	}
	if d.cache != nil {
		d.cache.StopJanitor()
	}
	if err := d.queue.Close(); err != nil {
		zl.Warn().Err(err).Msg("Failed to drain turn queue")
	}
	if d.archiver != nil {
		_ = d.archiver.Close()
	}
	if err := d.lifecycle.Stop(); err != nil {
		zl.Warn().Err(err).Msg("Failed to stop lifecycle manager")
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
	}

	d.cancel()
	d.wg.Wait()

	zl.Info().Msg("Daemon stopped")
	return nil
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	zl := d.logger.GetZerolog()
	zl.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	return d.Stop()
}

// Status reports the daemon's current state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		PID:      os.Getpid(),
		Sessions: len(d.store.List()),
		Tools:    d.registry.Names(),
		Provider: d.engineClient.Provider(),
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
	}
	if d.cache != nil {
		status.CacheEntries = d.cache.Stats().Entries
	}
	return status
}

// Orchestrator exposes the turn orchestrator.
func (d *Daemon) Orchestrator() *agent.Orchestrator {
	return d.orchestrator
}
