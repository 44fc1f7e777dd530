// Package engine wires all dispatch subsystems together: the agent
// registry, dispatcher, completion handler, health monitor, DLQ service
// and extension registry, all over a single aggregate store.
//
// This package exists to break the import cycle: the root dispatch
// package defines Entity (imported by agent, job, dlq) and so cannot
// import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/backoff"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/completion"
	"github.com/muhammadiwa/youtube-automation-sub005/dispatcher"
	"github.com/muhammadiwa/youtube-automation-sub005/dlq"
	"github.com/muhammadiwa/youtube-automation-sub005/ext"
	"github.com/muhammadiwa/youtube-automation-sub005/health"
	"github.com/muhammadiwa/youtube-automation-sub005/observability"
	"github.com/muhammadiwa/youtube-automation-sub005/store"
	"github.com/muhammadiwa/youtube-automation-sub005/throttle"
)

// extEvents adapts *ext.Registry to satisfy agent.Events.
// This breaks the import cycle: agent defines the interface,
// ext.Registry provides the implementation, and the engine layer
// plugs them together.
type extEvents struct {
	r *ext.Registry
}

func (a *extEvents) AgentRegistered(ctx context.Context, ag *agent.Agent) {
	a.r.EmitAgentRegistered(ctx, ag)
}

func (a *extEvents) AgentRecovered(ctx context.Context, ag *agent.Agent) {
	a.r.EmitAgentRecovered(ctx, ag)
}

// Engine bundles the dispatch subsystems behind typed accessors.
// Use Build() to create one.
type Engine struct {
	cfg        dispatch.Config
	store      store.Store
	clock      clock.Clock
	logger     *slog.Logger
	extensions *ext.Registry
	backoffs   *backoff.Registry
	limiter    *throttle.Limiter

	agents      *agent.Registry
	dispatcher  *dispatcher.Dispatcher
	completions *completion.Handler
	monitor     *health.Monitor
	dlqService  *dlq.Service

	pendingExts     []ext.Extension
	notifiers       []dlq.Notifier
	throttleConfigs []throttle.Config
	backoffPolicies map[string]backoff.Policy
	meterProvider   metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.pendingExts = append(eng.pendingExts, e)
	}
}

// WithClock sets the engine's clock. Tests use a fake clock here;
// production uses the default real clock.
func WithClock(clk clock.Clock) Option {
	return func(eng *Engine) {
		eng.clock = clk
	}
}

// WithNotifier adds an alert delivery channel for dead-lettered jobs.
func WithNotifier(n dlq.Notifier) Option {
	return func(eng *Engine) {
		eng.notifiers = append(eng.notifiers, n)
	}
}

// WithThrottleConfig registers per-job-type dispatch limits. Job types
// not listed have no limits.
func WithThrottleConfig(configs ...throttle.Config) Option {
	return func(eng *Engine) {
		eng.throttleConfigs = append(eng.throttleConfigs, configs...)
	}
}

// WithBackoffPolicy overrides the retry policy for a job type.
func WithBackoffPolicy(jobType string, p backoff.Policy) Option {
	return func(eng *Engine) {
		eng.backoffPolicies[jobType] = p
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the
// observability extension. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine over the given store.
func Build(cfg dispatch.Config, st store.Store, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, dispatch.ErrNoStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := dispatch.DefaultConfig()
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = def.UnhealthyThreshold
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.AlertSweepInterval <= 0 {
		cfg.AlertSweepInterval = def.AlertSweepInterval
	}
	if cfg.DefaultMaxAttempts < 1 {
		cfg.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	eng := &Engine{
		cfg:             cfg,
		store:           st,
		clock:           clock.New(),
		logger:          logger,
		extensions:      ext.NewRegistry(logger),
		backoffs:        backoff.NewRegistry(),
		backoffPolicies: make(map[string]backoff.Policy),
	}
	for _, opt := range opts {
		opt(eng)
	}

	for jobType, p := range eng.backoffPolicies {
		if err := eng.backoffs.Register(jobType, p); err != nil {
			return nil, fmt.Errorf("engine: backoff policy for %q: %w", jobType, err)
		}
	}

	// Register the observability metrics extension first, then
	// caller-supplied extensions.
	var obsExt *observability.MetricsExtension
	var err error
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/muhammadiwa/youtube-automation-sub005/observability")
		obsExt, err = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt, err = observability.NewMetricsExtension()
	}
	if err != nil {
		return nil, fmt.Errorf("engine: metrics extension: %w", err)
	}
	eng.extensions.Register(obsExt)
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	eng.limiter = throttle.NewLimiter(eng.throttleConfigs...)

	events := &extEvents{r: eng.extensions}
	eng.agents = agent.NewRegistry(st, eng.clock, events, logger)
	eng.dlqService = dlq.NewService(st, st, eng.clock, logger, eng.notifiers...)
	eng.dispatcher = dispatcher.New(st, st, eng.limiter, eng.extensions, eng.clock, logger, cfg.DefaultMaxAttempts)
	eng.completions = completion.NewHandler(st, st, eng.backoffs, eng.dlqService, eng.limiter, eng.extensions, eng.clock, logger)
	eng.monitor = health.NewMonitor(st, st, eng.limiter, eng.extensions, eng.clock, logger, cfg.UnhealthyThreshold)

	return eng, nil
}

// Start verifies store connectivity and runs migrations.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.store.Ping(ctx); err != nil {
		return fmt.Errorf("engine: store ping: %w", err)
	}
	if err := eng.store.Migrate(ctx); err != nil {
		return fmt.Errorf("engine: migrate: %w", err)
	}
	eng.logger.Info("dispatch engine started",
		slog.Duration("unhealthy_threshold", eng.cfg.UnhealthyThreshold),
		slog.Duration("sweep_interval", eng.cfg.SweepInterval),
		slog.Int("default_max_attempts", eng.cfg.DefaultMaxAttempts),
	)
	return nil
}

// Stop notifies extensions and closes the store.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.extensions.EmitShutdown(ctx)
	if err := eng.store.Close(); err != nil {
		return fmt.Errorf("engine: close store: %w", err)
	}
	eng.logger.Info("dispatch engine stopped")
	return nil
}

// Config returns the engine's effective configuration.
func (eng *Engine) Config() dispatch.Config { return eng.cfg }

// Agents returns the agent registry.
func (eng *Engine) Agents() *agent.Registry { return eng.agents }

// Dispatcher returns the job dispatcher.
func (eng *Engine) Dispatcher() *dispatcher.Dispatcher { return eng.dispatcher }

// Completions returns the completion handler.
func (eng *Engine) Completions() *completion.Handler { return eng.completions }

// Health returns the health monitor.
func (eng *Engine) Health() *health.Monitor { return eng.monitor }

// DLQ returns the dead letter queue service.
func (eng *Engine) DLQ() *dlq.Service { return eng.dlqService }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Backoffs returns the retry policy registry.
func (eng *Engine) Backoffs() *backoff.Registry { return eng.backoffs }

// Limiter returns the per-job-type throttle.
func (eng *Engine) Limiter() *throttle.Limiter { return eng.limiter }

// Store returns the aggregate store.
func (eng *Engine) Store() store.Store { return eng.store }
