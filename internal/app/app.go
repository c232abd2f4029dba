// Package app wires the orchestration core from environment configuration:
// detector, router, provider adapters, spend tracking, rate limiting, audit
// chain, and the engine that composes them.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexusai/nexus/internal/audit"
	"github.com/nexusai/nexus/internal/backpressure"
	"github.com/nexusai/nexus/internal/cost"
	"github.com/nexusai/nexus/internal/credstore"
	"github.com/nexusai/nexus/internal/events"
	"github.com/nexusai/nexus/internal/logging"
	"github.com/nexusai/nexus/internal/nexus"
	"github.com/nexusai/nexus/internal/pii"
	"github.com/nexusai/nexus/internal/policy"
	"github.com/nexusai/nexus/internal/providers/anthropic"
	"github.com/nexusai/nexus/internal/providers/deepseek"
	"github.com/nexusai/nexus/internal/providers/openaicompat"
	"github.com/nexusai/nexus/internal/ratelimit"
	"github.com/nexusai/nexus/internal/router"
	"github.com/nexusai/nexus/internal/tracing"
)

// App holds the assembled core and its collaborators. Outer layers (HTTP
// surface, workflow runners) consume these; the core itself has no server.
type App struct {
	Config Config

	Engine       *nexus.Engine
	Detector     *pii.Detector
	Router       *router.Router
	Policy       *policy.Engine
	Tracker      *cost.Tracker
	Budgets      *cost.Budgets
	Analytics    *cost.Collector
	AuditLog     *audit.Log
	AuditSink    audit.Sink
	Limiter      *ratelimit.Limiter
	Backpressure *backpressure.Controller
	Bus          *events.Bus
	Redis        *redis.Client

	logger          *slog.Logger
	shutdownTracing func(context.Context) error
	closeSink       func() error
}

// New builds the core from config. Redis-backed pieces are wired but only
// touched on use, so a dead Redis degrades recording rather than failing
// startup.
func New(cfg Config) (*App, error) {
	logger := logging.Setup(cfg.LogLevel)

	shutdownTracing, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelService,
	})
	if err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(redisOpts)

	creds := credstore.Func(cfg.CredentialFor)
	detector := pii.NewDetector()
	rtr := router.New(creds, cfg.IsDevelopment())
	bus := events.NewBus()

	tracker := cost.NewTracker(rdb)
	analytics := cost.NewCollector()
	budgets := cost.NewBudgets()
	budgets.AttachBus(bus)

	var sink audit.Sink
	closeSink := func() error { return nil }
	if cfg.AuditDB != "" {
		sqliteSink, err := audit.NewSQLiteSink(cfg.AuditDB)
		if err != nil {
			return nil, err
		}
		sink = sqliteSink
		closeSink = sqliteSink.Close
	} else {
		sink = audit.NewMemorySink()
	}
	auditLog := audit.NewLog(sink)

	pol := policy.NewEngine(policy.Default())
	if cfg.PolicyFile != "" {
		if loaded, err := policy.Load(cfg.PolicyFile); err == nil {
			pol = loaded
		} else {
			logger.Warn("policy file not loaded, using defaults",
				slog.String("path", cfg.PolicyFile),
				slog.String("error", err.Error()),
			)
		}
	}

	engineOpts := append(providerAdapterOptions(creds),
		nexus.WithCostTracker(tracker),
		nexus.WithAuditLog(auditLog),
		nexus.WithAnalytics(analytics),
		nexus.WithBus(bus),
		nexus.WithConsensusThreshold(cfg.ConsensusThreshold),
		nexus.WithMaxModels(cfg.MaxModels),
		nexus.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
	)
	if cfg.CacheTTLSeconds > 0 {
		engineOpts = append(engineOpts,
			nexus.WithCache(nexus.NewCache(rdb, time.Duration(cfg.CacheTTLSeconds)*time.Second)))
	}
	engine := nexus.New(detector, rtr, engineOpts...)

	return &App{
		Config:          cfg,
		Engine:          engine,
		Detector:        detector,
		Router:          rtr,
		Policy:          pol,
		Tracker:         tracker,
		Budgets:         budgets,
		Analytics:       analytics,
		AuditLog:        auditLog,
		AuditSink:       sink,
		Limiter:         ratelimit.New(rdb, cfg.RateLimit, cfg.RateWindowSeconds),
		Backpressure:    backpressure.NewController(cfg.BackpressureThreshold, bus),
		Bus:             bus,
		Redis:           rdb,
		logger:          logger,
		shutdownTracing: shutdownTracing,
		closeSink:       closeSink,
	}, nil
}

// providerAdapterOptions registers one adapter per supported provider: the
// chat-completions adapter for the OpenAI-compatible fleet plus the bespoke
// Anthropic and DeepSeek adapters.
func providerAdapterOptions(creds credstore.Store) []nexus.Option {
	var opts []nexus.Option
	for name := range openaicompat.BaseURLs {
		opts = append(opts, nexus.WithCaller(name, openaicompat.New(name, "", creds)))
	}
	opts = append(opts,
		nexus.WithCaller("anthropic", anthropic.New("", creds)),
		nexus.WithCaller("deepseek", deepseek.New("", creds)),
	)
	return opts
}

// Close drains background work and releases resources.
func (a *App) Close(ctx context.Context) error {
	a.Engine.Close()
	if err := a.closeSink(); err != nil {
		a.logger.Warn("audit sink close failed", slog.String("error", err.Error()))
	}
	if err := a.Redis.Close(); err != nil {
		a.logger.Warn("redis close failed", slog.String("error", err.Error()))
	}
	return a.shutdownTracing(ctx)
}
