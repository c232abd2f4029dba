package nexus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusai/nexus/internal/audit"
	"github.com/nexusai/nexus/internal/cost"
	"github.com/nexusai/nexus/internal/events"
	"github.com/nexusai/nexus/internal/pii"
	"github.com/nexusai/nexus/internal/providers"
	"github.com/nexusai/nexus/internal/router"
	"github.com/nexusai/nexus/internal/safety"
)

// DefaultTimeout is the per-request fan-out deadline. Individual adapters
// additionally enforce their own 60s per-call timeout.
const DefaultTimeout = 120 * time.Second

// Engine composes the request path: PII scan, routing, parallel fan-out,
// synthesis, then asynchronous cost and audit recording. One Engine serves
// many concurrent requests; all of its dependencies are read-only or
// internally synchronized.
type Engine struct {
	detector  *pii.Detector
	router    *router.Router
	callers   map[string]providers.Caller
	streamers map[string]providers.Streamer

	tracker   *cost.Tracker
	auditLog  *audit.Log
	analytics *cost.Collector
	bus       *events.Bus
	cache     *Cache
	spool     *Spool

	threshold float64
	maxModels int
	timeout   time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithCaller registers a provider adapter. Adapters that also implement
// providers.Streamer are registered for streaming automatically.
func WithCaller(provider string, c providers.Caller) Option {
	return func(e *Engine) {
		e.callers[provider] = c
		if s, ok := c.(providers.Streamer); ok {
			e.streamers[provider] = s
		}
	}
}

// WithCostTracker enables asynchronous spend recording.
func WithCostTracker(t *cost.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithAuditLog sets the audit chain. The default is an in-memory chain.
func WithAuditLog(l *audit.Log) Option {
	return func(e *Engine) { e.auditLog = l }
}

// WithAnalytics enables rolling per-call snapshots.
func WithAnalytics(c *cost.Collector) Option {
	return func(e *Engine) { e.analytics = c }
}

// WithBus publishes route and request events.
func WithBus(b *events.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithCache enables the response cache.
func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithConsensusThreshold overrides the synthesis threshold.
func WithConsensusThreshold(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.threshold = v
		}
	}
}

// WithMaxModels overrides the default fan-out cap.
func WithMaxModels(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxModels = n
		}
	}
}

// WithTimeout overrides the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New builds an Engine around a PII detector and a model router.
func New(detector *pii.Detector, rtr *router.Router, opts ...Option) *Engine {
	e := &Engine{
		detector:  detector,
		router:    rtr,
		callers:   make(map[string]providers.Caller),
		streamers: make(map[string]providers.Streamer),
		spool:     NewSpool(0),
		threshold: DefaultConsensusThreshold,
		maxModels: router.DefaultMaxModels,
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	if e.auditLog == nil {
		e.auditLog = audit.NewLog(nil)
	}
	return e
}

// AuditLog exposes the engine's audit chain for verification and export.
func (e *Engine) AuditLog() *audit.Log { return e.auditLog }

// Close drains the background spool. Call on shutdown so pending cost and
// audit writes land.
func (e *Engine) Close() {
	e.spool.Close()
}

// Orchestrate runs the full request path and returns the synthesized result.
func (e *Engine) Orchestrate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	ctx = providers.WithRequestID(ctx, requestID)
	start := time.Now()

	piiRes := e.detector.Analyze(req.Prompt)
	safePrompt := piiRes.RedactedText
	if piiRes.HasCritical {
		// Critical categories are recorded, not blocked; blocking is the
		// policy gate's call.
		slog.Warn("critical pii redacted",
			slog.String("request_id", requestID),
			slog.String("tenant_id", req.TenantID),
		)
	}
	safetyPassed := safety.Screen(req.Prompt)

	var key string
	if e.cache != nil && len(req.OverrideModels) == 0 {
		key = cacheKey(req, safePrompt)
		if cached := e.cache.Get(ctx, key); cached != nil {
			slog.Debug("cache hit", slog.String("request_id", requestID))
			return cached, nil
		}
	}

	maxModels := req.MaxModels
	if maxModels <= 0 {
		maxModels = e.maxModels
	}
	models := req.OverrideModels
	if len(models) == 0 {
		models = e.router.SelectModels(safePrompt, req.Mode, maxModels, nil)
	}
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	if len(models) > maxModels {
		models = models[:maxModels]
	}

	slog.Info("orchestrate start",
		slog.String("request_id", requestID),
		slog.String("tenant_id", req.TenantID),
		slog.String("mode", string(req.Mode)),
		slog.Any("models", models),
		slog.Bool("pii_detected", piiRes.HasPII),
	)

	results := e.fanOut(ctx, models, req, safePrompt)
	e.observeResults(req.TenantID, results)

	valid := make([]ModelResult, 0, len(results))
	totalCost := 0.0
	for _, r := range results {
		totalCost += r.CostUSD
		if r.OK() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		if e.bus != nil {
			e.bus.Publish(events.Event{
				Type:      events.EventRequestFailed,
				RequestID: requestID,
				TenantID:  req.TenantID,
				Reason:    "all_providers_failed",
			})
		}
		return nil, fmt.Errorf("%w (request %s)", ErrAllProvidersFailed, requestID)
	}

	consensus, synthesized, final := synthesize(valid, req.Mode, e.threshold)

	res := &Result{
		RequestID:      requestID,
		Mode:           req.Mode,
		FinalResponse:  final,
		ModelsUsed:     valid,
		ConsensusScore: consensus,
		TotalLatencyMs: float64(time.Since(start)) / float64(time.Millisecond),
		TotalCostUSD:   totalCost,
		Synthesized:    synthesized,
		SafetyPassed:   safetyPassed,
		PIIDetected:    piiRes.HasPII,
		PIIEntities:    piiRes.Entities,
	}

	if e.cache != nil && key != "" {
		e.cache.Put(ctx, key, res)
	}
	e.finishAsync(req, res, models[0])

	slog.Info("orchestrate done",
		slog.String("request_id", requestID),
		slog.Int("models_ok", len(valid)),
		slog.Float64("consensus", consensus),
		slog.Bool("synthesized", synthesized),
		slog.Float64("total_cost_usd", totalCost),
	)
	return res, nil
}

// fanOut calls every selected model in parallel under the request deadline.
// Failures land on the individual ModelResult; siblings keep running.
func (e *Engine) fanOut(ctx context.Context, models []string, req Request, safePrompt string) []ModelResult {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	results := make([]ModelResult, len(models))
	var wg sync.WaitGroup
	for i, modelID := range models {
		wg.Add(1)
		go func(i int, modelID string) {
			defer wg.Done()
			results[i] = e.callModel(ctx, modelID, req, safePrompt)
		}(i, modelID)
	}
	wg.Wait()
	return results
}

// callModel runs one provider call and prices it.
func (e *Engine) callModel(ctx context.Context, modelID string, req Request, safePrompt string) ModelResult {
	provider := router.Provider(modelID)
	out := ModelResult{ModelID: modelID, Provider: provider}

	caller, ok := e.callers[provider]
	if !ok {
		out.Err = fmt.Sprintf("no adapter registered for provider %s", provider)
		return out
	}

	messages := make([]providers.Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)
	messages = append(messages, providers.Message{Role: "user", Content: safePrompt})

	callStart := time.Now()
	res, err := caller.Call(ctx, providers.CallRequest{
		Model:       modelID,
		Messages:    messages,
		System:      req.System,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	out.LatencyMs = float64(time.Since(callStart)) / float64(time.Millisecond)
	if err != nil {
		out.Err = err.Error()
		slog.Warn("model call failed",
			slog.String("model", modelID),
			slog.String("provider", provider),
			slog.String("class", string(providers.Classify(err))),
			slog.String("error", err.Error()),
		)
		return out
	}

	out.Response = res.Text
	out.InputTokens = res.InputTokens
	out.OutputTokens = res.OutputTokens
	out.TokensUsed = res.InputTokens + res.OutputTokens
	out.CostUSD = cost.Compute(modelID, res.InputTokens, res.OutputTokens)
	return out
}

// observeResults feeds the analytics collector and the event bus.
func (e *Engine) observeResults(tenantID string, results []ModelResult) {
	for _, r := range results {
		if e.analytics != nil {
			e.analytics.Record(cost.Snapshot{
				TenantID:     tenantID,
				ModelID:      r.ModelID,
				ProviderID:   r.Provider,
				LatencyMs:    r.LatencyMs,
				CostUSD:      r.CostUSD,
				Success:      r.OK(),
				InputTokens:  r.InputTokens,
				OutputTokens: r.OutputTokens,
			})
		}
		if e.bus == nil {
			continue
		}
		if r.OK() {
			e.bus.Publish(events.Event{
				Type:       events.EventRouteSuccess,
				ModelID:    r.ModelID,
				ProviderID: r.Provider,
				LatencyMs:  r.LatencyMs,
				CostUSD:    r.CostUSD,
			})
		} else {
			e.bus.Publish(events.Event{
				Type:       events.EventRouteError,
				ModelID:    r.ModelID,
				ProviderID: r.Provider,
				ErrorMsg:   r.Err,
			})
		}
	}
}

// finishAsync spools cost recording and the audit append. Cost is recorded as
// a single aggregate row per request; per-model figures stay on the Result.
func (e *Engine) finishAsync(req Request, res *Result, primaryModel string) {
	promptHash := audit.HashPrompt(req.Prompt)

	if e.tracker != nil {
		params := cost.RecordParams{
			TenantID:  req.TenantID,
			RequestID: res.RequestID,
			Model:     primaryModel,
			Provider:  "nexus",
			CostUSD:   res.TotalCostUSD,
		}
		e.spool.SubmitGuarded("cost.record", func(ctx context.Context) error {
			return e.tracker.Record(ctx, params)
		})
	}

	record := audit.InferenceRecord{
		TenantID:     req.TenantID,
		ActorID:      req.ActorID,
		RequestID:    res.RequestID,
		Model:        "nexus-ultra",
		Provider:     "nexusai",
		LatencyMs:    res.TotalLatencyMs,
		CostUSD:      res.TotalCostUSD,
		SafetyPassed: res.SafetyPassed,
		PIIDetected:  res.PIIDetected,
		PromptHash:   promptHash,
		StatusCode:   200,
	}
	e.spool.Submit("audit.append", func(ctx context.Context) error {
		_, err := e.auditLog.LogInference(ctx, record)
		return err
	})

	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type:         events.EventRequestCompleted,
			RequestID:    res.RequestID,
			TenantID:     req.TenantID,
			Consensus:    res.ConsensusScore,
			TotalCostUSD: res.TotalCostUSD,
		})
	}
}
