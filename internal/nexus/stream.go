package nexus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexusai/nexus/internal/audit"
	"github.com/nexusai/nexus/internal/cost"
	"github.com/nexusai/nexus/internal/providers"
	"github.com/nexusai/nexus/internal/router"
)

// Frame types emitted on a stream.
const (
	FrameStart = "start"
	FrameToken = "token"
	FrameDone  = "done"
)

// Frame is one streaming event. The encoded form is byte-compatible with
// Server-Sent Events so framed consumers can read it unchanged.
type Frame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Encode renders the frame as an SSE data line followed by a blank line.
func (f Frame) Encode() string {
	raw, _ := json.Marshal(f)
	return "data: " + string(raw) + "\n\n"
}

// Stream runs the request against a single model and emits start, token, and
// done frames in provider arrival order. Streaming bypasses synthesis; cost
// and audit recording fire after the done frame.
func (e *Engine) Stream(ctx context.Context, req Request) (<-chan Frame, <-chan error) {
	frames := make(chan Frame, 16)
	errs := make(chan error, 1)

	if err := req.Validate(); err != nil {
		errs <- err
		close(frames)
		close(errs)
		return frames, errs
	}

	requestID := uuid.NewString()
	ctx = providers.WithRequestID(ctx, requestID)
	start := time.Now()

	piiRes := e.detector.Analyze(req.Prompt)
	safePrompt := piiRes.RedactedText

	modelID := e.pickStreamModel(req, safePrompt)
	provider := router.Provider(modelID)

	go func() {
		defer close(frames)
		defer close(errs)

		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		if !emit(ctx, frames, Frame{Type: FrameStart, RequestID: requestID, Model: modelID}) {
			return
		}

		var streamed strings.Builder
		err := e.streamModel(ctx, modelID, provider, req, safePrompt, func(fragment string) bool {
			streamed.WriteString(fragment)
			return emit(ctx, frames, Frame{Type: FrameToken, Content: fragment})
		})
		if err != nil {
			errs <- fmt.Errorf("stream %s: %w", modelID, err)
			return
		}

		if !emit(ctx, frames, Frame{Type: FrameDone, RequestID: requestID}) {
			return
		}

		e.finishStreamAsync(req, requestID, modelID, provider,
			float64(time.Since(start))/float64(time.Millisecond), piiRes.HasPII)
	}()

	return frames, errs
}

// pickStreamModel returns the single model a stream uses: the first router
// pick, or gpt-4o when routing comes back empty.
func (e *Engine) pickStreamModel(req Request, safePrompt string) string {
	if len(req.OverrideModels) > 0 {
		return req.OverrideModels[0]
	}
	models := e.router.SelectModels(safePrompt, req.Mode, 1, nil)
	if len(models) == 0 {
		return "gpt-4o"
	}
	return models[0]
}

// streamModel feeds fragments to yield. Adapters without native streaming
// fall back to a word-split replay of a blocking call.
func (e *Engine) streamModel(ctx context.Context, modelID, provider string, req Request, safePrompt string, yield func(string) bool) error {
	callReq := providers.CallRequest{
		Model:       modelID,
		Messages:    append(append([]providers.Message{}, req.Messages...), providers.Message{Role: "user", Content: safePrompt}),
		System:      req.System,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	if streamer, ok := e.streamers[provider]; ok {
		frags, errs := streamer.Stream(ctx, callReq)
		for frag := range frags {
			if !yield(frag) {
				return ctx.Err()
			}
		}
		return <-errs
	}

	caller, ok := e.callers[provider]
	if !ok {
		return fmt.Errorf("no adapter registered for provider %s", provider)
	}
	res, err := caller.Call(ctx, callReq)
	if err != nil {
		return err
	}
	words := strings.Fields(res.Text)
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		if !yield(w) {
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) finishStreamAsync(req Request, requestID, modelID, provider string, latencyMs float64, piiDetected bool) {
	if e.tracker != nil {
		params := cost.RecordParams{
			TenantID:  req.TenantID,
			RequestID: requestID,
			Model:     modelID,
			Provider:  provider,
		}
		e.spool.SubmitGuarded("cost.record", func(ctx context.Context) error {
			return e.tracker.Record(ctx, params)
		})
	}

	record := audit.InferenceRecord{
		TenantID:     req.TenantID,
		ActorID:      req.ActorID,
		RequestID:    requestID,
		Model:        modelID,
		Provider:     provider,
		LatencyMs:    latencyMs,
		SafetyPassed: true,
		PIIDetected:  piiDetected,
		PromptHash:   audit.HashPrompt(req.Prompt),
		StatusCode:   200,
	}
	e.spool.Submit("audit.append", func(ctx context.Context) error {
		_, err := e.auditLog.LogInference(ctx, record)
		return err
	})

	slog.Info("stream done",
		slog.String("request_id", requestID),
		slog.String("model", modelID),
		slog.Float64("latency_ms", latencyMs),
	)
}

// emit delivers a frame unless the context is done.
func emit(ctx context.Context, frames chan<- Frame, f Frame) bool {
	select {
	case frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
