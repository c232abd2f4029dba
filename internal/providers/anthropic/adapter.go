// Package anthropic implements the Messages API adapter.
package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nexusai/nexus/internal/credstore"
	"github.com/nexusai/nexus/internal/providers"
	"github.com/nexusai/nexus/internal/tracing"
)

// DefaultBaseURL is the hosted Anthropic API endpoint.
const DefaultBaseURL = "https://api.anthropic.com"

const apiVersion = "2023-06-01"

// Adapter implements providers.Caller and providers.Streamer for Anthropic.
type Adapter struct {
	baseURL string
	creds   credstore.Store
	client  *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout sets the HTTP client timeout. The default is 60s.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.client.Timeout = d
	}
}

// New creates an Anthropic adapter. baseURL may be empty for the hosted API.
func New(baseURL string, creds credstore.Store, opts ...Option) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	a := &Adapter{
		baseURL: baseURL,
		creds:   creds,
		client: &http.Client{
			Timeout:   60 * time.Second,
			Transport: tracing.HTTPTransport(nil),
		},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Name returns the provider name.
func (a *Adapter) Name() string { return "anthropic" }

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// Call sends a blocking Messages API request.
func (a *Adapter) Call(ctx context.Context, req providers.CallRequest) (*providers.CallResult, error) {
	key := a.creds.Get("anthropic")
	if key == "" {
		return nil, fmt.Errorf("anthropic: %w", providers.ErrCredentialMissing)
	}

	body, err := a.makeRequest(ctx, "/v1/messages", buildPayload(req, false), key)
	if err != nil {
		return nil, err
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrDecode, err)
	}
	if len(parsed.Content) == 0 {
		return nil, fmt.Errorf("%w: no content blocks in response", providers.ErrDecode)
	}
	return &providers.CallResult{
		Text:         parsed.Content[0].Text,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

// Stream sends a streaming Messages API request and emits text_delta
// fragments until message_stop.
func (a *Adapter) Stream(ctx context.Context, req providers.CallRequest) (<-chan string, <-chan error) {
	frags := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(frags)
		defer close(errs)

		key := a.creds.Get("anthropic")
		if key == "" {
			errs <- fmt.Errorf("anthropic: %w", providers.ErrCredentialMissing)
			return
		}

		rc, err := a.makeStreamRequest(ctx, "/v1/messages", buildPayload(req, true), key)
		if err != nil {
			errs <- err
			return
		}
		defer func() { _ = rc.Close() }()

		if err := scanStream(ctx, rc, frags); err != nil {
			errs <- err
		}
	}()

	return frags, errs
}

// scanStream reads Anthropic SSE events and forwards text_delta fragments.
func scanStream(ctx context.Context, rc io.Reader, frags chan<- string) error {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "message_stop":
			return nil
		case "content_block_delta":
			if ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
				continue
			}
			select {
			case frags <- ev.Delta.Text:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return scanner.Err()
}

func buildPayload(req providers.CallRequest, stream bool) map[string]any {
	messages := make([]map[string]string, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = map[string]string{"role": m.Role, "content": m.Content}
	}

	payload := map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	// Anthropic requires max_tokens; default if not provided.
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	} else {
		payload["max_tokens"] = 4096
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

func authHeaders(key string) map[string]string {
	return map[string]string{
		"x-api-key":         key,
		"anthropic-version": apiVersion,
	}
}

func (a *Adapter) makeStreamRequest(ctx context.Context, endpoint string, payload any, key string) (io.ReadCloser, error) {
	return providers.DoStreamRequest(ctx, a.client, a.baseURL+endpoint, payload, authHeaders(key))
}

func (a *Adapter) makeRequest(ctx context.Context, endpoint string, payload any, key string) ([]byte, error) {
	return providers.DoRequest(ctx, a.client, a.baseURL+endpoint, payload, authHeaders(key))
}
