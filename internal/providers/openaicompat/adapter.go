// Package openaicompat implements the chat-completions dialect shared by
// OpenAI and the providers that clone its API (Groq, Mistral, Together,
// Google's OpenAI-compatible endpoint).
package openaicompat

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

// BaseURLs maps the providers served by this adapter to their endpoints.
var BaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"mistral":  "https://api.mistral.ai/v1",
	"together": "https://api.together.xyz/v1",
	"google":   "https://generativelanguage.googleapis.com/v1beta/openai",
}

// Adapter implements providers.Caller and providers.Streamer for any
// chat-completions compatible upstream. Credentials are resolved per call so
// rotation takes effect without a restart.
type Adapter struct {
	name    string
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

// New creates an adapter for the named provider. baseURL may be empty to use
// the entry from BaseURLs.
func New(name, baseURL string, creds credstore.Store, opts ...Option) *Adapter {
	if baseURL == "" {
		baseURL = BaseURLs[name]
	}
	a := &Adapter{
		name:    name,
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

// Name returns the provider name this adapter serves.
func (a *Adapter) Name() string { return a.name }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Call sends a blocking chat-completions request.
func (a *Adapter) Call(ctx context.Context, req providers.CallRequest) (*providers.CallResult, error) {
	key := a.creds.Get(a.name)
	if key == "" {
		return nil, fmt.Errorf("%s: %w", a.name, providers.ErrCredentialMissing)
	}

	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/chat/completions",
		buildPayload(req, false), authHeaders(key))
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrDecode, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", providers.ErrDecode)
	}
	return &providers.CallResult{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// Stream sends a streaming chat-completions request and emits delta fragments
// until the [DONE] sentinel.
func (a *Adapter) Stream(ctx context.Context, req providers.CallRequest) (<-chan string, <-chan error) {
	frags := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(frags)
		defer close(errs)

		key := a.creds.Get(a.name)
		if key == "" {
			errs <- fmt.Errorf("%s: %w", a.name, providers.ErrCredentialMissing)
			return
		}

		rc, err := providers.DoStreamRequest(ctx, a.client, a.baseURL+"/chat/completions",
			buildPayload(req, true), authHeaders(key))
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

// scanStream reads SSE lines and forwards non-empty delta fragments.
func scanStream(ctx context.Context, rc io.Reader, frags chan<- string) error {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		select {
		case frags <- chunk.Choices[0].Delta.Content:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func buildPayload(req providers.CallRequest, stream bool) map[string]any {
	messages := make([]map[string]string, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	payload := map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

func authHeaders(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}
