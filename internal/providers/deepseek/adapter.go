// Package deepseek implements the DeepSeek chat adapter. The dialect is
// OpenAI-compatible except for the reasoning_content field emitted by
// deepseek-reasoner, which is dropped from the answer text while its token
// usage still counts.
package deepseek

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

// DefaultBaseURL is the hosted DeepSeek API endpoint.
const DefaultBaseURL = "https://api.deepseek.com/v1"

// Adapter implements providers.Caller and providers.Streamer for DeepSeek.
type Adapter struct {
	baseURL string
	creds   credstore.Store
	client  *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout sets the HTTP client timeout. The default is 60s; reasoner
// models routinely need most of it.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.client.Timeout = d
	}
}

// New creates a DeepSeek adapter. baseURL may be empty for the hosted API.
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
func (a *Adapter) Name() string { return "deepseek" }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
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
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Call sends a blocking chat request. Only message.content becomes the
// answer; reasoning_content is discarded.
func (a *Adapter) Call(ctx context.Context, req providers.CallRequest) (*providers.CallResult, error) {
	key := a.creds.Get("deepseek")
	if key == "" {
		return nil, fmt.Errorf("deepseek: %w", providers.ErrCredentialMissing)
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

// Stream sends a streaming chat request. Reasoning deltas are skipped; only
// answer content fragments are emitted.
func (a *Adapter) Stream(ctx context.Context, req providers.CallRequest) (<-chan string, <-chan error) {
	frags := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(frags)
		defer close(errs)

		key := a.creds.Get("deepseek")
		if key == "" {
			errs <- fmt.Errorf("deepseek: %w", providers.ErrCredentialMissing)
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
