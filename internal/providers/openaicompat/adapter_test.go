package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nexusai/nexus/internal/credstore"
	"github.com/nexusai/nexus/internal/providers"
)

func testCreds(key string) credstore.Store {
	return credstore.Static{"openai": key}
}

func TestCallSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer test-key", got)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Hello!"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 3},
		})
	}))
	defer ts.Close()

	a := New("openai", ts.URL, testCreds("test-key"))
	res, err := a.Call(context.Background(), providers.CallRequest{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Hello!" {
		t.Errorf("Text = %q, want %q", res.Text, "Hello!")
	}
	if res.InputTokens != 12 || res.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 12/3", res.InputTokens, res.OutputTokens)
	}
}

func TestCallSystemMessageFirst(t *testing.T) {
	var payload struct {
		Messages []map[string]string `json:"messages"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer ts.Close()

	a := New("openai", ts.URL, testCreds("k-123456"))
	_, err := a.Call(context.Background(), providers.CallRequest{
		Model:    "gpt-4o",
		System:   "be brief",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payload.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(payload.Messages))
	}
	if payload.Messages[0]["role"] != "system" || payload.Messages[0]["content"] != "be brief" {
		t.Errorf("first message = %v, want leading system message", payload.Messages[0])
	}
}

func TestCallMissingUsage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"no usage"}}]}`))
	}))
	defer ts.Close()

	a := New("openai", ts.URL, testCreds("k-123456"))
	res, err := a.Call(context.Background(), providers.CallRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.InputTokens != 0 || res.OutputTokens != 0 {
		t.Errorf("tokens = %d/%d, want 0/0 when usage absent", res.InputTokens, res.OutputTokens)
	}
}

func TestCallMissingCredential(t *testing.T) {
	a := New("openai", "http://localhost:1", credstore.Static{})
	_, err := a.Call(context.Background(), providers.CallRequest{Model: "gpt-4o"})
	if !errors.Is(err, providers.ErrCredentialMissing) {
		t.Fatalf("error = %v, want ErrCredentialMissing", err)
	}
}

func TestCallRateLimited(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer ts.Close()

	a := New("openai", ts.URL, testCreds("k-123456"))
	_, err := a.Call(context.Background(), providers.CallRequest{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error")
	}
	if providers.Classify(err) != providers.ClassRateLimited {
		t.Errorf("Classify = %s, want rate_limited", providers.Classify(err))
	}
}

func TestCallEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	a := New("openai", ts.URL, testCreds("k-123456"))
	_, err := a.Call(context.Background(), providers.CallRequest{Model: "gpt-4o"})
	if !errors.Is(err, providers.ErrDecode) {
		t.Fatalf("error = %v, want ErrDecode", err)
	}
}

func TestCallMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer ts.Close()

	a := New("openai", ts.URL, testCreds("k-123456"))
	_, err := a.Call(context.Background(), providers.CallRequest{Model: "gpt-4o"})
	if !errors.Is(err, providers.ErrDecode) {
		t.Fatalf("error = %v, want ErrDecode", err)
	}
}

func TestStreamFragments(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["stream"] != true {
			t.Errorf("expected stream:true in payload")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{}}]}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer ts.Close()

	a := New("openai", ts.URL, testCreds("k-123456"))
	frags, errs := a.Stream(context.Background(), providers.CallRequest{Model: "gpt-4o"})

	var got []string
	for f := range frags {
		got = append(got, f)
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if len(got) != 2 || got[0] != "Hel" || got[1] != "lo" {
		t.Errorf("fragments = %v, want [Hel lo]", got)
	}
}

func TestStreamServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`overloaded`))
	}))
	defer ts.Close()

	a := New("openai", ts.URL, testCreds("k-123456"))
	frags, errs := a.Stream(context.Background(), providers.CallRequest{Model: "gpt-4o"})

	for range frags {
		t.Error("expected no fragments")
	}
	err := <-errs
	var se *providers.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("error = %v, want StatusError 503", err)
	}
}

func TestStreamMissingCredential(t *testing.T) {
	a := New("groq", "http://localhost:1", credstore.Static{})
	frags, errs := a.Stream(context.Background(), providers.CallRequest{Model: "llama-3.3-70b"})

	for range frags {
		t.Error("expected no fragments")
	}
	if err := <-errs; !errors.Is(err, providers.ErrCredentialMissing) {
		t.Fatalf("error = %v, want ErrCredentialMissing", err)
	}
}

func TestDefaultBaseURLs(t *testing.T) {
	for _, name := range []string{"openai", "groq", "mistral", "together", "google"} {
		a := New(name, "", credstore.Static{})
		if a.baseURL == "" {
			t.Errorf("provider %s has no default base URL", name)
		}
		if a.Name() != name {
			t.Errorf("Name() = %q, want %q", a.Name(), name)
		}
	}
}

func TestNewInstrumentsTransport(t *testing.T) {
	a := New("openai", "", testCreds("test-key"))
	if _, ok := a.client.Transport.(*otelhttp.Transport); !ok {
		t.Fatalf("client transport = %T, want *otelhttp.Transport", a.client.Transport)
	}
}
