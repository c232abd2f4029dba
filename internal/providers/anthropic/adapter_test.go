package anthropic

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

func testCreds() credstore.Store {
	return credstore.Static{"anthropic": "test-key"}
}

func TestCallSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key header, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("expected anthropic-version header")
		}
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected /v1/messages, got %s", r.URL.Path)
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "Hello from Claude!"},
			},
			"usage": map[string]int{"input_tokens": 9, "output_tokens": 4},
		})
	}))
	defer ts.Close()

	a := New(ts.URL, testCreds())
	res, err := a.Call(context.Background(), providers.CallRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Hello from Claude!" {
		t.Errorf("Text = %q, want %q", res.Text, "Hello from Claude!")
	}
	if res.InputTokens != 9 || res.OutputTokens != 4 {
		t.Errorf("tokens = %d/%d, want 9/4", res.InputTokens, res.OutputTokens)
	}
}

func TestCallRateLimit429(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer ts.Close()

	a := New(ts.URL, testCreds())
	_, err := a.Call(context.Background(), providers.CallRequest{Model: "claude-3-haiku-20240307"})
	if err == nil {
		t.Fatal("expected error")
	}
	if providers.Classify(err) != providers.ClassRateLimited {
		t.Errorf("Classify = %s, want rate_limited", providers.Classify(err))
	}
}

func TestCallOverloaded529(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer ts.Close()

	a := New(ts.URL, testCreds())
	_, err := a.Call(context.Background(), providers.CallRequest{Model: "claude-3-haiku-20240307"})
	if err == nil {
		t.Fatal("expected error")
	}
	if providers.Classify(err) != providers.ClassRateLimited {
		t.Errorf("Classify = %s, want rate_limited for 529", providers.Classify(err))
	}
}

func TestCallServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"internal error"}}`))
	}))
	defer ts.Close()

	a := New(ts.URL, testCreds())
	_, err := a.Call(context.Background(), providers.CallRequest{Model: "claude-3-haiku-20240307"})
	if err == nil {
		t.Fatal("expected error")
	}
	if providers.Classify(err) != providers.ClassTransient {
		t.Errorf("Classify = %s, want transient", providers.Classify(err))
	}
}

func TestCallMissingCredential(t *testing.T) {
	a := New("http://localhost:1", credstore.Static{})
	_, err := a.Call(context.Background(), providers.CallRequest{Model: "claude-3-haiku-20240307"})
	if !errors.Is(err, providers.ErrCredentialMissing) {
		t.Fatalf("error = %v, want ErrCredentialMissing", err)
	}
}

func TestCallPayloadShape(t *testing.T) {
	var payload map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer ts.Close()

	a := New(ts.URL, testCreds())
	_, _ = a.Call(context.Background(), providers.CallRequest{
		Model:    "claude-3-5-sonnet-20241022",
		System:   "be brief",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})

	// max_tokens defaults when unset; system rides its dedicated field.
	if payload["max_tokens"] != float64(4096) {
		t.Errorf("expected max_tokens=4096, got %v", payload["max_tokens"])
	}
	if payload["system"] != "be brief" {
		t.Errorf("expected system field, got %v", payload["system"])
	}
	msgs, ok := payload["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Errorf("messages = %v, want exactly the user turn", payload["messages"])
	}
}

func TestStreamFragments(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(
			"event: message_start\n" +
				"data: {\"type\":\"message_start\"}\n\n" +
				"event: content_block_delta\n" +
				"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n" +
				"event: content_block_delta\n" +
				"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n" +
				"event: message_stop\n" +
				"data: {\"type\":\"message_stop\"}\n\n"))
	}))
	defer ts.Close()

	a := New(ts.URL, testCreds())
	frags, errs := a.Stream(context.Background(), providers.CallRequest{Model: "claude-3-5-sonnet-20241022"})

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
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`bad gateway`))
	}))
	defer ts.Close()

	a := New(ts.URL, testCreds())
	frags, errs := a.Stream(context.Background(), providers.CallRequest{Model: "claude-3-5-sonnet-20241022"})

	for range frags {
		t.Error("expected no fragments")
	}
	err := <-errs
	var se *providers.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("error = %v, want StatusError 502", err)
	}
}

func TestNewInstrumentsTransport(t *testing.T) {
	a := New("", testCreds())
	if _, ok := a.client.Transport.(*otelhttp.Transport); !ok {
		t.Fatalf("client transport = %T, want *otelhttp.Transport", a.client.Transport)
	}
}
