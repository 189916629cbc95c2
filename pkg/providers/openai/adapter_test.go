package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/curalink/voicebridge/pkg/conversation"
	"github.com/curalink/voicebridge/pkg/errorsx"
	"github.com/curalink/voicebridge/pkg/llm"
)

func sseServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func collectDeltas(t *testing.T, deltas <-chan llm.Delta) (string, error) {
	t.Helper()
	var text string
	for {
		select {
		case d, ok := <-deltas:
			if !ok {
				return text, nil
			}
			if d.Err != nil {
				return text, d.Err
			}
			text += d.Text
		case <-time.After(3 * time.Second):
			t.Fatalf("stream stalled")
		}
	}
}

func TestAdapterStreamsDeltas(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	ts := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
				"data: [DONE]\n\n"))
	})

	a := NewAdapter(Config{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: ts.URL})
	deltas, err := a.Stream(context.Background(), llm.Request{
		System: "be brief",
		Turns: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	text, streamErr := collectDeltas(t, deltas)
	if streamErr != nil {
		t.Fatalf("delta error: %v", streamErr)
	}
	if text != "Hello" {
		t.Fatalf("expected Hello, got %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("missing bearer header: %q", gotAuth)
	}
	if gotBody["stream"] != true {
		t.Fatalf("expected streaming request, got %v", gotBody)
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user messages, got %v", msgs)
	}
}

func TestAdapterMapsUnauthorized(t *testing.T) {
	ts := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	a := NewAdapter(Config{APIKey: "bad", Model: "m", BaseURL: ts.URL})
	_, err := a.Stream(context.Background(), llm.Request{})
	if errorsx.Reason(err) != errorsx.ReasonAuthFailed {
		t.Fatalf("expected auth_failed, got %v", err)
	}
}

func TestAdapterRateLimitTripsBreaker(t *testing.T) {
	ts := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	a := NewAdapter(Config{
		APIKey:            "sk",
		Model:             "m",
		BaseURL:           ts.URL,
		UseCircuitBreaker: true,
		CircuitThreshold:  1,
		CircuitCooldown:   time.Minute,
	})
	_, err := a.Stream(context.Background(), llm.Request{})
	if errorsx.Reason(err) != errorsx.ReasonConnectFailed {
		t.Fatalf("expected connect_failed, got %v", err)
	}
	// Breaker is now open; the next attempt must fail without a request.
	_, err = a.Stream(context.Background(), llm.Request{})
	if errorsx.Reason(err) != errorsx.ReasonConnectFailed {
		t.Fatalf("expected circuit-open rejection, got %v", err)
	}
}
