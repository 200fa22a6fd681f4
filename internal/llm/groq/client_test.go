package groq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dwizi/wabot/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReplySendsHistoryAndModelOverride(t *testing.T) {
	var received chatCompletionRequest
	var receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		receivedAuth = req.Header.Get("Authorization")
		if req.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "<think>hmm</think> ¡Hola!"}},
			},
		})
	}))
	defer server.Close()

	client := New(Config{APIKey: "secret", BaseURL: server.URL, Model: "default-model", SystemPrompt: "Base prompt"}, testLogger())
	reply, err := client.Reply(context.Background(), llm.MessageInput{
		ChatID:       "573001",
		Text:         "hola",
		SystemPrompt: "Eres un chef.",
		Model:        "llama-3.1-8b-instant",
		History: []llm.Turn{
			{Role: "user", Content: "antes"},
			{Role: "assistant", Content: "respuesta"},
			{Role: "tool", Content: "ignored"},
		},
	})
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if reply != "¡Hola!" {
		t.Fatalf("expected sanitized reply, got %q", reply)
	}
	if receivedAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", receivedAuth)
	}
	if received.Model != "llama-3.1-8b-instant" {
		t.Fatalf("expected model override, got %s", received.Model)
	}
	if len(received.Messages) != 4 {
		t.Fatalf("expected system + 2 history + user, got %+v", received.Messages)
	}
	if received.Messages[0].Content != "Base prompt\n\nEres un chef." {
		t.Fatalf("unexpected system prompt %q", received.Messages[0].Content)
	}
	if received.Messages[3].Role != "user" || received.Messages[3].Content != "hola" {
		t.Fatalf("unexpected final message %+v", received.Messages[3])
	}
}

func TestReplyRetriesRateLimits(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, MaxRetries: 3}, testLogger())
	var waits []time.Duration
	client.sleep = func(_ context.Context, wait time.Duration) error {
		waits = append(waits, wait)
		return nil
	}
	reply, err := client.Reply(context.Background(), llm.MessageInput{Text: "hola"})
	if err != nil || reply != "ok" {
		t.Fatalf("expected success after retries, got %q err=%v", reply, err)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Fatalf("unexpected backoff schedule %v", waits)
	}
}

func TestReplyGivesUpWithRateLimited(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, MaxRetries: 3}, testLogger())
	client.sleep = func(context.Context, time.Duration) error { return nil }
	_, err := client.Reply(context.Background(), llm.MessageInput{Text: "hola"})
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
}

func TestReplyServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL}, testLogger())
	if _, err := client.Reply(context.Background(), llm.MessageInput{Text: "hola"}); !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestReplyRequiresAPIKeyForRemoteHosts(t *testing.T) {
	client := New(Config{BaseURL: "https://api.groq.com/openai/v1"}, testLogger())
	if _, err := client.Reply(context.Background(), llm.MessageInput{Text: "hola"}); !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable without key, got %v", err)
	}
}

func TestRetryBackoffCaps(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for attempt, expected := range want {
		if got := retryBackoff(attempt, time.Second, 8*time.Second); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, expected, got)
		}
	}
}
