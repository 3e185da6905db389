package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func responseBody(text string) string {
	return `{"output":[{"type":"message","content":[{"type":"output_text","text":` +
		mustJSON(text) + `}]}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestComplete_ParsesOutputText(t *testing.T) {
	var gotReq responsesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(responseBody("Generated proposal text.")))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("test-key", server.URL)
	text, err := client.Complete(context.Background(), Request{
		Instructions:    "Write proposals.",
		Input:           "details",
		Temperature:     0.3,
		MaxOutputTokens: 900,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Generated proposal text." {
		t.Errorf("got %q", text)
	}
	if gotReq.Model != defaultModel {
		t.Errorf("expected default model, got %q", gotReq.Model)
	}
	if gotReq.MaxOutputTokens != 900 {
		t.Errorf("max output tokens not forwarded: %d", gotReq.MaxOutputTokens)
	}
}

func TestComplete_ConcatenatesMessageParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"output":[
			{"type":"reasoning","content":[{"type":"output_text","text":"ignored"}]},
			{"type":"message","content":[
				{"type":"output_text","text":"part one "},
				{"type":"output_text","text":"part two"}
			]}
		]}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("k", server.URL)
	text, err := client.Complete(context.Background(), Request{Input: "x"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "part one part two" {
		t.Errorf("got %q", text)
	}
}

func TestComplete_RetriesOnRateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(responseBody("eventually fine")))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("k", server.URL)
	text, err := client.Complete(context.Background(), Request{Input: "x"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "eventually fine" {
		t.Errorf("got %q", text)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestComplete_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClientWithBaseURL("k", server.URL)
	_, err := client.Complete(context.Background(), Request{Input: "x"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != maxRetries {
		t.Errorf("expected %d attempts, got %d", maxRetries, calls)
	}
}

func TestComplete_ServerErrorNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClientWithBaseURL("k", server.URL)
	if _, err := client.Complete(context.Background(), Request{Input: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("server errors must not be retried, got %d calls", calls)
	}
}

func TestComplete_EmptyOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"output":[]}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("k", server.URL)
	_, err := client.Complete(context.Background(), Request{Input: "x"})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestComplete_ProviderErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("k", server.URL)
	_, err := client.Complete(context.Background(), Request{Input: "x"})
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestComplete_MissingAPIKey(t *testing.T) {
	client := NewClient("")
	if _, err := client.Complete(context.Background(), Request{Input: "x"}); err == nil {
		t.Fatal("expected error without api key")
	}
}
