package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSend(t *testing.T) {
	var got sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer re_test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("re_test", "Get The Job <proposals@gtj.example.com>", server.URL)
	err := client.Send(context.Background(), "client@example.com", "Your proposal", "<p>hello</p>")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if got.From != "Get The Job <proposals@gtj.example.com>" {
		t.Errorf("from = %q", got.From)
	}
	if len(got.To) != 1 || got.To[0] != "client@example.com" {
		t.Errorf("to = %v", got.To)
	}
	if got.Subject != "Your proposal" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.HTML != "<p>hello</p>" {
		t.Errorf("html = %q", got.HTML)
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid from address"}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("re_test", "bad-from", server.URL)
	if err := client.Send(context.Background(), "x@example.com", "s", "<p>b</p>"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestSend_MissingAPIKey(t *testing.T) {
	client := NewClient("", "from@example.com")
	if err := client.Send(context.Background(), "x@example.com", "s", "b"); err == nil {
		t.Fatal("expected error without api key")
	}
}
