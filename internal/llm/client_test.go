package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestIsRateLimited(t *testing.T) {
	if !isRateLimited(errors.New("POST /chat/completions: 429 Too Many Requests")) {
		t.Error("429 text should count as rate limited")
	}
	if isRateLimited(errors.New("500 Internal Server Error")) {
		t.Error("500 is not rate limiting")
	}
}

func TestChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"package main"}}]}`))
	}))
	defer srv.Close()

	c := NewClient("local", srv.URL+"/v1/", "", "m")
	resp, err := c.ChatCompletion(context.Background(), []Message{UserMessage("hi")})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if resp.Message.Role != RoleAssistant || resp.Message.Content != "package main" {
		t.Errorf("got %+v", resp.Message)
	}
}

func TestChatCompletionServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewClient("local", srv.URL+"/v1/", "", "m")
	if _, err := c.ChatCompletion(context.Background(), []Message{UserMessage("hi")}); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}
