package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
)

func TestRenderHistory(t *testing.T) {
	msgs := []domain.Message{
		{From: "u1", Content: "hello"},
		{From: "ai_bot", Content: "hi, how can I help?"},
	}
	got := RenderHistory(msgs)
	want := "u1: hello\nai_bot: hi, how can I help?"
	if got != want {
		t.Fatalf("RenderHistory = %q, want %q", got, want)
	}
	if RenderHistory(nil) != "" {
		t.Fatalf("empty history should render empty")
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth = %q", got)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["message"] != "what now?" || req["history"] != "u1: hello" {
			t.Errorf("request = %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "Here is an answer."})
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, "secret", time.Second)
	reply, err := g.Generate(context.Background(), "what now?", "u1: hello")
	if err != nil || reply != "Here is an answer." {
		t.Fatalf("Generate = %q, %v", reply, err)
	}
}

func TestGenerate_EmptyReplyIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "   "})
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, "", time.Second)
	if _, err := g.Generate(context.Background(), "hi", ""); err == nil {
		t.Fatalf("blank reply should be an error")
	}
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, "", time.Second)
	if _, err := g.Generate(context.Background(), "hi", ""); err == nil {
		t.Fatalf("5xx should be an error")
	}
}
