package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "I need a human" {
			t.Errorf("text = %q", req["text"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"label": "escalate", "confidence": 0.91})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, time.Second)
	label, confidence, err := c.Classify(context.Background(), "I need a human")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if label != LabelEscalate || confidence != 0.91 {
		t.Errorf("verdict = %q, %v", label, confidence)
	}
}

func TestClassify_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, time.Second)
	_, _, err := c.Classify(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v", err)
	}
}
