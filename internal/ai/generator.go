// Package ai wraps the external text-generation service. Retrieval, prompt
// templates, and model choice all live behind that service; the engine only
// hands over the user's message plus conversation history and gets text
// back, or an error it converts to a safe apology.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/awaa-health/go-counsel-backend/internal/domain"
)

// Generator produces a reply for a user message given prior conversation
// history. Implementations must not panic; errors are expected and handled
// by the caller.
type Generator interface {
	Generate(ctx context.Context, message, history string) (string, error)
}

// RenderHistory flattens the message log into the "from: content" lines the
// generation service expects, oldest first.
func RenderHistory(msgs []domain.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.From)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// HTTPGenerator calls a generation endpoint accepting
// {"message": ..., "history": ...} and returning {"reply": ...}.
type HTTPGenerator struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPGenerator creates a generator client. The token, when non-empty,
// is sent as a bearer credential.
func NewHTTPGenerator(baseURL, token string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPGenerator{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Message string `json:"message"`
	History string `json:"history,omitempty"`
}

type generateResponse struct {
	Reply string `json:"reply"`
}

// Generate performs one blocking generation round trip.
func (g *HTTPGenerator) Generate(ctx context.Context, message, history string) (string, error) {
	body, err := json.Marshal(generateRequest{Message: message, History: history})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generator returned %d: %s", resp.StatusCode, raw)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Reply) == "" {
		return "", fmt.Errorf("generator returned an empty reply")
	}
	return out.Reply, nil
}
