// Package intent wraps the external intent-classification model behind a
// small interface. The engine only needs the predicted label and its
// confidence; what serves the model is a deployment detail.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Label values the engine reacts to. The model may emit others (greeting,
// feedback, goodbye); only Escalate changes control flow.
const LabelEscalate = "escalate"

// Classifier predicts an intent label with a confidence in [0,1].
type Classifier interface {
	Classify(ctx context.Context, text string) (label string, confidence float64, err error)
}

// HTTPClassifier calls a model-serving endpoint that accepts
// {"text": ...} and returns {"label": ..., "confidence": ...}.
type HTTPClassifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClassifier creates a classifier client for the given base URL.
func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify sends the text to the model endpoint.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (string, float64, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("intent classifier returned %d: %s", resp.StatusCode, raw)
	}
	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, err
	}
	return out.Label, out.Confidence, nil
}
