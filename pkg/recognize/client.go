// Package recognize provides the HTTP collaborators for the recognition and
// prediction services, the prediction-to-metadata mapper, and a best-effort
// asset attribute reader.
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jhapran/OCR-Form-Tools/pkg/orchestrate"
)

// Client talks to a form-recognition service. It implements
// orchestrate.Recognizer and orchestrate.Predictor.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL. The API key is sent
// as the Ocp-Apim-Subscription-Key header when non-empty.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type analyzeRequest struct {
	Source    string `json:"source"`
	RunForAll bool   `json:"runForAll,omitempty"`
}

// Recognize runs layout text recognition against one asset.
func (c *Client) Recognize(ctx context.Context, req orchestrate.RecognizeRequest) (*orchestrate.RecognitionResult, error) {
	raw, err := c.postJSON(ctx, "/formrecognizer/v2.1/layout/analyze", analyzeRequest{
		Source:    req.AssetPath,
		RunForAll: req.RunForAll,
	})
	if err != nil {
		return nil, fmt.Errorf("recognize %s: %w", req.AssetName, err)
	}

	var result orchestrate.RecognitionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("recognize %s: decode response: %w", req.AssetName, err)
	}
	result.Raw = raw
	return &result, nil
}

// Predict runs the auto-label prediction model against one asset.
func (c *Client) Predict(ctx context.Context, assetPath string) (*orchestrate.Prediction, error) {
	raw, err := c.postJSON(ctx, "/formrecognizer/v2.1/custom/analyze", analyzeRequest{
		Source: assetPath,
	})
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", assetPath, err)
	}

	var prediction orchestrate.Prediction
	if err := json.Unmarshal(raw, &prediction); err != nil {
		return nil, fmt.Errorf("predict %s: decode response: %w", assetPath, err)
	}
	prediction.Raw = raw
	return &prediction, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("service returned %d: %s", resp.StatusCode, excerpt(payload))
	}
	return payload, nil
}

func excerpt(body []byte) string {
	const limit = 256
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}
