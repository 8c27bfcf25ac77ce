// Package remote posts prediction requests to an external scoring service
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"biomark/domain/subtype"
	"biomark/ports"
)

// Name identifies events produced by this predictor
const Name = "remote"

// Config holds the remote endpoint settings
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client implements ports.Predictor over HTTP
type Client struct {
	url    string
	client *http.Client
}

var _ ports.Predictor = (*Client)(nil)

// New creates a client. An empty URL is a configuration error.
func New(config Config) (*Client, error) {
	url := strings.TrimSpace(config.URL)
	if url == "" {
		return nil, fmt.Errorf("missing prediction API URL")
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{url: url, client: &http.Client{Timeout: timeout}}, nil
}

// Name implements ports.Predictor
func (c *Client) Name() string { return Name }

type requestBody struct {
	Image        string `json:"image"`
	Biomarker    string `json:"biomarker,omitempty"`
	Intensity    string `json:"intensity,omitempty"`
	StainingType string `json:"staining_type,omitempty"`
}

type responseBody struct {
	Probabilities map[string]float64 `json:"probabilities"`
}

// Predict implements ports.Predictor. The first reading in panel order is
// sent as the primary biomarker.
func (c *Client) Predict(ctx context.Context, req ports.PredictionRequest) (subtype.Probabilities, error) {
	body := requestBody{Image: base64.StdEncoding.EncodeToString(req.ImageData)}
	if sorted := req.Biomarkers.Sorted(); len(sorted) > 0 {
		body.Biomarker = string(sorted[0].Marker)
		body.Intensity = sorted[0].Intensity.Name()
		body.StainingType = string(sorted[0].Pattern)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("prediction API status %d: %s", resp.StatusCode, strings.TrimSpace(string(respRaw)))
	}

	var parsed responseBody
	if err := json.Unmarshal(respRaw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	probs := make(subtype.Probabilities, len(parsed.Probabilities))
	for k, v := range parsed.Probabilities {
		label, err := subtype.ParseLabel(k)
		if err != nil {
			return nil, err
		}
		probs[label] = v
	}
	if err := probs.Validate(); err != nil {
		return nil, err
	}
	return probs, nil
}
