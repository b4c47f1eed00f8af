package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to an Ollama-compatible embedding endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL, model string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// Embed generates a vector embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := embedRequest{
		Model:  c.model,
		Prompt: text,
	}

	var resp embedResponse
	if err := c.makeRequest(ctx, "POST", "/api/embeddings", req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned an empty vector")
	}

	return resp.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts. The endpoint only
// supports one prompt per call, so this loops; callers batch sparingly.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch item %d: %w", len(vectors), err)
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

// Ping checks that the embedding endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedder unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("embedder returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, result interface{}) error {
	url := c.baseURL + endpoint

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)

		c.logger.WithFields(logrus.Fields{
			"method":       method,
			"url":          url,
			"payload_size": len(jsonData),
		}).Debug("Embedding API request")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code":   resp.StatusCode,
		"method":        method,
		"url":           url,
		"response_size": len(responseBody),
	}).Debug("Embedding API response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	if result != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
