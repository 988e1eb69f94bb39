// Package apiclient is a typed client for the classification HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/srv328/coffee-classification/internal/classifier"
	"github.com/srv328/coffee-classification/internal/rules"
	"github.com/srv328/coffee-classification/internal/service"
)

// Client is a client for the coffee classification API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

type classifyRequest struct {
	Characteristics service.RawInput `json:"characteristics"`
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ClassifyStrict calls the rule-matching endpoint.
func (c *Client) ClassifyStrict(ctx context.Context, in service.RawInput) (*rules.StrictResult, error) {
	var result rules.StrictResult
	if err := c.do(ctx, http.MethodPost, "/api/specialist/analyze-static", classifyRequest{in}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClassifyStatistical calls the partial-credit ranking endpoint.
func (c *Client) ClassifyStatistical(ctx context.Context, in service.RawInput) ([]rules.Score, error) {
	var result []rules.Score
	if err := c.do(ctx, http.MethodPost, "/api/specialist/analyze-statistical", classifyRequest{in}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ClassifyLearned calls the neural network endpoint.
func (c *Client) ClassifyLearned(ctx context.Context, in service.RawInput) (*service.LearnedResult, error) {
	var result service.LearnedResult
	if err := c.do(ctx, http.MethodPost, "/api/specialist/analyze-ml", classifyRequest{in}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ModelStatus retrieves the state of the served model.
func (c *Client) ModelStatus(ctx context.Context) (*classifier.Status, error) {
	var result classifier.Status
	if err := c.do(ctx, http.MethodGet, "/api/model/status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HealthCheck checks if the server is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": ...} from a response body, falling back to
// the raw text.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
