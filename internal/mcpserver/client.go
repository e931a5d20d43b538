package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the configuration for connecting to the txbuddy API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // sent as X-API-Key
}

// Client is a plain HTTP client for the txbuddy API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			// analyze waits on the chain, the explorer and the LLM
			Timeout: 60 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// StartMonitoring asks the server to watch address.
func (c *Client) StartMonitoring(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/monitor", map[string]string{"address": address})
}

// StopMonitoring asks the server to stop watching address.
func (c *Client) StopMonitoring(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/stop", map[string]string{"address": address})
}

// GetStatus returns the monitoring session of address.
func (c *Client) GetStatus(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/status/"+url.PathEscape(address), nil)
}

// ListMonitored returns the active sessions.
func (c *Client) ListMonitored(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/addresses", nil)
}

// Analyze runs an on-demand analysis of txHash.
func (c *Client) Analyze(ctx context.Context, txHash string, userLevel int) (json.RawMessage, error) {
	body := map[string]any{
		"txHash":    txHash,
		"userLevel": userLevel,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/analyze", body)
}

// GetProgress returns the XP state of address.
func (c *Client) GetProgress(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/progress/"+url.PathEscape(address), nil)
}
