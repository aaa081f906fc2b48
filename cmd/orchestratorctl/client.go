package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/viper"
)

// apiClient is a thin REST client over the orchestrator's HTTP API. No
// third-party HTTP client library in the example pack targets a generic
// JSON REST API the way this CLI needs (the pack's own clients are
// protocol-specific SDKs - Slack, LLM providers); net/http plus
// encoding/json is the ordinary idiomatic choice here.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: serverURL(),
		http:    &http.Client{Timeout: viper.GetDuration("timeout")},
	}
}

// apiError is returned when the orchestrator responds with a non-2xx
// status; it carries the body so callers can surface the server's message.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("orchestrator returned %d: %s", e.status, e.body)
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.baseURL+path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &apiError{status: resp.StatusCode, body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) get(path string, out any) error        { return c.do(http.MethodGet, path, nil, out) }
func (c *apiClient) post(path string, body, out any) error { return c.do(http.MethodPost, path, body, out) }
func (c *apiClient) put(path string, body, out any) error  { return c.do(http.MethodPut, path, body, out) }
