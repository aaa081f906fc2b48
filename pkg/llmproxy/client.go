package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client is the orchestrator-initiated counterpart to Proxy: narrator and
// creator speak the source protocol directly to an LLM upstream, not
// through the creature-facing admission pipeline (spec.md §4.10, §4.11).
type Client struct {
	upstreamURL string
	apiKey      string
	http        *http.Client
}

// NewClient creates a Client targeting the source-protocol upstream.
func NewClient(upstreamURL, apiKey string) *Client {
	return &Client{upstreamURL: upstreamURL, apiKey: apiKey, http: &http.Client{}}
}

// Complete sends req and returns the parsed SourceResponse.
func (c *Client) Complete(ctx context.Context, req SourceRequest) (SourceResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return SourceResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.upstreamURL, bytes.NewReader(payload))
	if err != nil {
		return SourceResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SourceResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SourceResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SourceResponse{}, fmt.Errorf("llm upstream returned %d: %s", resp.StatusCode, string(body))
	}

	var out SourceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return SourceResponse{}, fmt.Errorf("unparsable llm response: %w", err)
	}
	return out, nil
}
