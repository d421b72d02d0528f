package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient is a generic structured-output client for LLM backends that
// accept a JSON body of {system_prompt, user_content, temperature} and
// return the generated text in a JSON field. The response schema is
// carried in SystemPrompt's instructions rather than a native
// schema-constrained API, so a schema-violating reply surfaces as a JSON
// parse failure in the caller.
type HTTPClient struct {
	Endpoint   string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// NewHTTPClient returns an HTTPClient with a 30s default timeout.
func NewHTTPClient(endpoint, apiKey, model string) *HTTPClient {
	return &HTTPClient{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type httpRequest struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
	UserContent  string  `json:"user_content"`
	Temperature  float64 `json:"temperature"`
}

type httpResponse struct {
	Text string `json:"text"`
}

// Generate implements Client over a plain JSON HTTP POST, with
// temperature pinned to 0 so retries see identical output.
func (c *HTTPClient) Generate(ctx context.Context, systemPrompt, userContent string) (string, error) {
	body, err := json.Marshal(httpRequest{
		Model:        c.Model,
		SystemPrompt: systemPrompt,
		UserContent:  userContent,
		Temperature:  0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call llm backend: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm backend returned %d: %s", resp.StatusCode, string(raw))
	}

	var out httpResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unmarshal llm response envelope: %w", err)
	}
	return out.Text, nil
}
