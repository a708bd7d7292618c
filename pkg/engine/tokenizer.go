package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteTokenizer measures text with the llama.cpp server's /tokenize
// endpoint, so budgets are counted in the serving model's vocabulary
type RemoteTokenizer struct {
	endpoint string
	client   *http.Client
}

// NewRemoteTokenizer creates a tokenizer for the server at baseURL. An
// OpenAI-style "/v1" suffix is stripped.
func NewRemoteTokenizer(baseURL string) *RemoteTokenizer {
	base := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	return &RemoteTokenizer{
		endpoint: strings.TrimSuffix(base, "/") + "/tokenize",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenizeRequest struct {
	Content string `json:"content"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// Tokenize returns the token ids of text
func (t *RemoteTokenizer) Tokenize(ctx context.Context, text string) ([]int, error) {
	body, err := json.Marshal(tokenizeRequest{Content: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tokenize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: tokenize request failed: %w", ErrEngine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: tokenize returned %d: %s", ErrEngine, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out tokenizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: invalid tokenize response: %w", ErrEngine, err)
	}
	return out.Tokens, nil
}
