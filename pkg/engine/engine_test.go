package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harun/turbogenius/pkg/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"", false},
		{"openai", false},
		{"llama.cpp", false},
		{"gemini", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			eng, err := New(Config{Provider: tt.provider, APIKey: "test"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, eng)
		})
	}
}

func TestNewSummarizer(t *testing.T) {
	s, err := NewSummarizer(SummarizerConfig{Provider: "anthropic", APIKey: "test", Model: "claude-test"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicSummarizer{}, s)

	s, err = NewSummarizer(SummarizerConfig{APIKey: "test"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAISummarizer{}, s)

	_, err = NewSummarizer(SummarizerConfig{Provider: "anthropic"})
	assert.Error(t, err)

	_, err = NewSummarizer(SummarizerConfig{Provider: "cohere"})
	assert.Error(t, err)
}

func TestNewTokenizer(t *testing.T) {
	tok, err := NewTokenizer("", "")
	require.NoError(t, err)
	assert.IsType(t, prompt.ByteTokenizer{}, tok)

	tok, err = NewTokenizer("remote", "http://localhost:8080/v1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/tokenize", tok.(*RemoteTokenizer).endpoint)

	_, err = NewTokenizer("remote", "")
	assert.Error(t, err)

	_, err = NewTokenizer("tiktoken", "")
	assert.Error(t, err)
}

func TestRemoteTokenizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokenize", r.URL.Path)

		var req tokenizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		tokens := make([]int, len(req.Content))
		for i := range tokens {
			tokens[i] = i
		}
		_ = json.NewEncoder(w).Encode(tokenizeResponse{Tokens: tokens})
	}))
	defer srv.Close()

	tok := NewRemoteTokenizer(srv.URL + "/v1/")

	tokens, err := tok.Tokenize(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, tokens)
}

func TestRemoteTokenizer_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no model", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemoteTokenizer(srv.URL).Tokenize(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrEngine)
	assert.Contains(t, err.Error(), "503")
}
