package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
)

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(&config.OpenAIConfig{})
	assert.Error(t, err)
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, "joint hypermobility and skin fragility", req.Input)
		assert.Equal(t, 3, req.Dimensions)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer server.Close()

	client, err := NewClient(&config.OpenAIConfig{APIKey: "test-key", EmbeddingDims: 3, RateLimitRPM: -1}, WithBaseURL(server.URL))
	require.NoError(t, err)

	vec, err := client.Embed(t.Context(), "  joint hypermobility and skin fragility ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(&config.OpenAIConfig{APIKey: "bad", RateLimitRPM: -1}, WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.Embed(t.Context(), "notes")
	assert.ErrorIs(t, err, providers.ErrEmbeddingUnauthorized)
}

func TestEmbedMissingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(&config.OpenAIConfig{APIKey: "k", RateLimitRPM: -1}, WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.Embed(t.Context(), "notes")
	assert.Error(t, err)
}

func TestEmbedRejectsBlankText(t *testing.T) {
	client, err := NewClient(&config.OpenAIConfig{APIKey: "k", RateLimitRPM: -1})
	require.NoError(t, err)
	_, err = client.Embed(t.Context(), "   ")
	assert.Error(t, err)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, newLimiter(-1, 5))

	limiter := newLimiter(0, 0)
	require.NotNil(t, limiter)
	assert.Equal(t, 5, limiter.Burst())
	assert.InDelta(t, 1.0, float64(limiter.Limit()), 1e-9)

	limiter = newLimiter(120, 2)
	assert.Equal(t, 2, limiter.Burst())
	assert.InDelta(t, 2.0, float64(limiter.Limit()), 1e-9)
}
