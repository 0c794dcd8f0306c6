package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"time"
)

// EmbeddingProvider generates embeddings for text.
type EmbeddingProvider interface {
	Embed(text string) ([]float32, error)
	Dimensions() int
}

// HTTPEmbedding calls an OpenAI-compatible /embeddings endpoint (vLLM,
// llama.cpp server, LM Studio, hosted APIs all speak this shape).
type HTTPEmbedding struct {
	baseURL    string
	model      string
	client     *http.Client
	dimensions int
}

// NewHTTPEmbedding creates an embedding provider against baseURL (e.g.
// "http://localhost:1234/v1").
func NewHTTPEmbedding(baseURL, model string) *HTTPEmbedding {
	return &HTTPEmbedding{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		dimensions: 1536, // Updated on first call.
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed requests an embedding for the given text.
func (e *HTTPEmbedding) Embed(text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: text, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := e.client.Post(e.baseURL+"/embeddings", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error: %s - %s", resp.Status, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	embedding := embResp.Data[0].Embedding
	e.dimensions = len(embedding)
	return embedding, nil
}

// Dimensions returns the embedding width reported by the last call.
func (e *HTTPEmbedding) Dimensions() int { return e.dimensions }

// HashEmbedding is a deterministic, dependency-free provider based on token
// hashing. It has no semantic understanding; it exists so the semantic index
// can run in tests and offline setups without a model server.
type HashEmbedding struct {
	dims int
}

// NewHashEmbedding creates a hash-based provider with the given width.
func NewHashEmbedding(dims int) *HashEmbedding {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedding{dims: dims}
}

// Embed maps each token (split on spaces, tabs, newlines and commas) to a
// bucket and normalizes the resulting count vector.
func (h *HashEmbedding) Embed(text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	start := -1
	for i := 0; i <= len(text); i++ {
		atEnd := i == len(text)
		var c byte
		if !atEnd {
			c = text[i]
		}
		if atEnd || c == ' ' || c == '\t' || c == '\n' || c == ',' {
			if start >= 0 {
				hash := fnv.New32a()
				hash.Write([]byte(text[start:i]))
				vec[int(hash.Sum32())%h.dims]++
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Dimensions returns the configured embedding width.
func (h *HashEmbedding) Dimensions() int { return h.dims }
