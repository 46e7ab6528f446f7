package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/r4ven-labs/ragpipe/internal/faults"
)

// BedrockEmbedder implements Embedder using the Bedrock runtime invoke API
// (Titan text embeddings). It is safe for concurrent use.
type BedrockEmbedder struct {
	// endpoint is the Bedrock runtime base URL
	// (e.g. "https://bedrock-runtime.us-east-1.amazonaws.com").
	endpoint string
	// apiKey is the Bearer token for the runtime endpoint.
	apiKey string
	// model is the embedding model identifier (e.g. "amazon.titan-embed-text-v2:0").
	model string
	// dimensions is the requested output vector length (0 = model default).
	dimensions int
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// BedrockConfig holds the settings for constructing a BedrockEmbedder.
type BedrockConfig struct {
	// Endpoint is the Bedrock runtime base URL.
	Endpoint string
	// APIKey is the Bearer token for the runtime endpoint.
	APIKey string
	// Model is the embedding model identifier.
	Model string
	// Dimensions is the requested vector length (0 = model default).
	Dimensions int
}

// NewBedrockEmbedder constructs a BedrockEmbedder from the given config.
func NewBedrockEmbedder(cfg *BedrockConfig) *BedrockEmbedder {
	return &BedrockEmbedder{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// bedrockEmbedRequest is the JSON body sent to the model invoke endpoint.
type bedrockEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// bedrockEmbedResponse is the JSON body returned from the invoke endpoint.
type bedrockEmbedResponse struct {
	Embedding           []float64 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
	Message             string    `json:"message,omitempty"`
}

// Embed converts one text into its embedding vector.
func (e *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body := bedrockEmbedRequest{InputText: text}
	if e.dimensions > 0 {
		body.Dimensions = e.dimensions
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bedrock embedder: marshal request: %w", err)
	}

	url := e.endpoint + "/model/" + e.model + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("bedrock embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bedrock embedder: %w: request failed: %w", faults.ErrModelInvocation, err)
	}
	defer resp.Body.Close()

	var result bedrockEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("bedrock embedder: %w: decode response: %w", faults.ErrMalformedResponse, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("bedrock embedder: %w: HTTP 429", faults.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Message != "" {
			msg = result.Message
		}
		return nil, fmt.Errorf("bedrock embedder: %w: %s", faults.ErrModelInvocation, msg)
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("bedrock embedder: %w: response carries no embedding", faults.ErrMalformedResponse)
	}

	return result.Embedding, nil
}

// Model returns the embedding model identifier.
func (e *BedrockEmbedder) Model() string {
	return e.model
}
