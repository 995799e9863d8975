package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corpuslabs/corpusd/internal/domain"
)

const defaultOllamaTimeout = 2 * time.Minute

// OllamaConfig configures the local embedding backend.
type OllamaConfig struct {
	BaseURL string
	Model   string
	// Options carries model tuning knobs (mirostat, temperature and the
	// like). They are forwarded to the endpoint opaquely and do not affect
	// the embedding contract.
	Options map[string]any
	// Timeout bounds each embed call; the engine relies on this rather than
	// imposing its own deadline on backend I/O.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OllamaProvider is the local embedding backend: a JSON-over-HTTP client for
// an Ollama-compatible /api/embed endpoint.
type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
	options    map[string]any
}

type ollamaEmbedRequest struct {
	Model   string         `json:"model"`
	Input   []string       `json:"input"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewOllamaProvider creates the local backend from configuration.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, domain.NewDomainError(domain.ErrCodeConfiguration,
			fmt.Sprintf("invalid ollama base URL %q", cfg.BaseURL))
	}
	if cfg.Model == "" {
		return nil, domain.ErrMissingEmbeddingModel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultOllamaTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &OllamaProvider{
		httpClient: httpClient,
		baseURL:    baseURL,
		model:      cfg.Model,
		options:    cfg.Options,
	}, nil
}

// EmbedDocuments embeds texts in one call, preserving input order. The
// request honors ctx cancellation.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	payload, err := json.Marshal(ollamaEmbedRequest{
		Model:   p.model,
		Input:   texts,
		Options: p.options,
	})
	if err != nil {
		return nil, domain.NewEmbeddingError("failed to encode embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewEmbeddingError("failed to build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyBackendError("ollama embed call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, classifyBackendError("failed to read embed response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewEmbeddingError(
			fmt.Sprintf("ollama embed returned status %d: %s", resp.StatusCode, truncateBody(body)), nil)
	}

	var decoded ollamaEmbedResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, domain.NewEmbeddingError("failed to decode embed response", err)
	}
	if decoded.Error != "" {
		return nil, domain.NewEmbeddingError("ollama embed error: "+decoded.Error, nil)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, domain.NewEmbeddingError(
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(decoded.Embeddings), len(texts)), nil)
	}

	return decoded.Embeddings, nil
}

// EmbedQuery embeds a single query string.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
