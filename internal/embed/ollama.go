package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultOllamaHost / DefaultOllamaModel are the out-of-the-box backend
// used when no override is configured.
const (
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultOllamaModel     = "qwen3-embedding:0.6b"
	ollamaConnectTimeout   = 5 * time.Second
	ollamaPoolSize         = 4
)

// OllamaConfig configures OllamaEmbedder.
type OllamaConfig struct {
	Host       string
	Model      string
	Revision   string
	Dimensions int
	Timeout    time.Duration
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint for
// dense vectors, then derives a ColBERT-style late-interaction matrix by
// splitting the dense vector into fixed-width sub-blocks (Ollama has no
// native multi-vector output, so this is the best available proxy without
// running a second model).
type OllamaEmbedder struct {
	client *http.Client
	cfg    OllamaConfig

	mu   sync.RWMutex
	dims int
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder returns an OllamaEmbedder with cfg defaults applied.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWarmTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		IdleConnTimeout:     10 * time.Second,
	}
	return &OllamaEmbedder{
		client: &http.Client{Transport: transport},
		cfg:    cfg,
		dims:   cfg.Dimensions,
	}
}

func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

func (e *OllamaEmbedder) ModelID() string       { return e.cfg.Model }
func (e *OllamaEmbedder) ModelRevision() string { return e.cfg.Revision }

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]HybridVector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("embed batch of %d exceeds max %d", len(texts), MaxBatchSize)
	}

	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	url := e.cfg.Host + "/api/embed"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call ollama embed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, string(body))
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(out.Embeddings))
	}

	e.mu.Lock()
	if e.dims == 0 && len(out.Embeddings) > 0 {
		e.dims = len(out.Embeddings[0])
	}
	e.mu.Unlock()

	return toHybridVectors(out.Embeddings), nil
}

func toHybridVectors(raw [][]float64) []HybridVector {
	out := make([]HybridVector, len(raw))
	for i, vec64 := range raw {
		dense := make([]float32, len(vec64))
		for j, v := range vec64 {
			dense[j] = float32(v)
		}
		dense = normalize(dense)
		q, scale := quantizeColBERT(denseToRows(dense))
		out[i] = HybridVector{Dense: dense, ColBERT: q, Scale: scale}
	}
	return out
}

const colbertBlockWidth = 32

func denseToRows(dense []float32) [][]float32 {
	if len(dense) == 0 {
		return nil
	}
	var rows [][]float32
	for i := 0; i < len(dense); i += colbertBlockWidth {
		end := i + colbertBlockWidth
		if end > len(dense) {
			end = len(dense)
		}
		rows = append(rows, dense[i:end])
	}
	return rows
}
