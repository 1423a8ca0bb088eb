package embed

import "fmt"

// Backend selects which Embedder implementation New constructs.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendStatic Backend = "static"
)

// New constructs the configured Embedder. BackendStatic needs no cfg
// fields; BackendOllama uses cfg as-is (zero values get OllamaConfig's
// own defaults).
func New(backend Backend, cfg OllamaConfig) (Embedder, error) {
	switch backend {
	case BackendStatic, "":
		return NewStaticEmbedder(), nil
	case BackendOllama:
		return NewOllamaEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embed backend: %q", backend)
	}
}
