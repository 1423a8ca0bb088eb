package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

// StaticDimensions is the dense vector width produced by StaticEmbedder.
const StaticDimensions = 256

// staticColBERTRows is the number of late-interaction rows synthesized per
// text: one per retained token, capped to bound memory.
const staticColBERTRows = 32

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// StaticEmbedder is a dependency-free, deterministic Embedder: hashed
// token n-grams folded into a fixed-width vector. It never calls out to a
// model server, so it always satisfies ModelID/ModelRevision with fixed
// strings and is suitable for offline or test use (no external fixture
// required to exercise internal/ingest end to end).
type StaticEmbedder struct{}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder returns a StaticEmbedder.
func NewStaticEmbedder() *StaticEmbedder { return &StaticEmbedder{} }

func (e *StaticEmbedder) Dimensions() int       { return StaticDimensions }
func (e *StaticEmbedder) ModelID() string       { return "static-hash-v1" }
func (e *StaticEmbedder) ModelRevision() string { return "1" }

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]HybridVector, error) {
	out := make([]HybridVector, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *StaticEmbedder) embedOne(text string) HybridVector {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return HybridVector{Dense: make([]float32, StaticDimensions)}
	}

	tokens := tokenRegex.FindAllString(strings.ToLower(trimmed), -1)
	dense := make([]float32, StaticDimensions)
	for _, tok := range tokens {
		dense[hashInto(tok, StaticDimensions)] += 1
		for _, gram := range trigrams(tok) {
			dense[hashInto(gram, StaticDimensions)] += 0.5
		}
	}
	dense = normalize(dense)

	rows := tokens
	if len(rows) > staticColBERTRows {
		rows = rows[:staticColBERTRows]
	}
	colbertRows := make([][]float32, len(rows))
	for i, tok := range rows {
		row := make([]float32, StaticDimensions/8)
		for _, gram := range trigrams(tok) {
			row[hashInto(gram, len(row))] += 1
		}
		colbertRows[i] = normalize(row)
	}
	q, scale := quantizeColBERT(colbertRows)

	return HybridVector{Dense: dense, ColBERT: q, Scale: scale}
}

func trigrams(tok string) []string {
	const n = 3
	if len(tok) < n {
		return []string{tok}
	}
	out := make([]string, 0, len(tok)-n+1)
	for i := 0; i+n <= len(tok); i++ {
		out = append(out, tok[i:i+n])
	}
	return out
}

func hashInto(s string, width int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(width))
}
