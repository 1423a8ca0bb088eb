// Package embed scores chunk text into the hybrid dense+late-interaction
// vectors stored alongside each row (spec §3 "embedding", "colbert",
// "colbert_scale"); the ingest pipeline depends only on the Embedder
// capability interface, never a concrete backend.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// MinBatchSize / MaxBatchSize bound EmbedBatch call sizes; callers
	// above MaxBatchSize must split the batch themselves.
	MinBatchSize = 1
	MaxBatchSize = 256

	// DefaultWarmTimeout / DefaultColdTimeout distinguish a loaded model
	// (fast) from one that needs to be paged back in (slow first call).
	DefaultWarmTimeout = 30 * time.Second
	DefaultColdTimeout = 90 * time.Second

	// colbertQuantizeScale is the int8 quantization range: each batch's
	// largest magnitude is mapped onto ±colbertQuantizeScale.
	colbertQuantizeScale = 127.0
)

// HybridVector is one row's embedding: a dense vector for coarse ranking
// plus a quantized late-interaction matrix for rerank (spec §3, §4.9).
type HybridVector struct {
	Dense   []float32
	ColBERT [][]int8
	Scale   float32
}

// Embedder is the capability interface the ingest and search pipelines
// depend on (spec §6); it is injected via constructor, never a global.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]HybridVector, error)
	Dimensions() int
	ModelID() string
	ModelRevision() string
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	mag := math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

func quantizeColBERT(rows [][]float32) ([][]int8, float32) {
	var maxAbs float32
	for _, row := range rows {
		for _, v := range row {
			if a := abs32(v); a > maxAbs {
				maxAbs = a
			}
		}
	}
	if maxAbs == 0 {
		maxAbs = 1
	}
	scale := maxAbs / colbertQuantizeScale

	out := make([][]int8, len(rows))
	for i, row := range rows {
		q := make([]int8, len(row))
		for j, v := range row {
			scaled := v / scale
			if scaled > colbertQuantizeScale {
				scaled = colbertQuantizeScale
			}
			if scaled < -colbertQuantizeScale {
				scaled = -colbertQuantizeScale
			}
			q[j] = int8(scaled)
		}
		out[i] = q
	}
	return out, scale
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
