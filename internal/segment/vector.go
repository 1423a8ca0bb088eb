package segment

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

type vectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[string]
	ids    []string
}

func vectorIndexPath(tableDir string) string { return filepath.Join(tableDir, "vectors.gob") }

// buildVectorIndex builds an in-memory hnsw graph over rows' embeddings
// and persists a gob snapshot so it can be reloaded without re-embedding.
// Only built once a segment exceeds vectorIndexThreshold rows (spec §4.2).
func buildVectorIndex(tableDir string, rows []Row) (*vectorIndex, error) {
	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if len(r.Embedding) == 0 {
			continue
		}
		graph.Add(hnsw.MakeNode(r.RowID, r.Embedding))
		ids = append(ids, r.RowID)
	}

	vi := &vectorIndex{graph: graph, ids: ids}
	if err := vi.persist(tableDir, rows); err != nil {
		return nil, err
	}
	return vi, nil
}

type vectorSnapshot struct {
	IDs        []string
	Embeddings [][]float32
}

func (vi *vectorIndex) persist(tableDir string, rows []Row) error {
	byID := make(map[string][]float32, len(rows))
	for _, r := range rows {
		if len(r.Embedding) > 0 {
			byID[r.RowID] = r.Embedding
		}
	}
	snap := vectorSnapshot{IDs: make([]string, 0, len(byID))}
	for id, vec := range byID {
		snap.IDs = append(snap.IDs, id)
		snap.Embeddings = append(snap.Embeddings, vec)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode vector snapshot: %w", err)
	}
	if err := os.WriteFile(vectorIndexPath(tableDir), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write vector snapshot: %w", err)
	}
	return nil
}

func loadVectorIndex(tableDir string) (*vectorIndex, error) {
	data, err := os.ReadFile(vectorIndexPath(tableDir))
	if err != nil {
		return nil, err
	}
	var snap vectorSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode vector snapshot: %w", err)
	}

	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	for i, id := range snap.IDs {
		graph.Add(hnsw.MakeNode(id, snap.Embeddings[i]))
	}
	return &vectorIndex{graph: graph, ids: snap.IDs}, nil
}

func (vi *vectorIndex) search(query []float32, k int) (map[string]float64, []string) {
	vi.mu.RLock()
	defer vi.mu.RUnlock()

	if vi.graph.Len() == 0 {
		return nil, nil
	}
	nodes := vi.graph.Search(query, k)
	ids := make([]string, 0, len(nodes))
	scores := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		dist := vi.graph.Distance(query, n.Value)
		scores[n.Key] = 1 - float64(dist) // cosine distance -> similarity
		ids = append(ids, n.Key)
	}
	return scores, ids
}

func (s *SQLiteStore) vectorFor(table string) (*vectorIndex, error) {
	s.idxMu.RLock()
	vi, ok := s.vector[table]
	s.idxMu.RUnlock()
	if ok {
		return vi, nil
	}

	vi, err := loadVectorIndex(s.tableDir(table))
	if err != nil {
		return nil, err
	}
	s.idxMu.Lock()
	s.vector[table] = vi
	s.idxMu.Unlock()
	return vi, nil
}

func (s *SQLiteStore) VectorSearch(ctx context.Context, table string, query []float32, limit int) ([]Hit, error) {
	vi, err := s.vectorFor(table)
	if err != nil {
		if os.IsNotExist(err) {
			// Segments under vectorIndexThreshold never get an ANN index
			// (spec §4.2: best-effort, threshold-gated). That is not a
			// failure, so fall back to a brute-force cosine scan over the
			// segment's stored embeddings rather than erroring the query.
			return s.bruteForceVectorSearch(ctx, table, query, limit)
		}
		return nil, fmt.Errorf("no vector index for %s: %w", table, err)
	}
	scores, ids := vi.search(query, limit)
	return s.hitsByID(ctx, table, ids, scores)
}

// bruteForceVectorSearch cosine-scores every row's stored embedding against
// query directly, used when a segment is too small to carry an ANN index.
func (s *SQLiteStore) bruteForceVectorSearch(ctx context.Context, table string, query []float32, limit int) ([]Hit, error) {
	rows, err := s.Rows(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("scan rows for %s: %w", table, err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		if len(r.Embedding) == 0 {
			continue
		}
		hits = append(hits, Hit{Row: r, Score: cosineSimilarity(query, r.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// cosineSimilarity scores two equal-length dense vectors; mismatched or
// empty vectors score zero rather than erroring.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Seal builds the lexical index unconditionally and the vector index only
// once the segment exceeds vectorIndexThreshold rows (spec §4.2).
func (s *SQLiteStore) Seal(ctx context.Context, table string) error {
	rows, err := s.Rows(ctx, table)
	if err != nil {
		return err
	}

	lex, err := buildLexicalIndex(s.tableDir(table), rows)
	if err == nil {
		s.idxMu.Lock()
		if old, ok := s.lexical[table]; ok {
			old.close()
		}
		s.lexical[table] = lex
		s.idxMu.Unlock()
	}
	// Index creation is best-effort (spec §4.2): a failure here is the
	// caller's to log, never fatal to the segment itself.

	if int64(len(rows)) <= vectorIndexThreshold {
		return err
	}
	vec, verr := buildVectorIndex(s.tableDir(table), rows)
	if verr == nil {
		s.idxMu.Lock()
		s.vector[table] = vec
		s.idxMu.Unlock()
	}
	if err != nil {
		return err
	}
	return verr
}
