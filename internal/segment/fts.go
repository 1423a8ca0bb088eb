package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// lexicalDoc is the document shape indexed into bleve: just the text
// field, scored by bleve's default BM25-style TF-IDF analyzer.
type lexicalDoc struct {
	Text string `json:"text"`
}

type lexicalIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

func lexicalIndexPath(tableDir string) string { return filepath.Join(tableDir, "fts.bleve") }

// buildLexicalIndex creates (or replaces) the bleve index for table from
// its current rows. Index creation is best-effort (spec §4.2): callers
// log and continue on error rather than failing the segment.
func buildLexicalIndex(tableDir string, rows []Row) (*lexicalIndex, error) {
	path := lexicalIndexPath(tableDir)
	_ = os.RemoveAll(path)

	mapping := bleve.NewIndexMapping()
	idx, err := bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}

	batch := idx.NewBatch()
	for _, r := range rows {
		if err := batch.Index(r.RowID, lexicalDoc{Text: r.Text}); err != nil {
			return nil, fmt.Errorf("index row %s: %w", r.RowID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("commit bleve batch: %w", err)
	}
	return &lexicalIndex{index: idx}, nil
}

func openLexicalIndex(tableDir string) (*lexicalIndex, error) {
	idx, err := bleve.Open(lexicalIndexPath(tableDir))
	if err != nil {
		return nil, err
	}
	return &lexicalIndex{index: idx}, nil
}

func (l *lexicalIndex) search(ctx context.Context, query string, limit int) ([]string, map[string]float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	result, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("bleve search: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	scores := make(map[string]float64, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
		scores[hit.ID] = hit.Score
	}
	return ids, scores, nil
}

func (l *lexicalIndex) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Close()
}

func (s *SQLiteStore) lexicalFor(ctx context.Context, table string) (*lexicalIndex, error) {
	s.idxMu.RLock()
	idx, ok := s.lexical[table]
	s.idxMu.RUnlock()
	if ok {
		return idx, nil
	}

	idx, err := openLexicalIndex(s.tableDir(table))
	if err != nil {
		return nil, err
	}
	s.idxMu.Lock()
	s.lexical[table] = idx
	s.idxMu.Unlock()
	return idx, nil
}

func (s *SQLiteStore) LexicalSearch(ctx context.Context, table, query string, limit int) ([]Hit, error) {
	idx, err := s.lexicalFor(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("no lexical index for %s: %w", table, err)
	}
	ids, scores, err := idx.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return s.hitsByID(ctx, table, ids, scores)
}

func (s *SQLiteStore) hitsByID(ctx context.Context, table string, ids []string, scores map[string]float64) ([]Hit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.Rows(ctx, table)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Row, len(rows))
	for _, r := range rows {
		byID[r.RowID] = r
	}
	hits := make([]Hit, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			hits = append(hits, Hit{Row: r, Score: scores[id]})
		}
	}
	return hits, nil
}
