package segment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// connCacheSize bounds the process-local cache of open table connections
// (Design Notes §9 "a single long-lived map" shared cache).
const connCacheSize = 64

// SQLiteStore is the default Store: one sqlite database file per segment
// table, plus a sealed bleve lexical index and an in-memory hnsw vector
// index rebuilt from a persisted snapshot on demand.
type SQLiteStore struct {
	baseDir string

	mu    sync.Mutex
	conns *lru.Cache[string, *sql.DB]

	idxMu   sync.RWMutex
	lexical map[string]*lexicalIndex
	vector  map[string]*vectorIndex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if absent) the segment store rooted at
// baseDir (typically <store_dir>/segments).
func NewSQLiteStore(baseDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}
	cache, err := lru.NewWithEvict[string, *sql.DB](connCacheSize, func(_ string, db *sql.DB) {
		_ = db.Close()
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{
		baseDir: baseDir,
		conns:   cache,
		lexical: make(map[string]*lexicalIndex),
		vector:  make(map[string]*vectorIndex),
	}, nil
}

func (s *SQLiteStore) tableDir(table string) string { return filepath.Join(s.baseDir, table) }
func (s *SQLiteStore) dbPath(table string) string   { return filepath.Join(s.tableDir(table), "rows.db") }

const createTableSQL = `
CREATE TABLE IF NOT EXISTS rows (
	row_id          TEXT PRIMARY KEY,
	path_key        TEXT NOT NULL,
	path_key_ci     TEXT NOT NULL,
	ordinal         INTEGER NOT NULL,
	file_hash       TEXT NOT NULL,
	chunk_hash      TEXT NOT NULL,
	chunker_version INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	text            TEXT NOT NULL,
	start_line      INTEGER NOT NULL,
	end_line        INTEGER NOT NULL,
	chunk_type      TEXT NOT NULL,
	context_prev    TEXT NOT NULL,
	context_next    TEXT NOT NULL,
	embedding       BLOB,
	colbert         BLOB,
	colbert_scale   REAL
);
CREATE INDEX IF NOT EXISTS rows_path_key ON rows(path_key);
`

func (s *SQLiteStore) open(table string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.conns.Get(table); ok {
		return db, nil
	}

	if err := os.MkdirAll(s.tableDir(table), 0o755); err != nil {
		return nil, fmt.Errorf("create table dir: %w", err)
	}
	db, err := sql.Open(driverName, s.dbPath(table))
	if err != nil {
		return nil, fmt.Errorf("open segment table %s: %w", table, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL on %s: %w", table, err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema for %s: %w", table, err)
	}
	s.conns.Add(table, db)
	return db, nil
}

func (s *SQLiteStore) InsertBatch(ctx context.Context, table string, rows []Row) error {
	return s.AppendBatch(ctx, table, rows)
}

func (s *SQLiteStore) AppendBatch(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	db, err := s.open(table)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO rows
		(row_id, path_key, path_key_ci, ordinal, file_hash, chunk_hash,
		 chunker_version, kind, text, start_line, end_line, chunk_type,
		 context_prev, context_next, embedding, colbert, colbert_scale)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		embBlob, err := encodeFloat32s(r.Embedding)
		if err != nil {
			return err
		}
		colBlob, err := encodeColBERT(r.ColBERT)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.RowID, r.PathKey, r.PathKeyCI, r.Ordinal, r.FileHash, r.ChunkHash,
			r.ChunkerVersion, r.Kind, r.Text, r.StartLine, r.EndLine, r.ChunkType,
			r.ContextPrev, r.ContextNext, embBlob, colBlob, r.ColBERTScale,
		); err != nil {
			return fmt.Errorf("insert row %s: %w", r.RowID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListTables(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var tables []string
	for _, e := range entries {
		if e.IsDir() {
			tables = append(tables, e.Name())
		}
	}
	sort.Strings(tables)
	return tables, nil
}

func (s *SQLiteStore) DropTable(ctx context.Context, table string) error {
	s.mu.Lock()
	if db, ok := s.conns.Get(table); ok {
		db.Close()
		s.conns.Remove(table)
	}
	s.mu.Unlock()

	s.idxMu.Lock()
	delete(s.lexical, table)
	delete(s.vector, table)
	s.idxMu.Unlock()

	if err := os.RemoveAll(s.tableDir(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

func (s *SQLiteStore) Rows(ctx context.Context, table string) ([]Row, error) {
	db, err := s.open(table)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT row_id, path_key, path_key_ci, ordinal, file_hash, chunk_hash,
		       chunker_version, kind, text, start_line, end_line, chunk_type,
		       context_prev, context_next, embedding, colbert, colbert_scale
		FROM rows ORDER BY row_id`)
	if err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var embBlob, colBlob []byte
		if err := rows.Scan(&r.RowID, &r.PathKey, &r.PathKeyCI, &r.Ordinal, &r.FileHash,
			&r.ChunkHash, &r.ChunkerVersion, &r.Kind, &r.Text, &r.StartLine, &r.EndLine,
			&r.ChunkType, &r.ContextPrev, &r.ContextNext, &embBlob, &colBlob, &r.ColBERTScale); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Embedding, err = decodeFloat32s(embBlob)
		if err != nil {
			return nil, err
		}
		r.ColBERT, err = decodeColBERT(colBlob)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Metadata(ctx context.Context, table string) (Info, error) {
	rows, err := s.Rows(ctx, table)
	if err != nil {
		return Info{}, err
	}

	// Checkpoint and truncate the WAL so rows.db alone reflects every
	// committed row; a concurrent reader's open connection otherwise keeps
	// -wal/-shm sidecars mutating underneath this hash (spec §4.2: the
	// recorded (size_bytes, sha256) must match on-disk reality on every
	// publish/open, not just at the instant nothing else has the table
	// open).
	if db, err := s.open(table); err == nil {
		_, _ = db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`)
	}

	dir := s.tableDir(table)
	var files []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, "-wal") || strings.HasSuffix(path, "-shm") || strings.HasSuffix(path, "-journal") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return Info{}, fmt.Errorf("walk segment dir: %w", err)
	}
	sort.Strings(files)

	h := sha256.New()
	var sizeBytes int64
	for _, f := range files {
		rel, _ := filepath.Rel(dir, f)
		data, err := os.ReadFile(f)
		if err != nil {
			return Info{}, fmt.Errorf("read %s: %w", f, err)
		}
		sizeBytes += int64(len(data))
		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write([]byte{0})
		h.Write(data)
	}

	return Info{Rows: int64(len(rows)), SizeBytes: sizeBytes, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns.Purge()
	return nil
}

func encodeFloat32s(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v []float32
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return v, nil
}

func encodeColBERT(v [][]int8) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode colbert: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeColBERT(b []byte) ([][]int8, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v [][]int8
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode colbert: %w", err)
	}
	return v, nil
}

func tableSlug(table string) string { return strings.ReplaceAll(table, "/", "_") }
