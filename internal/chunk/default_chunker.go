package chunk

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// anchorMaxLines bounds the synthesized per-file summary row.
	anchorMaxLines = 24
	// fallbackWindowLines / fallbackOverlapLines govern line-based
	// chunking, used both as the sole strategy for unrecognized
	// languages and as the recovery path when a grammar fails to parse.
	fallbackWindowLines  = 80
	fallbackOverlapLines = 10
	contextWindowLines   = 2
)

// DefaultChunker is the built-in Chunker: tree-sitter-backed symbol
// extraction for recognized languages, line-window chunking otherwise.
type DefaultChunker struct {
	registry *languageRegistry
}

// NewDefaultChunker returns a Chunker using the built-in language registry.
func NewDefaultChunker() *DefaultChunker {
	return &DefaultChunker{registry: defaultLanguageRegistry}
}

func (c *DefaultChunker) Chunk(ctx context.Context, pathKey string, contents []byte) ([]Record, error) {
	if len(contents) == 0 {
		return nil, nil
	}
	fileHash := hashHex(contents)
	lines := splitLines(contents)

	records := []Record{anchorRecord(pathKey, fileHash, lines)}

	cfg, ok := c.registry.forPath(pathKey)
	if ok {
		nodes, err := parseSymbols(ctx, cfg, contents)
		if err == nil && len(nodes) > 0 {
			for i, n := range nodes {
				text := string(contents[n.startByte:n.endByte])
				records = append(records, Record{
					PathKey:        pathKey,
					Ordinal:        i + 1,
					FileHash:       fileHash,
					ChunkHash:      hashHex([]byte(text)),
					ChunkerVersion: ChunkerVersion,
					Kind:           KindChunk,
					Text:           text,
					StartLine:      n.startLine,
					EndLine:        n.endLine,
					ChunkType:      n.chunkType,
					ContextPrev:    contextBefore(lines, n.startLine),
					ContextNext:    contextAfter(lines, n.endLine),
				})
			}
			return records, nil
		}
	}

	// Unsupported language, or the grammar failed to parse this file:
	// fall back to fixed line windows.
	for i, win := range lineWindows(lines, fallbackWindowLines, fallbackOverlapLines) {
		text := strings.Join(lines[win.start-1:win.end], "\n")
		records = append(records, Record{
			PathKey:        pathKey,
			Ordinal:        i + 1,
			FileHash:       fileHash,
			ChunkHash:      hashHex([]byte(text)),
			ChunkerVersion: ChunkerVersion,
			Kind:           KindChunk,
			Text:           text,
			StartLine:      win.start,
			EndLine:        win.end,
			ChunkType:      ChunkTypeBlock,
			ContextPrev:    contextBefore(lines, win.start),
			ContextNext:    contextAfter(lines, win.end),
		})
	}
	return records, nil
}

func anchorRecord(pathKey, fileHash string, lines []string) Record {
	n := len(lines)
	if n > anchorMaxLines {
		n = anchorMaxLines
	}
	text := strings.Join(lines[:n], "\n")
	return Record{
		PathKey:        pathKey,
		Ordinal:        0,
		FileHash:       fileHash,
		ChunkHash:      hashHex([]byte(text)),
		ChunkerVersion: ChunkerVersion,
		Kind:           KindAnchor,
		Text:           text,
		StartLine:      1,
		EndLine:        n,
	}
}

type window struct{ start, end int } // 1-indexed, inclusive

func lineWindows(lines []string, size, overlap int) []window {
	if len(lines) == 0 {
		return nil
	}
	if size <= overlap {
		overlap = 0
	}
	var out []window
	start := 1
	for start <= len(lines) {
		end := start + size - 1
		if end > len(lines) {
			end = len(lines)
		}
		out = append(out, window{start: start, end: end})
		if end == len(lines) {
			break
		}
		start = end - overlap + 1
	}
	return out
}

func contextBefore(lines []string, startLine int) string {
	from := startLine - 1 - contextWindowLines
	to := startLine - 1
	if from < 1 {
		from = 1
	}
	if to < from {
		return ""
	}
	return strings.Join(lines[from-1:to], "\n")
}

func contextAfter(lines []string, endLine int) string {
	from := endLine + 1
	to := endLine + contextWindowLines
	if to > len(lines) {
		to = len(lines)
	}
	if to < from {
		return ""
	}
	return strings.Join(lines[from-1:to], "\n")
}

func splitLines(contents []byte) []string {
	normalized := bytes.ReplaceAll(contents, []byte("\r\n"), []byte("\n"))
	return strings.Split(string(normalized), "\n")
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
