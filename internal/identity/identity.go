// Package identity computes the content-addressed fingerprints, path keys,
// and the store id that names a repository's on-disk index
// (spec §3 "Store", "Canonical root", "Fingerprints").
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// maxSymlinkDepth bounds symlink resolution in internal/fswalk's
// CanonicalRoot and ResolveCandidate (spec §3, §4.7).
const maxSymlinkDepth = 32

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and collapses runs of non-alphanumeric characters to a
// single hyphen, trimming leading/trailing hyphens.
func Slug(s string) string {
	s = strings.ToLower(s)
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// hashHex returns the lowercase hex SHA-256 of v, truncated to n characters.
func hashHex(v []byte, n int) string {
	sum := sha256.Sum256(v)
	h := hex.EncodeToString(sum[:])
	if n > 0 && n < len(h) {
		return h[:n]
	}
	return h
}

// StoreID derives the per-repository store id:
//
//	slug(repoOriginOrDir) + hash(canonicalRoot)[0:12] + hash(configFP)[0:12]
//
// The store id is deliberately independent of ignore-pattern content:
// ignore changes produce a new snapshot, never a new store.
func StoreID(repoOriginOrDir, canonicalRoot, configFingerprint string) string {
	rootHash := hashHex([]byte(canonicalRoot), 12)
	cfgHash := hashHex([]byte(configFingerprint), 12)
	return fmt.Sprintf("%s-%s-%s", Slug(repoOriginOrDir), rootHash, cfgHash)
}

// fingerprint hashes a versioned JSON envelope over v, per spec §3
// "Fingerprints ... SHA-256 over a versioned JSON input".
func fingerprint(version int, v any) (string, error) {
	envelope := struct {
		Version int `json:"version"`
		Input   any `json:"input"`
	}{Version: version, Input: v}

	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ConfigFingerprintInput covers model ids+revisions, embedding dims,
// chunker limits, ingest caps, and a hash of the grammar download list.
type ConfigFingerprintInput struct {
	EmbedModelID        string   `json:"embed_model_id"`
	EmbedModelRevision   string   `json:"embed_model_revision"`
	EmbedDimensions      int      `json:"embed_dimensions"`
	ChunkerVersion       string   `json:"chunker_version"`
	ChunkerMaxTokens     int      `json:"chunker_max_tokens"`
	ChunkerOverlapTokens int      `json:"chunker_overlap_tokens"`
	IngestMaxFileBytes   int64    `json:"ingest_max_file_bytes"`
	IngestMaxFiles       int      `json:"ingest_max_files"`
	GrammarList          []string `json:"grammar_list"`
}

// ConfigFingerprint computes config_fp.
func ConfigFingerprint(in ConfigFingerprintInput) (string, error) {
	sort.Strings(in.GrammarList)
	grammarHash := hashHex([]byte(strings.Join(in.GrammarList, "\x00")), 0)
	in2 := in
	in2.GrammarList = []string{grammarHash}
	return fingerprint(1, in2)
}

// IgnoreFileEntry is one ignore file's path-key and raw bytes.
type IgnoreFileEntry struct {
	PathKey string
	Bytes   []byte
}

// IgnoreFingerprint computes ignore_fp over every ignore file's path-key
// and bytes, in sorted order (spec §3).
func IgnoreFingerprint(entries []IgnoreFileEntry) (string, error) {
	sorted := make([]IgnoreFileEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PathKey < sorted[j].PathKey })

	type jsonEntry struct {
		PathKey string `json:"path_key"`
		Hash    string `json:"hash"`
	}
	in := make([]jsonEntry, len(sorted))
	for i, e := range sorted {
		in[i] = jsonEntry{PathKey: e.PathKey, Hash: hashHex(e.Bytes, 0)}
	}
	return fingerprint(1, in)
}

// QueryFingerprintInput covers the query text, mode, limits, rerank flag,
// scope path, snippet setting.
type QueryFingerprintInput struct {
	Query         string `json:"query"`
	Mode          string `json:"mode"`
	Limit         int    `json:"limit"`
	PerFileLimit  int    `json:"per_file_limit"`
	Rerank        bool   `json:"rerank"`
	Scope         string `json:"scope"`
	SnippetBytes  int    `json:"snippet_bytes"`
}

// QueryFingerprint computes query_fp.
func QueryFingerprint(in QueryFingerprintInput) (string, error) {
	return fingerprint(1, in)
}

// EmbedConfigFingerprintInput covers just the embedding model surface.
type EmbedConfigFingerprintInput struct {
	ModelID       string `json:"model_id"`
	ModelRevision string `json:"model_revision"`
	Dimensions    int    `json:"dimensions"`
}

// EmbedConfigFingerprint computes embed_config_fp.
func EmbedConfigFingerprint(in EmbedConfigFingerprintInput) (string, error) {
	return fingerprint(1, in)
}

// NormalizePathKey turns a resolved, root-relative path into the
// repo-relative path_key: forward slashes, no "./" prefix, rejects "."
// and ".." components and non-UTF8 content (spec §4.7).
func NormalizePathKey(relPath string) (string, error) {
	relPath = filepath.ToSlash(relPath)
	relPath = strings.TrimPrefix(relPath, "./")
	if relPath == "" || relPath == "." {
		return "", fmt.Errorf("empty path key")
	}
	for _, part := range strings.Split(relPath, "/") {
		if part == "." || part == ".." {
			return "", fmt.Errorf("path key contains %q component", part)
		}
	}
	if !isValidUTF8(relPath) {
		return "", fmt.Errorf("path key is not valid UTF-8")
	}
	return relPath, nil
}

func isValidUTF8(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}

// PathKeyCI returns the casefolded companion key used for collision
// detection (spec §3 "path_key_ci").
func PathKeyCI(pathKey string) string {
	return strings.ToLower(pathKey)
}

// MaxSymlinkDepth is exported for the resolver in internal/fswalk.
func MaxSymlinkDepth() int { return maxSymlinkDepth }
