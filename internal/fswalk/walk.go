package fswalk

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CandidateFile is one file discovered under a root, already resolved
// through ResolveCandidate.
type CandidateFile struct {
	AbsPath string
	PathKey string
	Size    int64
	ModTime time.Time
}

// FileSystem is the external-collaborator capability for file discovery
// (spec §6): "enumerate candidate files under a root". The ingest
// pipeline depends only on this interface, never on a concrete walker
// (Design Notes §9).
type FileSystem interface {
	IterFiles(ctx context.Context, root string) (<-chan CandidateFile, <-chan error)
}

// gitignoreCacheSize bounds the per-process LRU of parsed matchers.
const gitignoreCacheSize = 1000

// DefaultMaxFileBytes is the hard cap beyond which a file is skipped
// rather than ingested (spec §1 Non-goals: "indexing ... very-large files
// (a hard cap is enforced)").
const DefaultMaxFileBytes = 8 << 20 // 8 MiB

// Walker is the default FileSystem implementation: a directory walk with
// gitignore filtering and a bounded file-size cap.
type Walker struct {
	matchers    *lru.Cache[string, *Matcher]
	maxFileSize int64
}

// NewWalker creates a Walker with the given max file size (0 uses
// DefaultMaxFileBytes).
func NewWalker(maxFileSize int64) (*Walker, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileBytes
	}
	cache, err := lru.New[string, *Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, err
	}
	return &Walker{matchers: cache, maxFileSize: maxFileSize}, nil
}

func (w *Walker) matcherFor(dir string) (*Matcher, error) {
	if m, ok := w.matchers.Get(dir); ok {
		return m, nil
	}
	m, err := LoadMatcher(dir)
	if err != nil {
		return nil, err
	}
	w.matchers.Add(dir, m)
	return m, nil
}

// IterFiles walks root, yielding every file not excluded by a .gitignore
// in its lineage, skipping dirs named ".git", and applying the
// path-safety resolver (ResolveCandidate) to every entry.
func (w *Walker) IterFiles(ctx context.Context, root string) (<-chan CandidateFile, <-chan error) {
	out := make(chan CandidateFile)
	errs := make(chan error, 1)

	canonicalRoot, err := CanonicalRoot(root)
	if err != nil {
		close(out)
		errs <- err
		close(errs)
		return out, errs
	}

	go func() {
		defer close(out)
		defer close(errs)

		walkErr := filepath.WalkDir(canonicalRoot, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return nil // unreadable entries are skipped, not fatal
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return fs.SkipDir
				}
				return nil
			}

			_, decision, rerr := ResolveCandidate(canonicalRoot, path)
			if rerr != nil {
				return nil
			}
			if decision.Kind != DecisionVisit {
				return nil
			}

			ignored := false
			for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
				if m, merr := w.matcherFor(dir); merr == nil {
					if rel, relErr := filepath.Rel(dir, path); relErr == nil && m.Match(filepath.ToSlash(rel), false) {
						ignored = true
						break
					}
				}
				if dir == canonicalRoot || dir == filepath.Dir(dir) {
					break
				}
			}
			if ignored {
				return nil
			}

			info, ierr := d.Info()
			if ierr != nil {
				return nil
			}
			if info.Size() > w.maxFileSize {
				return nil
			}

			select {
			case out <- CandidateFile{AbsPath: path, PathKey: decision.PathKey, Size: info.Size(), ModTime: info.ModTime()}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})

		if walkErr != nil && walkErr != context.Canceled {
			errs <- walkErr
		}
	}()

	return out, errs
}
