// Package fswalk implements path canonicalization/safety (spec §4.7) and a
// default file-discovery capability (spec §6 "enumerate candidate files
// under a root") injected into the ingest pipeline.
package fswalk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ggrep/ggrep/internal/identity"
)

// DecisionKind is the outcome of resolving one candidate path.
type DecisionKind int

const (
	// DecisionVisit means the path resolved safely and should be ingested.
	DecisionVisit DecisionKind = iota
	// DecisionSkip means the path is missing, a symlink cycle, escapes the
	// root, or is otherwise untraversable; it is not an error.
	DecisionSkip
)

// Decision is the result of ResolveCandidate.
type Decision struct {
	Kind    DecisionKind
	Reason  string
	PathKey string
}

// CanonicalRoot resolves root to an absolute, symlink-free path, following
// at most identity.MaxSymlinkDepth() link hops. It never returns a path
// that existed only transiently past a dangling symlink: the root itself
// must exist.
func CanonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	resolved, decision, err := resolveAllComponents(abs)
	if err != nil {
		return "", err
	}
	if decision.Kind != DecisionVisit {
		return "", fmt.Errorf("canonical root %s: %s", root, decision.Reason)
	}
	return resolved, nil
}

// ResolveCandidate canonicalizes root, then resolves candidate (an
// absolute or root-relative path) one component at a time, following
// symlinks up to the depth cap. It enforces strict containment: any
// resolved path that escapes the canonical root is a skip, never an
// error, per spec §4.7.
func ResolveCandidate(canonicalRoot, candidate string) (string, Decision, error) {
	full := candidate
	if !filepath.IsAbs(candidate) {
		full = filepath.Join(canonicalRoot, candidate)
	}

	resolved, decision, err := resolveAllComponents(full)
	if err != nil {
		return "", Decision{}, err
	}
	if decision.Kind != DecisionVisit {
		return "", decision, nil
	}

	rel, err := filepath.Rel(canonicalRoot, resolved)
	if err != nil || strings.HasPrefix(rel, "..") || rel == ".." {
		return "", Decision{Kind: DecisionSkip, Reason: "resolved path escapes canonical root"}, nil
	}

	key, err := identity.NormalizePathKey(rel)
	if err != nil {
		return "", Decision{Kind: DecisionSkip, Reason: err.Error()}, nil
	}

	return resolved, Decision{Kind: DecisionVisit, PathKey: key}, nil
}

// resolveAllComponents walks path component by component, resolving
// symlinks as it goes, with a hard depth cap. ELOOP or excess depth is a
// skip decision, never an error (spec §4.7).
func resolveAllComponents(path string) (string, Decision, error) {
	path = filepath.Clean(path)
	volume := filepath.VolumeName(path)
	parts := strings.Split(strings.TrimPrefix(path[len(volume):], string(filepath.Separator)), string(filepath.Separator))

	current := volume + string(filepath.Separator)
	hops := 0
	maxHops := identity.MaxSymlinkDepth()

	for _, part := range parts {
		if part == "" {
			continue
		}
		current = filepath.Join(current, part)

		for {
			info, err := os.Lstat(current)
			if err != nil {
				if os.IsNotExist(err) {
					return "", Decision{Kind: DecisionSkip, Reason: "path does not exist"}, nil
				}
				return "", Decision{}, fmt.Errorf("lstat %s: %w", current, err)
			}
			if info.Mode()&os.ModeSymlink == 0 {
				break
			}

			hops++
			if hops > maxHops {
				return "", Decision{Kind: DecisionSkip, Reason: "symlink depth exceeds cap"}, nil
			}

			target, err := os.Readlink(current)
			if err != nil {
				return "", Decision{}, fmt.Errorf("readlink %s: %w", current, err)
			}
			if filepath.IsAbs(target) {
				current = filepath.Clean(target)
			} else {
				current = filepath.Clean(filepath.Join(filepath.Dir(current), target))
			}
		}
	}

	return current, Decision{Kind: DecisionVisit}, nil
}
