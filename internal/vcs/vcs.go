// Package vcs reads the git HEAD/dirty state recorded in a snapshot
// manifest's "git" field (spec §3).
package vcs

import (
	"github.com/go-git/go-git/v5"

	"github.com/ggrep/ggrep/internal/manifest"
)

// Inspect opens the git repository at (or above) root and reports its HEAD
// commit and working-tree cleanliness. A root with no git repository is not
// an error: it yields a zero-value GitInfo, matching spec §3's note that
// "git" fields are best-effort.
func Inspect(root string) (manifest.GitInfo, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return manifest.GitInfo{}, nil
		}
		return manifest.GitInfo{}, err
	}

	head, err := repo.Head()
	if err != nil {
		// A freshly initialized repo with no commits yet: treat as
		// untracked, same as "no repository".
		return manifest.GitInfo{}, nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		return manifest.GitInfo{HeadSHA: head.Hash().String()}, nil
	}
	status, err := wt.Status()
	if err != nil {
		return manifest.GitInfo{HeadSHA: head.Hash().String()}, nil
	}

	dirty := false
	untracked := false
	for _, s := range status {
		if s.Worktree == git.Untracked || s.Staging == git.Untracked {
			untracked = true
			continue
		}
		dirty = true
	}

	return manifest.GitInfo{
		HeadSHA:           head.Hash().String(),
		Dirty:             dirty,
		UntrackedIncluded: untracked,
	}, nil
}
