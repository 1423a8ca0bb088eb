package fswalk

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Matcher evaluates a set of gitignore-style patterns rooted at a
// directory. It is an external-collaborator detail (spec §1): the engine
// only needs "enumerate candidate files", so this matcher is deliberately
// simple (glob + directory-prefix rules), not a full gitignore dialect.
type Matcher struct {
	dir      string
	patterns []pattern
}

type pattern struct {
	raw       string
	negate    bool
	dirOnly   bool
	anchored  bool
}

// LoadMatcher reads <dir>/.gitignore, if present, and returns a Matcher.
// A missing file yields an empty (always-allow) Matcher, not an error.
func LoadMatcher(dir string) (*Matcher, error) {
	m := &Matcher{dir: dir}

	f, err := os.Open(filepath.Join(dir, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := pattern{raw: line}
		if strings.HasPrefix(p.raw, "!") {
			p.negate = true
			p.raw = p.raw[1:]
		}
		if strings.HasSuffix(p.raw, "/") {
			p.dirOnly = true
			p.raw = strings.TrimSuffix(p.raw, "/")
		}
		if strings.Contains(p.raw, "/") {
			p.anchored = true
			p.raw = strings.TrimPrefix(p.raw, "/")
		}
		m.patterns = append(m.patterns, p)
	}
	return m, scanner.Err()
}

// Match reports whether relPath (relative to the matcher's directory,
// forward-slash separated) is ignored.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	ignored := false
	base := filepath.Base(relPath)

	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		var target string
		if p.anchored {
			target = relPath
		} else {
			target = base
		}
		if ok, _ := filepath.Match(p.raw, target); ok {
			ignored = !p.negate
		}
	}
	return ignored
}
