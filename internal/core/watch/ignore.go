// Package watch decides which filesystem events trigger a rebuild in dev mode.
// This is part of the Functional Core - all functions are pure with no I/O.
package watch

import (
	"path/filepath"
	"strings"
)

// DefaultIgnore lists editor, OS and tool artifacts that never trigger a
// rebuild. Patterns ending in "/" match directory components. ".trellis/"
// holds the state database, which every deploy writes.
var DefaultIgnore = []string{
	"*.swp",
	"*.swo",
	"*.swx",
	"4913",
	".DS_Store",
	"Thumbs.db",
	"*~",
	"*.bak",
	".vscode/",
	".idea/",
	"*.tmp",
	"*.log",
	".git/",
	"target/",
	"node_modules/",
	".trellis/",
}

// Matcher filters watched paths by glob patterns.
type Matcher struct {
	files    []string
	dirs     []string
	excluded []string
}

// NewMatcher builds a Matcher from DefaultIgnore plus extra patterns.
func NewMatcher(extra ...string) *Matcher {
	m := &Matcher{}
	for _, p := range append(append([]string{}, DefaultIgnore...), extra...) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") {
			m.dirs = append(m.dirs, strings.TrimSuffix(p, "/"))
		} else {
			m.files = append(m.files, p)
		}
	}
	return m
}

// Exclude drops every change at or below dir, matched by path rather than by
// name.
func (m *Matcher) Exclude(dir string) *Matcher {
	m.excluded = append(m.excluded, filepath.Clean(dir))
	return m
}

// Ignored reports whether a change to path, relative to root, should be
// dropped. Paths outside root are always ignored.
func (m *Matcher) Ignored(root, path string) bool {
	path = filepath.Clean(path)
	for _, d := range m.excluded {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	base := parts[len(parts)-1]
	for _, p := range m.files {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	for _, part := range parts {
		for _, d := range m.dirs {
			if ok, _ := filepath.Match(d, part); ok {
				return true
			}
		}
	}
	return false
}

// IgnoredDir reports whether a directory should not be watched at all.
func (m *Matcher) IgnoredDir(root, dir string) bool {
	if filepath.Clean(root) == filepath.Clean(dir) {
		return false
	}
	return m.Ignored(root, dir)
}
