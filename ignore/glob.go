// Package ignore implements a glob-pattern Filter for FileSentry, in the
// style of .gitignore pattern matching. It's a supplemental, library-facing
// capability (not part of the core pipeline, which only depends on the
// Filter interface), grounded on the pattern semantics of the teacher's
// pkg/synchronization/core/ignore.go but matched with
// github.com/bmatcuk/doublestar/v4 instead of a vendored fileutils copy.
package ignore

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mutagen-io/filesentry"
)

// pattern is one parsed ignore line.
type pattern struct {
	negated       bool
	directoryOnly bool
	matchLeaf     bool
	glob          string
}

// parsePattern parses a single ignore-file line, mirroring the teacher's
// newIgnorePattern: leading "!" negates, leading "/" anchors to the root,
// trailing "/" restricts the match to directories, and a pattern with no
// slash (besides a trailing one) also matches against the path's base name.
func parsePattern(line string) (pattern, bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return pattern{}, false
	}
	switch line {
	case "!", "/", "!/", "//", "!//":
		return pattern{}, false
	}

	p := pattern{glob: line}
	if p.glob[0] == '!' {
		p.negated = true
		p.glob = p.glob[1:]
	}
	if p.glob == "" {
		return pattern{}, false
	}
	anchored := false
	if p.glob[0] == '/' {
		anchored = true
		p.glob = p.glob[1:]
	}
	if p.glob == "" {
		return pattern{}, false
	}
	if p.glob[len(p.glob)-1] == '/' {
		p.directoryOnly = true
		p.glob = p.glob[:len(p.glob)-1]
	}
	if p.glob == "" {
		return pattern{}, false
	}

	containsSlash := strings.IndexByte(p.glob, '/') >= 0
	p.matchLeaf = !anchored && !containsSlash

	if _, err := doublestar.Match(p.glob, "a"); err != nil {
		return pattern{}, false
	}
	return p, true
}

func (p pattern) matches(relPath string, isDir bool) bool {
	if p.directoryOnly && !isDir {
		return false
	}
	if ok, _ := doublestar.Match(p.glob, relPath); ok {
		return true
	}
	if p.matchLeaf {
		leaf := relPath
		if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
			leaf = relPath[i+1:]
		}
		if ok, _ := doublestar.Match(p.glob, leaf); ok {
			return true
		}
	}
	return false
}

// GlobFilter implements filesentry.Filter using .gitignore-style glob
// patterns evaluated relative to a fixed root. Later patterns take
// precedence over earlier ones, and a negated pattern re-includes a path
// an earlier pattern excluded, matching gitignore's documented semantics.
type GlobFilter struct {
	root     string
	patterns []pattern
}

// NewGlobFilter builds a GlobFilter rooted at root from a set of ignore
// lines (as read from a .gitignore/.ignore file, one entry per line, in
// file order). Invalid or empty lines are silently skipped, matching
// spec.md §7's "unexpected filter / ignore errors: logged; falls back to
// no-filter for that scope" (a skipped line simply never matches, rather
// than aborting the whole filter).
func NewGlobFilter(root string, lines []string) *GlobFilter {
	f := &GlobFilter{root: strings.TrimRight(root, "/")}
	for _, line := range lines {
		if p, ok := parsePattern(strings.TrimSpace(line)); ok {
			f.patterns = append(f.patterns, p)
		}
	}
	return f
}

// IgnorePath implements filesentry.Filter.
func (f *GlobFilter) IgnorePath(path filesentry.CanonicalPath, isDirHint *bool) bool {
	full := path.String()
	rel := strings.TrimPrefix(full, f.root)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return false
	}

	isDir := true
	if isDirHint != nil {
		isDir = *isDirHint
	}

	ignored := false
	for _, p := range f.patterns {
		if !p.matches(rel, isDir) {
			continue
		}
		ignored = !p.negated
	}
	return ignored
}
