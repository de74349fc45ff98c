package filesentry

import (
	"strings"
)

// separator is the platform path separator byte. FileSentry only ever deals
// in already-canonicalized, native-form paths, so there's no need to handle
// both slash conventions on a single platform.
const separator = '/'

// CanonicalPath is an absolute, already-canonicalized filesystem path.
//
// It is backed by a plain Go string rather than the refcounted,
// copy-on-write byte buffer the original implementation used: a Go string is
// already an immutable, garbage-collected, cheaply-shared byte sequence, so
// it gives the same "small stable footprint, cheap comparison" properties
// without any unsafe code. It never ends in a path separator, except for the
// filesystem root "/".
type CanonicalPath struct {
	s string
}

// NewCanonicalPath wraps an already-canonicalized path. The caller is
// responsible for canonicalization (symlink resolution, absolute-ification);
// this constructor only strips a single trailing separator.
func NewCanonicalPath(path string) CanonicalPath {
	if len(path) > 1 && path[len(path)-1] == separator {
		path = path[:len(path)-1]
	}
	return CanonicalPath{s: path}
}

// String returns the logical path.
func (p CanonicalPath) String() string {
	return p.s
}

// IsEmpty reports whether this is the zero-value path.
func (p CanonicalPath) IsEmpty() bool {
	return p.s == ""
}

// Parent returns the parent directory of p, and false if p has no parent
// (p is the filesystem root or empty).
func (p CanonicalPath) Parent() (CanonicalPath, bool) {
	i := strings.LastIndexByte(p.s, separator)
	if i <= 0 {
		if i == 0 && len(p.s) > 1 {
			return CanonicalPath{s: string(separator)}, true
		}
		return CanonicalPath{}, false
	}
	return CanonicalPath{s: p.s[:i]}, true
}

// Join appends a single path component (must not itself contain a
// separator) and returns the resulting canonical path.
func (p CanonicalPath) Join(name string) CanonicalPath {
	if p.s == "" {
		return CanonicalPath{s: name}
	}
	if p.s == string(separator) {
		return CanonicalPath{s: p.s + name}
	}
	var b strings.Builder
	b.Grow(len(p.s) + 1 + len(name))
	b.WriteString(p.s)
	b.WriteByte(separator)
	b.WriteString(name)
	return CanonicalPath{s: b.String()}
}

// Equal reports whether two canonical paths denote the same logical path.
func (p CanonicalPath) Equal(other CanonicalPath) bool {
	return p.s == other.s
}

// IsParentOf reports whether p is a direct or indirect parent directory of
// other. This is used to skip subtree-contiguous ranges in a sorted slice of
// pending changes (spec.md §3.5) without re-walking the tree.
func (p CanonicalPath) IsParentOf(other CanonicalPath) bool {
	if len(other.s) <= len(p.s) || !strings.HasPrefix(other.s, p.s) {
		return false
	}
	if p.s == string(separator) {
		return true
	}
	return other.s[len(p.s)] == separator
}

// Less implements the ordering used for sorting pending changes: plain
// lexicographic order on the logical bytes, with a tie-break that sorts a
// proper prefix before anything it prefixes (so "a" sorts before "a/b").
// Every descendant of a directory therefore sorts after it, but not always
// immediately: a sibling whose name extends the directory's name with a byte
// below '/' (such as "a.txt" or "a-b") sorts between "a" and "a/b".
func (p CanonicalPath) Less(other CanonicalPath) bool {
	n := len(p.s)
	if len(other.s) < n {
		n = len(other.s)
	}
	if c := strings.Compare(p.s[:n], other.s[:n]); c != 0 {
		return c < 0
	}
	return len(p.s) < len(other.s)
}

// CanonicalPathSlice sorts a slice of CanonicalPath in ascending order,
// using the tie-break described on Less.
type CanonicalPathSlice []CanonicalPath

func (s CanonicalPathSlice) Len() int           { return len(s) }
func (s CanonicalPathSlice) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s CanonicalPathSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
