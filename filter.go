package filesentry

// Filter is the ignore-path capability the core consumes from its caller,
// per spec.md §6.1. It is deliberately a one-method interface rather than
// an inheritance hierarchy: a single capability that's swappable at runtime
// under the config lock (see Watcher.SetFilter).
//
// isDirHint is a best-effort hint about whether the path is a directory; it
// is nil on platforms/paths where this can't be determined cheaply, and
// implementations should answer conservatively in that case (prefer "don't
// ignore directories") so that a false ignore doesn't silently blind an
// entire subtree.
type Filter interface {
	IgnorePath(path CanonicalPath, isDirHint *bool) bool
}

// IgnorePathRec walks path and every ancestor, returning true if any of them
// match f's ignore rule. This is the provided recursive helper from
// spec.md §6.1 / original_source/src/config.rs, used by Watcher.AddRoot to
// reject roots whose ancestor chain is ignored.
func IgnorePathRec(f Filter, path CanonicalPath, isDirHint *bool) bool {
	for {
		if f.IgnorePath(path, isDirHint) {
			return true
		}
		parent, ok := path.Parent()
		if !ok {
			return false
		}
		path = parent
		// Only the original path carries the caller's directory hint; every
		// ancestor is, by definition, a directory.
		isDir := true
		isDirHint = &isDir
	}
}

// DefaultFilter is the zero-configuration filter: it ignores only paths
// named ".git", matching the original implementation's impl Filter for ()
// (original_source/src/config.rs).
type DefaultFilter struct{}

// IgnorePath implements Filter.
func (DefaultFilter) IgnorePath(path CanonicalPath, _ *bool) bool {
	s := path.String()
	if s == ".git" {
		return true
	}
	return len(s) > 5 && s[len(s)-5:] == "/.git"
}
