package filesentry

import "time"

// fileMeta is the stat-derived metadata tracked for a path, mirroring
// original_source/src/metadata.rs. It captures just enough to tell whether a
// file's content changed (mtime, size) and whether an inode was recycled
// underneath us (inode), which forces a recursive re-examination regardless
// of any other hint (spec.md §4.3.3 step 3).
type fileMeta struct {
	isDir bool
	mtime time.Time
	size  int64
	inode uint64
	dev   uint64
}

// statPathFn is the platform stat implementation used by the tree. It's a
// variable rather than a direct call so tests can substitute a transient
// I/O error (EACCES, EIO, ...) that's otherwise impractical to reproduce on
// demand, without touching the real per-platform syscall path.
var statPathFn = statPath
