//go:build linux || darwin

package filesentry

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// statPath lstats path, treating ENOENT/ENOTDIR as "gone" rather than an
// error, per spec.md §4.3.3 step 1 and the error policy table in §7.
// Grounded on the teacher's pkg/filesystem/directory_metadata_posix.go,
// which performs the equivalent fstatat/AT_SYMLINK_NOFOLLOW query.
func statPath(path CanonicalPath) (*fileMeta, error) {
	var stat unix.Stat_t
	err := unix.Lstat(path.String(), &stat)
	if err == nil {
		return statTToMeta(&stat), nil
	}
	if err == unix.ENOENT || err == unix.ENOTDIR {
		return nil, nil
	}
	return nil, &os.PathError{Op: "lstat", Path: path.String(), Err: err}
}

func statTToMeta(stat *unix.Stat_t) *fileMeta {
	mode := stat.Mode & unix.S_IFMT
	isDir := mode == unix.S_IFDIR
	if mode != unix.S_IFDIR && mode != unix.S_IFREG {
		// Not a plain file or directory (symlink, device, socket, ...): the
		// tree only tracks files and directories, so treat this as absent.
		return nil
	}
	return &fileMeta{
		isDir: isDir,
		mtime: time.Unix(statMtimeSec(stat), statMtimeNsec(stat)),
		size:  stat.Size,
		inode: uint64(stat.Ino),
		dev:   statDev(stat),
	}
}
