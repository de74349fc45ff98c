package ignore

import (
	"testing"

	"github.com/mutagen-io/filesentry"
)

func ignored(t *testing.T, f *GlobFilter, path string, isDir bool) bool {
	t.Helper()
	return f.IgnorePath(filesentry.NewCanonicalPath(path), &isDir)
}

func TestGlobFilterBasicMatch(t *testing.T) {
	f := NewGlobFilter("/root", []string{"*.log"})
	if !ignored(t, f, "/root/debug.log", false) {
		t.Fatal("expected *.log to match a leaf file")
	}
	if !ignored(t, f, "/root/sub/debug.log", false) {
		t.Fatal("expected *.log (slash-less) to match at any depth")
	}
	if ignored(t, f, "/root/debug.txt", false) {
		t.Fatal("did not expect *.log to match debug.txt")
	}
}

func TestGlobFilterAnchored(t *testing.T) {
	f := NewGlobFilter("/root", []string{"/build"})
	if !ignored(t, f, "/root/build", true) {
		t.Fatal("expected /build to match the root-level build directory")
	}
	if ignored(t, f, "/root/sub/build", true) {
		t.Fatal("anchored pattern must not match a nested build directory")
	}
}

func TestGlobFilterDirectoryOnly(t *testing.T) {
	f := NewGlobFilter("/root", []string{"cache/"})
	if !ignored(t, f, "/root/cache", true) {
		t.Fatal("expected cache/ to match the directory")
	}
	if ignored(t, f, "/root/cache", false) {
		t.Fatal("directory-only pattern must not match a plain file named cache")
	}
}

func TestGlobFilterNegation(t *testing.T) {
	f := NewGlobFilter("/root", []string{"*.log", "!important.log"})
	if ignored(t, f, "/root/important.log", false) {
		t.Fatal("expected the negated pattern to re-include important.log")
	}
	if !ignored(t, f, "/root/other.log", false) {
		t.Fatal("expected other.log to remain ignored")
	}
}

func TestGlobFilterLaterPatternWins(t *testing.T) {
	f := NewGlobFilter("/root", []string{"!keep.txt", "keep.txt"})
	if !ignored(t, f, "/root/keep.txt", false) {
		t.Fatal("expected the later pattern to take precedence over the earlier negation")
	}
}

func TestGlobFilterSkipsInvalidLines(t *testing.T) {
	f := NewGlobFilter("/root", []string{"", "#comment", "!", "/", "*.log"})
	if len(f.patterns) != 1 {
		t.Fatalf("expected only the valid trailing pattern to survive, got %d", len(f.patterns))
	}
}

func TestGlobFilterRootItselfNeverIgnored(t *testing.T) {
	f := NewGlobFilter("/root", []string{"*.log"})
	if ignored(t, f, "/root", true) {
		t.Fatal("the root itself has no relative path component and must never be ignored")
	}
}
