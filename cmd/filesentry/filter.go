package main

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/mutagen-io/filesentry"
)

// cliFilter composes the always-on ".git" rule (filesentry.DefaultFilter)
// with an optional hidden-file rule and an optional stack of gitignore-style
// matchers: one per .gitignore/.ignore file in the watched root directory,
// plus the user's global git ignore file, per spec.md §6.4: "Honors .gitignore,
// .ignore, and global git-ignore unless --no-ignore."
type cliFilter struct {
	ignoreHidden bool
	matchers     []rootedMatcher
}

type rootedMatcher struct {
	root string
	m    *gitignore.GitIgnore
}

// newCLIFilter loads the .gitignore/.ignore files found directly in root
// (ignore files in subdirectories are not read) and the user's global
// gitignore. extraIgnore
// is an additional set of gitignore-style lines from the optional
// --config YAML file (fileConfig.Ignore), applied root-relative like
// everything else.
func newCLIFilter(root string, hideHidden, honorIgnoreFiles bool, extraIgnore []string) *cliFilter {
	f := &cliFilter{ignoreHidden: hideHidden}
	if len(extraIgnore) > 0 {
		f.matchers = append(f.matchers, rootedMatcher{root: root, m: gitignore.CompileIgnoreLines(extraIgnore...)})
	}
	if !honorIgnoreFiles {
		return f
	}
	f.matchers = append(f.matchers, loadIgnoreFilesUnder(root)...)
	if global := globalGitIgnorePath(); global != "" {
		if m, err := gitignore.CompileIgnoreFile(global); err == nil {
			f.matchers = append(f.matchers, rootedMatcher{root: root, m: m})
		}
	}
	return f
}

// loadIgnoreFilesUnder scans dir for .gitignore and .ignore. It does not
// descend into subdirectories.
func loadIgnoreFilesUnder(dir string) []rootedMatcher {
	var matchers []rootedMatcher
	for _, name := range []string{".gitignore", ".ignore"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := gitignore.CompileIgnoreFile(path)
		if err != nil {
			continue
		}
		matchers = append(matchers, rootedMatcher{root: dir, m: m})
	}
	return matchers
}

func globalGitIgnorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidate := filepath.Join(home, ".gitignore_global")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	candidate = filepath.Join(home, ".config", "git", "ignore")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// IgnorePath implements filesentry.Filter.
func (f *cliFilter) IgnorePath(path filesentry.CanonicalPath, isDirHint *bool) bool {
	if (filesentry.DefaultFilter{}).IgnorePath(path, isDirHint) {
		return true
	}
	if f.ignoreHidden {
		if base := baseName(path.String()); len(base) > 1 && base[0] == '.' {
			return true
		}
	}
	for _, rm := range f.matchers {
		rel := strings.TrimPrefix(path.String(), rm.root)
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			continue
		}
		if rm.m.MatchesPath(rel) {
			return true
		}
	}
	return false
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
