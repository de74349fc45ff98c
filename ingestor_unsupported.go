//go:build !linux

package filesentry

import (
	"runtime"

	"github.com/pkg/errors"

	"github.com/mutagen-io/filesentry/internal/logging"
)

// ingestor is the fallback kernel-notification backend for platforms this
// module doesn't yet implement raw watch support for. Mirrors the
// teacher's pattern of a build-tag-gated unsupported stub (e.g. its
// watch_native_unsupported.go) that fails loudly at construction rather
// than silently degrading, per spec.md §7: "fatal errors are limited to
// initialization."
type ingestor struct{}

func newIngestor(_ *logging.Logger) (*ingestor, error) {
	return nil, errors.Errorf("filesentry: kernel notification backend not implemented for %s", runtime.GOOS)
}

func (in *ingestor) addWatch(CanonicalPath) error { return nil }
func (in *ingestor) wake() error                  { return nil }
func (in *ingestor) close()                       {}

func (in *ingestor) run(*config, *pendingChangesLock, func() bool) {}
