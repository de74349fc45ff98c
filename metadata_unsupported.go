//go:build !linux && !darwin

package filesentry

import "github.com/pkg/errors"

// statPath is not implemented on this platform. The ingestor (also
// unimplemented here, see ingestor_unsupported.go) never calls it, so this
// only matters if a caller links the package directly.
func statPath(path CanonicalPath) (*fileMeta, error) {
	return nil, errors.New("filesentry: unsupported platform")
}
