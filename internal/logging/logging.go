package logging

import (
	"log"
	"os"
)

func init() {
	// Set the global logger to use standard output, matching the teacher's
	// pkg/logging/logging.go init.
	log.SetOutput(os.Stdout)
}
