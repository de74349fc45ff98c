// Command filesentry watches a directory tree and prints a coalesced,
// debounced stream of file events, one line per event, until interrupted.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
