// Command ggrep is the CLI entry point: it wires the storage+concurrency
// engine (internal/segment, internal/manifest, internal/ingest,
// internal/compaction, internal/gc, internal/search, internal/daemon)
// behind a cobra command tree, the same split the teacher's cmd/amanmcp
// binary keeps between main.go and cmd.Execute().
package main

import (
	"fmt"
	"os"

	"github.com/ggrep/ggrep/cmd/ggrep/cmd"
	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(ggrepErrors.ExitCode(ggrepErrors.KindOf(err)))
	}
}
