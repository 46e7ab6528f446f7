// Command ragpipe is the entry point for the ragpipe RAG pipeline.
// It provides a CLI interface (via Cobra) for document ingestion and
// one-shot queries, and an HTTP server for interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/r4ven-labs/ragpipe/cmd/ragpipe/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
