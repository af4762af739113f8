package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "quill",
		Short:   "Quill — dual-backend LRU response cache for LLM workloads",
		Version: version,
	}

	root.AddCommand(newCacheCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
