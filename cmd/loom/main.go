package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Reactive state propagation and live tree streaming",
		Long: `Loom is a fine-grained reactive state engine for Go.

State lives in cells; derived values and effects track their
dependencies automatically, and every change propagates through the
graph in a single synchronous pass. Views reconcile an output tree
incrementally, and the live server streams each pass's patches to
connected clients over WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
