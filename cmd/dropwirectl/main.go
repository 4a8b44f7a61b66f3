// Command dropwirectl is the operator CLI for the tunnel lifecycle
// engine: listing active tunnels, forcing termination or cleanup, and
// a live-updating TUI table for the admin surface, driven from a
// terminal rather than curl.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverAddr string

func main() {
	root := &cobra.Command{
		Use:   "dropwirectl",
		Short: "Operate a running dropwire tunnel lifecycle engine",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", envOr("DROPWIRE_API", "http://localhost:8080"), "Control API base URL")

	root.AddCommand(newListCmd())
	root.AddCommand(newTerminateCmd())
	root.AddCommand(newCleanupCmd())
	root.AddCommand(newWatchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
