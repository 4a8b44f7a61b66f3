package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Force an immediate monitor tick (no token sweep)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr)
			if err := client.cleanup(); err != nil {
				return err
			}
			fmt.Println("cleanup tick executed")
			return nil
		},
	}
}
