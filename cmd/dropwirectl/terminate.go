package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <tunnel-id>",
		Short: "Terminate a tunnel immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr)
			if err := client.terminate(args[0]); err != nil {
				return err
			}
			fmt.Printf("terminated tunnel %s\n", args[0])
			return nil
		},
	}
}
