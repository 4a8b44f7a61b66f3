package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active tunnels",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverAddr)
			tunnels, err := client.listTunnels()
			if err != nil {
				return err
			}
			if len(tunnels) == 0 {
				fmt.Println("no active tunnels")
				return nil
			}
			fmt.Printf("%-10s %-30s %-12s %12s %12s\n", "ID", "FILE", "STATUS", "SIZE", "SERVED")
			for _, t := range tunnels {
				fmt.Printf("%-10s %-30s %-12s %12d %12d\n", t.TunnelID, t.FilePath, t.Status, t.FileSize, t.BytesServed)
			}
			return nil
		},
	}
}
