package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	serverName    = "deep-research-server"
	serverVersion = "0.1.0"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serverName, serverVersion)
			return err
		},
	}
}
