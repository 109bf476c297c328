package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "chat",
		Short:         "Workspace chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newConnectCmd())
	root.AddCommand(newDevServerCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
