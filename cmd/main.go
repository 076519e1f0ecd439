package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRelayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat-relay",
		Short: "Real-time group messaging relay over websockets",
	}
	cmd.AddCommand(
		newServeCommand(),
		newInspectCommand(),
		newVersionCommand(),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relay version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chat-relay %s\n", version)
		},
	}
}

func main() {
	if err := newRelayCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
