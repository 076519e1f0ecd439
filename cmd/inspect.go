package main

import (
	"chat-relay/repositories"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	var envFile, prefix string
	var limit int
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print stored history keys, even while a relay holds the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			// BypassLockGuard lets us read while the serving process holds the lock.
			db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
				WithReadOnly(true).
				WithBypassLockGuard(true).
				WithLoggingLevel(badger.WARNING))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			return repositories.WriteInspection(db, cmd.OutOrStdout(), prefix, limit)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&prefix, "prefix", "msg:", "Key prefix to scan, e.g. msg:public:")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of rows")
	return cmd
}
