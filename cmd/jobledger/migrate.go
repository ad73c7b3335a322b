package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations to the configured store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer s.Close()

		if err := s.Migrate(cmd.Context()); err != nil {
			return err
		}
		log.Info().Str("driver", cfg.Store.Driver).Msg("store migrated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
