package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wilhg/a2ui/pkg/config"
)

func newMigrateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database tables and load the provider seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := o.load(os.Stderr)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == config.MemoryDatabase {
				return fmt.Errorf("migrate needs a database_url, not %q", config.MemoryDatabase)
			}
			a := &app{cfg: cfg, log: log}
			defer func() { _ = a.Close() }()
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			if err := a.seed(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		},
	}
}
