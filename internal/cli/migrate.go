package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kavirubc/gh-triage/internal/cache"
	"github.com/Kavirubc/gh-triage/internal/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade stored analyses to the current record shape",
		Long: `Rewrite analyses stored in the old flat category/priority shape into the
current decision shape. Rows are migrated in place; reads already migrate
them on the fly, so this only makes the upgrade permanent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}

			cfg := config.Default()
			if path := config.FindConfigPath(cfgFile); path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg = loaded
			}

			store, err := cache.OpenSQLiteStore(cfg.Cache.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if dryRun {
				fmt.Println(yellow("[DRY RUN] migrate always writes; nothing done"))
				return nil
			}

			n, err := store.MigrateLegacy(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Migrated %d analyses in %s\n", n, cfg.Cache.Path)
			return nil
		},
	}
}
