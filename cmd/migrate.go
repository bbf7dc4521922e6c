package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bathroom-buddy/internal/app"
)

// newMigrateCmd creates the 'migrate' subcommand, which creates the tables of
// the configured database and exits.
func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime(opts)
			if err != nil {
				return err
			}
			defer syncLogger(logger)

			cfg.DB.EnsureSchema = true
			repo, err := app.OpenRepository(cmd.Context(), cfg.DB, logger)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer repo.Close()

			logger.Info("schema up to date", zap.String("db_driver", cfg.DB.Driver))
			return nil
		},
	}
}
