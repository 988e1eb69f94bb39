package cli

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return db.Close()
		},
	}
}
