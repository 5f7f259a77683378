package main

import (
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/thumbsup/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Flags(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := database.Migrate(a.db.GetDB()); err != nil {
				return err
			}
			a.log.Info("schema up to date")
			return nil
		},
	}
}
