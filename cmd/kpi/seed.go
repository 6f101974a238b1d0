package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/montybuilt/MPS-sub000/internal/backend"
	"github.com/montybuilt/MPS-sub000/internal/curriculum"
	"github.com/montybuilt/MPS-sub000/internal/platform/database"
)

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import the curriculum directory into PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("tree")
			url, _ := cmd.Flags().GetString("database-url")
			owners, _ := cmd.Flags().GetStringSlice("owners")
			if url == "" {
				return fmt.Errorf("--database-url is required")
			}

			loader, err := curriculum.NewLoader(dir)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := database.New(ctx, url, 2, 1)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}

			pg, err := backend.NewPostgresBackend(db.Pool)
			if err != nil {
				return err
			}
			if err := pg.Import(ctx, loader, owners); err != nil {
				return err
			}
			slog.Info("curriculum imported", "contents", len(loader.AllContent()), "owners", len(owners))
			return nil
		},
	}
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().StringSlice("owners", nil, "Learners to assign the imported contents to")
	return cmd
}
