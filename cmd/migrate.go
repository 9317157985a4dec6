package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/config"
	"github.com/nextlevelbuilder/pairlink/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back Postgres schema migrations (managed mode)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openManagedDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := pg.MigrateUp(db); err != nil {
				return err
			}
			fmt.Println("Migrations applied.")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				steps = n
			}
			db, err := openManagedDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := pg.MigrateDown(db, steps); err != nil {
				return err
			}
			fmt.Printf("Rolled back %d migration(s).\n", steps)
			return nil
		},
	})
	return cmd
}

func openManagedDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !storeConfig(cfg).IsManaged() {
		return nil, fmt.Errorf("migrations need database.mode=managed and database.postgres_dsn")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return pg.OpenDB(ctx, cfg.Database.PostgresDSN)
}
