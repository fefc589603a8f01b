package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raidcore/raidcore/internal/config"
	"github.com/raidcore/raidcore/internal/storerouter"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Database.IsStandalone() {
		router, err := storerouter.NewStandalone(ctx, cfg.Database.StandaloneDir, storerouter.Config{
			TxPoolSize:   cfg.Database.PoolTxSize,
			SessPoolSize: cfg.Database.PoolSessSize,
		})
		if err != nil {
			return fmt.Errorf("open standalone router: %w", err)
		}
		defer router.Close()
		if err := storerouter.MigrateStandalone(ctx, router); err != nil {
			return fmt.Errorf("apply standalone schema: %w", err)
		}
		fmt.Println("raidcore: standalone schema applied")
		return nil
	}

	if err := storerouter.MigratePostgres(cfg.Database.TxDSN); err != nil {
		return fmt.Errorf("apply postgres migrations: %w", err)
	}
	fmt.Println("raidcore: postgres migrations applied")
	return nil
}
