package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"goflare.io/issuance/config"
	"goflare.io/issuance/coupon"
	"goflare.io/issuance/migrations"
	"goflare.io/issuance/models"
)

// loadConfig skips full validation: operator commands only need the database.
func loadConfig() (*config.Config, *zap.Logger, error) {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Read(path)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Postgres.URL == "" {
		return nil, nil, fmt.Errorf("postgres.url is required")
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the coupons schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return migrations.Up(cfg.Postgres.URL, logger)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return migrations.Down(cfg.Postgres.URL, logger)
		},
	})

	return cmd
}

func poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect the coupon pool",
	}

	var asJSON bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count coupons per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			conn, cleanup, err := config.ProvidePostgresConn(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			tm := config.ProvideTransactionManager(cfg, conn, logger)
			svc := coupon.NewService(coupon.NewRepository(conn, logger), tm, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			result, err := svc.Stats(ctx)
			if err != nil {
				return fmt.Errorf("read pool stats: %w", err)
			}
			return printStats(cmd.OutOrStdout(), result, asJSON)
		},
	}
	stats.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	cmd.AddCommand(stats)
	return cmd
}

func printStats(w io.Writer, stats *models.PoolStats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	_, err := fmt.Fprintf(w, "available\t%d\nreserved\t%d\nissued\t\t%d\ntotal\t\t%d\n",
		stats.Available, stats.Reserved, stats.Issued, stats.Total())
	return err
}
