package main

import (
	"context"
	"fmt"
	"net/url"

	"singles-table-backend/pkg/config"
	"singles-table-backend/pkg/database"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cmd, cfg)
		},
	}
}

func runMigrate(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.DBDriver == "postgres" {
		fmt.Fprintf(cmd.OutOrStdout(), "🔗 Connecting to database: %s\n", maskDSN(cfg.PostgresDSN))
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sqlDB, ok := db.(*database.SQLDatabase)
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "ℹ️  DB_DRIVER=%s has no schema to migrate\n", cfg.DBDriver)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "📄 Applying schema...")
	if err := sqlDB.Migrate(ctx); err != nil {
		return err
	}
	n, err := db.CountTables(ctx)
	if err != nil {
		return fmt.Errorf("verify schema: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Schema up to date (%d tables)\n", n)
	return nil
}

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Count int
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the initial tables when the store has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			count := cfg.SeedTables
			if cmd.Flags().Changed("count") {
				count = opts.Count
			}
			return runSeed(cmd.Context(), cmd, cfg, count)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 10, "number of tables to create (default SEED_TABLES)")

	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, cfg *config.Config, count int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	created, err := database.SeedTables(ctx, db, count)
	if err != nil {
		return err
	}
	if created == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "ℹ️  Tables already exist, nothing seeded")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Seeded %d tables\n", created)
	return nil
}

// maskDSN 隐藏连接字符串中的密码
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		if len(dsn) > 10 {
			return dsn[:10] + "***"
		}
		return "***"
	}
	return u.Redacted()
}
