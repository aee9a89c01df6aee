// Command singles runs the Singles Table booking API and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"singles-table-backend/pkg/config"
	"singles-table-backend/pkg/database"

	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	EnvFile  string
	DBDriver string
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "singles",
		Short: "Singles Table booking API",
		Long: `Singles Table booking API.

Participants reserve a seat at a two-person table; a table is booked once it
holds one male and one female participant.

Configuration comes from the environment (and .env.local / .env.production).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "extra .env file loaded before the environment is parsed")
	cmd.PersistentFlags().StringVar(&opts.DBDriver, "db", "", "override DB_DRIVER (memory, sqlite, postgres)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// loadConfig 加载并校验配置，命令行参数优先
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.EnvFile != "" {
		if err := config.LoadEnvFile(opts.EnvFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if opts.DBDriver != "" {
		cfg.DBDriver = opts.DBDriver
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (database.DatabaseInterface, error) {
	db, err := database.NewDatabase(database.DatabaseConfig{
		Driver:      cfg.DBDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
		Debug:       cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
