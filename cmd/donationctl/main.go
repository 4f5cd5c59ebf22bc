// Command donationctl runs administrative tasks against the donation database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/utafrali/WeddingDonations/internal/config"
	pkgconfig "github.com/utafrali/WeddingDonations/pkg/config"
	"github.com/utafrali/WeddingDonations/pkg/database"
	"github.com/utafrali/WeddingDonations/pkg/logger"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "donationctl",
		Short:         "Administrative tasks for the wedding donation service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return pkgconfig.LoadDotEnv(envFile)
		},
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "optional dotenv file loaded before the environment")

	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(cleanupTokensCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: configuration, a logger and a pool.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New("donationctl", cfg.LogLevel)

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &env{cfg: cfg, logger: log, pool: pool}, nil
}

func (e *env) close() {
	e.pool.Close()
}
