package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/utafrali/WeddingDonations/internal/auth"
	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/event"
	"github.com/utafrali/WeddingDonations/internal/repository/postgres"
	"github.com/utafrali/WeddingDonations/internal/service"
	"github.com/utafrali/WeddingDonations/migrations"
	"github.com/utafrali/WeddingDonations/pkg/database"
)

func createAdminCmd() *cobra.Command {
	var in service.CreateAdminInput

	cmd := &cobra.Command{
		Use:     "create-admin",
		Short:   "Create a back-office administrator",
		Example: `  donationctl create-admin --email fatou@example.com --name "Fatou Diop" --password 'S3cure-pass' --role super_admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			authService := service.NewAuthService(
				postgres.NewAdminRepository(e.pool),
				auth.NewJWTManager(e.cfg.JWTSecret, e.cfg.JWTAccessExpiry),
				auth.NewRefreshStore(postgres.NewRefreshTokenRepository(e.pool), e.cfg.RefreshTokenExpiry, e.cfg.RefreshTokenMaxExpiry),
				event.NewProducer(nil, e.logger),
				e.logger,
			)

			admin, err := authService.CreateAdmin(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", admin.Role, admin.Email, admin.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password (required)")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "contact phone")
	cmd.Flags().StringVar(&in.Role, "role", domain.RoleAdmin, "admin or super_admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func cleanupTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-tokens",
		Short: "Delete expired and revoked refresh tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			store := auth.NewRefreshStore(postgres.NewRefreshTokenRepository(e.pool), e.cfg.RefreshTokenExpiry, e.cfg.RefreshTokenMaxExpiry)
			n, err := store.CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d refresh tokens\n", n)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				names, err := database.PendingMigrations(migrations.FS)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			if err := database.RunMigrations(cmd.Context(), e.pool, migrations.FS, e.logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list migration files without connecting")
	return cmd
}
