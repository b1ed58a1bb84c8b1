package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/vind/internal/config"
	"github.com/sakif/vind/internal/repository"
	"github.com/sakif/vind/internal/server"
)

var rootCmd = &cobra.Command{
	Use:           "vind",
	Short:         "Vind short-video API server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateUsersCmd = &cobra.Command{
	Use:   "migrate-users",
	Short: "Migrate legacy follower fields and repair follow edges",
	Long: `Rewrite every user whose followers or following field is still a
number into the list form, then walk all users and repair follow edges that
are recorded on one side only.

Running it again is safe; a second run reports zero migrated users.`,
	RunE: runMigrateUsers,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo users, videos and follows",
	Long: `Create the demo accounts, their videos and the follow graph between
them. Existing rows are left alone, so the command can be re-run.

Examples:
  vind seed
  vind seed --password 'another-demo-pass'`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().String("password", "password123", "password for every demo account")

	rootCmd.AddCommand(serveCmd, migrateUsersCmd, seedCmd)
}

// setup loads and validates configuration and builds the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store",
			slog.String("driver", cfg.StoreDriver),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return store, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runMigrateUsers(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	services, err := server.NewServices(store, cfg, logger)
	if err != nil {
		return err
	}

	report, err := services.Relations.MigrateUsers(cmd.Context())
	if err != nil {
		return fmt.Errorf("migrate-users: %w", err)
	}
	return printJSON(cmd, report)
}

func runSeed(cmd *cobra.Command, args []string) error {
	password, _ := cmd.Flags().GetString("password")

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	services, err := server.NewServices(store, cfg, logger)
	if err != nil {
		return err
	}

	report, err := services.Seed.Seed(cmd.Context(), password)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return printJSON(cmd, report)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
