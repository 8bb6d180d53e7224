// Package main is the greenledger API server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/greenledger/greenledger/pkg/config"
	"github.com/greenledger/greenledger/pkg/db"
	"github.com/greenledger/greenledger/pkg/server"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "greenledger-server",
	Short: "Emission, carbon credit and Green Score API server",
	Long: `greenledger-server records business activities, converts them into CO2e
emissions, issues carbon credits for reductions against industry baselines
and maintains a 0-100 Green Score per user.

Configuration is read from --config (YAML), then GREENLEDGER_* environment
variables, then flags.`,
	SilenceUsage: true,
	RunE:         run,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema and seed the market rate, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		s, err := openServer(cfg, logger)
		if err != nil {
			return err
		}
		if err := s.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("schema is up to date")
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML config file")
	flags.String("listen", ":8080", "Address to listen on")
	flags.String("db-type", db.TypeSQLite, "Database type (sqlite, postgres or mysql)")
	flags.String("db-dsn", "", "Database connection string")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd)
}

// setup binds flags, loads the configuration and installs the default
// logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	v := viper.New()
	for key, flagName := range map[string]string{
		"server.listen": "listen",
		"database.type": "db-type",
		"database.dsn":  "db-dsn",
		"log_level":     "log-level",
	} {
		if f := cmd.Flags().Lookup(flagName); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, nil, err
			}
		}
	}

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openServer(cfg *config.Config, logger *slog.Logger) (*server.Server, error) {
	gormDB, err := db.Open(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return server.New(cfg, gormDB, logger)
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	logger.Info("starting greenledger server",
		"listen", cfg.Server.Listen,
		"dbType", cfg.Database.Type,
		"authMode", cfg.Auth.Mode,
		"leaderElection", cfg.HA.LeaderElectionEnabled)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := openServer(cfg, logger)
	if err != nil {
		glog.Fatalf("Failed to set up server: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		glog.Fatalf("Failed to migrate database: %v", err)
	}

	housekeepingDone := make(chan struct{})
	go func() {
		defer close(housekeepingDone)
		if err := s.RunHousekeeping(ctx); err != nil {
			logger.Error("housekeeping stopped", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: s.Router(),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()
	logger.Info("greenledger server ready", "listen", cfg.Server.Listen)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	select {
	case <-housekeepingDone:
	case <-shutdownCtx.Done():
		logger.Warn("housekeeping did not stop before the shutdown timeout")
	}

	logger.Info("greenledger server stopped")
	return nil
}

func main() {
	// glog writes fatal boot errors to stderr.
	_ = flag.Set("logtostderr", "true")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
