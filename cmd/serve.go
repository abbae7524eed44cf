package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provisioning server",
	Long: `Run the HTTP API that provisions sandboxes.

The server reads its configuration from a TOML or YAML file. Containers
left behind by an earlier run are removed at startup, and every live
sandbox is torn down on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveConfig    string
	serveListen    string
	serveRetention time.Duration
	serveGrace     time.Duration
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", config.DefaultConfigPath(), "Path to the config file (.toml, .yaml)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (overrides config)")
	serveCmd.Flags().DurationVar(&serveRetention, "history-retention", 7*24*time.Hour, "Remove sandbox histories older than this at startup (0 keeps all)")
	serveCmd.Flags().DurationVar(&serveGrace, "shutdown-timeout", 30*time.Second, "Time allowed for in-flight requests and teardown on exit")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfig)
	if err != nil {
		return errors.ConfigError("failed to load config", err)
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	if n, err := a.RemoveOrphans(ctx); err != nil {
		logging.Warn("failed to remove orphaned containers", "error", err)
	} else if n > 0 {
		logInfo("Removed %d orphaned container(s)", n)
	}
	if serveRetention > 0 {
		if n, err := a.Audit.Prune(serveRetention); err != nil {
			logging.Warn("failed to prune history", "error", err)
		} else if n > 0 {
			logging.Info("pruned sandbox histories", "count", n)
		}
	}

	srv := server.NewServer(&server.Config{
		ListenAddr:  cfg.Listen,
		RateLimit:   cfg.Server.RateLimit,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logging.Logger,
	}, a.Backend())

	go func() {
		if err := a.Monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn("monitor stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logInfo("Serving on %s (ports %d-%d, runtime %s)", cfg.Listen, cfg.Ports.From, cfg.Ports.To, a.Runtime.Name())

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveGrace)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logging.Warn("server shutdown incomplete", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logWarning("Some sandboxes were not torn down cleanly: %v", err)
	}
	return serveErr
}
