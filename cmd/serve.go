package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/climate-studio/atlas/internal/dataset"
	"github.com/climate-studio/atlas/internal/resilience"
	"github.com/climate-studio/atlas/internal/server"
	"github.com/climate-studio/atlas/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dataset and saved-view API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		views, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer views.Close()

		if err := views.Migrate(ctx); err != nil {
			return eris.Wrap(err, "serve: migrate")
		}

		var remote *dataset.Remote
		if cfg.Fetch.BaseURL != "" {
			remote = dataset.NewRemote(dataset.RemoteOptions{
				BaseURL: cfg.Fetch.BaseURL,
				Timeout: cfg.Fetch.Timeout(),
				Rate:    rate.Limit(cfg.Fetch.RatePerSec),
				Burst:   cfg.Fetch.Burst,
				Retry: resilience.RetryConfig{
					MaxAttempts: cfg.Retry.MaxAttempts,
					Delay:       cfg.Retry.Delay(),
				},
			})
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := server.New(dataset.NewService(remote), views, server.Options{
			Addr:           fmt.Sprintf(":%d", port),
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("remote_fetch", remote != nil),
		)

		return srv.ListenAndServe(ctx)
	},
}

// openStore builds the saved-view store named by the configured driver.
func openStore(cmd *cobra.Command) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(cmd.Context(), cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
