package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/mini-market/internal/api"
	"github.com/talgya/mini-market/internal/config"
	"github.com/talgya/mini-market/internal/logging"
	"github.com/talgya/mini-market/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a stored run over a read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			dbPath, _ := cmd.Flags().GetString("db")
			if dbPath == "" {
				dbPath = cfg.Persistence.Path
			}
			port, _ := cmd.Flags().GetInt("port")
			ratePerIP, _ := cmd.Flags().GetInt("rate")

			slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr))

			db, err := persistence.Open(dbPath, persistence.RetryPolicy{
				MaxRetries: cfg.Persistence.MaxRetries,
				Delay:      cfg.Persistence.RetryDelay,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &api.Server{DB: db, Port: port, RatePerIP: ratePerIP}
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP port")
	cmd.Flags().Int("rate", 120, "Requests per minute per client IP (0 disables)")
	return cmd
}
