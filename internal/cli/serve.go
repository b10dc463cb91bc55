package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/api"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/config"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/engine"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/ledger"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API without the engine",
		Long: `Serve the read-only status API over an existing ledger database.

Useful when the observation loop runs in another process or is stopped:
the API reads the same SQLite file and reports whatever the ledger
currently holds.

Example:
  parkd serve --config lot.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to lot config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Shutdown()

	srv := newStatusServer(cfg, l, nil)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
		case <-ctx.Done():
		}
		shutdownServer(srv)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Status API listening on %s\n", cfg.ListenAddr)
	return srv.ListenAndServe()
}

// newStatusServer builds the API server. When eng is nil the limits come
// from the config file alone; with an engine they track hot reloads.
func newStatusServer(cfg *config.Config, l *ledger.Ledger, eng *engine.Engine) *api.Server {
	limits := func() engine.Limits {
		return engine.Limits{MaxCapacity: cfg.MaxCapacity, HourlyRate: cfg.HourlyRate}
	}
	if eng != nil {
		limits = eng.Limits
	}
	return api.New(cfg.ListenAddr, l, limits, lotInfo(cfg), slog.Default())
}

func shutdownServer(srv *api.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("status api shutdown failed", "error", err)
	}
}
