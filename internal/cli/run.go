package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/engine"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/ingest"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config string
	Input  string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the observation loop",
		Long: `Start the parking session engine.

Reads the detection pipeline's JSON Lines event stream from --input
(or stdin), processes it through the single-writer loop, and commits
sessions to the SQLite ledger. The status API listens on the configured
address while the engine runs.

SIGHUP reloads the config file and applies the new capacity and hourly
rate without restarting. SIGINT and SIGTERM drain the queue and stop.

Examples:
  parkd run --config lot.yaml
  parkd run --config lot.yaml --input events.jsonl --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to lot config file (required)")
	cmd.Flags().StringVar(&opts.Input, "input", "", "path to JSONL event stream (default: stdin)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	slog.Info("config loaded", "lot", cfg.LotName, "max_capacity", cfg.MaxCapacity, "hourly_rate", cfg.HourlyRate)

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := l.Shutdown(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()
	slog.Info("ledger ready", "path", cfg.Database, "open_sessions", l.ActiveCount())

	eng, err := buildEngine(cfg, l)
	if err != nil {
		return err
	}

	var input io.ReadCloser = os.Stdin
	if opts.Input != "" {
		f, err := os.Open(opts.Input)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input stream", err)
		}
		input = f
	}
	defer input.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	defer signal.Stop(hupChan)

	go func() {
		for {
			select {
			case sig := <-sigChan:
				slog.Info("received signal, shutting down", "signal", sig)
				cancel()
				return
			case <-hupChan:
				reloadLimits(opts.Config, eng)
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := newStatusServer(cfg, l, eng)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("status api failed", "error", err)
		}
	}()
	defer shutdownServer(srv)

	// Feed the stream into the queue; close the queue at EOF so the run
	// loop drains what remains and returns.
	go func() {
		n, err := ingest.Pump(ctx, input, eng, slog.Default())
		if err != nil && ctx.Err() == nil {
			slog.Error("input stream failed", "error", err, "events", n)
		} else {
			slog.Info("input stream finished", "events", n)
		}
		eng.Stop()
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Processing observations...")

	if err := eng.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully")
	return nil
}

// reloadLimits re-reads the config file and applies the new capacity and
// rate. A config that fails validation is rejected whole; the engine
// keeps running on the previous parameters.
func reloadLimits(path string, eng *engine.Engine) {
	cfg, errs := loadConfigForReload(path)
	if len(errs) > 0 {
		for _, e := range errs {
			slog.Error("config reload rejected", "error", e)
		}
		return
	}
	eng.SetLimits(engine.Limits{MaxCapacity: cfg.MaxCapacity, HourlyRate: cfg.HourlyRate})
}
