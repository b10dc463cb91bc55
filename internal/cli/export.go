package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Config string
	Out    string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger as CSV",
		Long: `Write every session to CSV in the legacy log layout.

Open sessions appear with empty exit, duration, and fare columns.

Examples:
  parkd export --config lot.yaml
  parkd export --config lot.yaml --out sessions.csv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to lot config file (required)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Shutdown()

	var out io.Writer = cmd.OutOrStdout()
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		out = f
	}

	if err := l.ExportCSV(cmd.Context(), out); err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}

	if opts.Out != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", opts.Out)
	}
	return nil
}
