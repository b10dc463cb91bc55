package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/ledger"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Config string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show lot occupancy and revenue",
		Long: `Summarize the ledger: active vehicles, available spots, totals,
and revenue to date.

Examples:
  parkd status --config lot.yaml
  parkd status --config lot.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to lot config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Shutdown()

	st, err := l.Status(cmd.Context(), cfg.MaxCapacity, cfg.HourlyRate)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read ledger", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(st)
	}
	return printStatusText(formatter, cfg.LotName, st)
}

func printStatusText(f *OutputFormatter, lotName string, st ledger.Status) error {
	w := f.Writer
	fmt.Fprintf(w, "Lot: %s\n", lotName)
	fmt.Fprintf(w, "Occupancy: %d/%d (%.1f%%)\n", st.ActiveCount, st.MaxCapacity, st.CapacityPercentage)
	fmt.Fprintf(w, "Available: %d\n", st.AvailableSpots)
	if st.OverCapacity {
		fmt.Fprintln(w, "OVER CAPACITY")
	}
	fmt.Fprintf(w, "Entries: %d  Exits: %d  Revenue: %.2f\n", st.TotalEntries, st.TotalExits, st.RevenueToDate)

	for _, s := range st.Sessions {
		if !s.Open() {
			continue
		}
		fmt.Fprintf(w, "  %s  in since %s\n", s.Identity, s.EntryTime.Format("2006-01-02 15:04:05"))
	}
	return nil
}
