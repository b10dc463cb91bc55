package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/alert"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/api"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/boundary"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/config"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/engine"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/identity"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/ledger"
	"github.com/uday-raj-malik/Smart-Parking-System/internal/resolver"
)

// loadConfig loads and validates the lot configuration, mapping failures
// to exit codes: a missing file is a command error, invalid content is an
// operational failure listing every violation.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("config file not found: %s", path))
	}

	cfg, errs := config.Load(path)
	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, NewExitError(ExitFailure, "invalid config:\n  "+strings.Join(msgs, "\n  "))
	}
	return cfg, nil
}

// loadConfigForReload re-reads a config file without exit-code mapping.
// Used on SIGHUP, where a bad file is logged rather than fatal.
func loadConfigForReload(path string) (*config.Config, []error) {
	return config.Load(path)
}

// openLedger opens the configured ledger database.
func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	l, err := ledger.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open ledger database", err)
	}
	return l, nil
}

// buildEngine wires the full observation pipeline from a validated
// config: grammar, detector, resolver, alerter, engine.
func buildEngine(cfg *config.Config, l *ledger.Ledger) (*engine.Engine, error) {
	grammar, err := identity.NewGrammar(cfg.PlateGrammar)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid plate grammar", err)
	}

	detector := boundary.NewDetector(cfg.LineY, cfg.Margin)
	res := resolver.New(grammar, l, detector, nil)

	var opts []engine.Option
	if cfg.SMTP != nil {
		opts = append(opts, engine.WithAlerter(alert.NewMailer(*cfg.SMTP)))
	}

	limits := engine.Limits{MaxCapacity: cfg.MaxCapacity, HourlyRate: cfg.HourlyRate}
	return engine.New(l, detector, res, limits, opts...), nil
}

// lotInfo builds the credential-free config view served by the API.
func lotInfo(cfg *config.Config) api.LotInfo {
	return api.LotInfo{
		LotName:      cfg.LotName,
		LineY:        cfg.LineY,
		Margin:       cfg.Margin,
		PlateGrammar: cfg.PlateGrammar,
		AlertsByMail: cfg.SMTP != nil,
	}
}
