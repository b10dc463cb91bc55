// Package config loads and validates the parkd lot configuration.
//
// The file is YAML for operators; validity is defined by an embedded CUE
// schema, so violations are reported with field paths and defaults are
// applied through unification rather than ad hoc Go checks.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/uday-raj-malik/Smart-Parking-System/internal/alert"
)

//go:embed schema.cue
var schemaCUE string

// Config is the validated lot configuration.
type Config struct {
	LotName      string            `json:"lot_name"`
	LineY        float64           `json:"line_y"`
	Margin       float64           `json:"margin"`
	MaxCapacity  int               `json:"max_capacity"`
	HourlyRate   float64           `json:"hourly_rate"`
	PlateGrammar string            `json:"plate_grammar"`
	Database     string            `json:"database"`
	ListenAddr   string            `json:"listen_addr"`
	SMTP         *alert.SMTPConfig `json:"smtp,omitempty"`
}

// ValidationError is one schema violation with its config path.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// fieldPath renders a CUE error path as the operator-facing config field
// path. Validation runs against the unified #Config definition, so the
// reported path starts with the definition's own name; strip it.
func fieldPath(path []string) string {
	if len(path) > 0 && path[0] == "#Config" {
		path = path[1:]
	}
	return strings.Join(path, ".")
}

// Load reads, validates, and decodes a config file. On schema violations
// it returns every violation, not just the first.
func Load(path string) (*Config, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read config: %w", err)}
	}
	return Parse(path, data)
}

// Parse validates and decodes config file contents. The filename is used
// for error positions only.
func Parse(filename string, data []byte) (*Config, []error) {
	cctx := cuecontext.New()

	schema := cctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{fmt.Errorf("compile config schema: %w", err)}
	}
	defn := schema.LookupPath(cue.ParsePath("#Config"))
	if err := defn.Err(); err != nil {
		return nil, []error{fmt.Errorf("lookup config schema: %w", err)}
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return nil, []error{fmt.Errorf("parse yaml: %w", err)}
	}
	value := cctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return nil, []error{fmt.Errorf("build config value: %w", err)}
	}

	unified := defn.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var errs []error
		for _, e := range cueerrors.Errors(err) {
			format, args := e.Msg()
			errs = append(errs, &ValidationError{
				Path:    fieldPath(e.Path()),
				Message: fmt.Sprintf(format, args...),
			})
		}
		return nil, errs
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, []error{fmt.Errorf("decode config: %w", err)}
	}
	return &cfg, nil
}
