package identity

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultPlateGrammar matches the plate format used by the pilot deployment:
// two letters followed by five digits.
const DefaultPlateGrammar = `^[A-Z]{2}[0-9]{5}$`

// Grammar is the plate format-validation policy. OCR output is normalized
// and cleaned before the pattern is applied, so the pattern only ever sees
// uppercase A-Z and 0-9.
type Grammar struct {
	pattern *regexp.Regexp
}

// NewGrammar compiles a plate grammar from a regular expression.
func NewGrammar(pattern string) (*Grammar, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile plate grammar %q: %w", pattern, err)
	}
	return &Grammar{pattern: re}, nil
}

// MustGrammar is NewGrammar for patterns known valid at compile time.
func MustGrammar(pattern string) *Grammar {
	g, err := NewGrammar(pattern)
	if err != nil {
		panic(err)
	}
	return g
}

// CleanPlateText normalizes raw OCR output into candidate plate text:
// NFKC normalization (folds fullwidth and compatibility forms the OCR
// engine occasionally emits), uppercasing, then stripping everything
// outside A-Z0-9.
func CleanPlateText(raw string) string {
	normalized := norm.NFKC.String(raw)
	upper := strings.ToUpper(normalized)

	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate cleans raw OCR text and checks it against the grammar.
// Returns the cleaned plate on success.
func (g *Grammar) Validate(raw string) (string, bool) {
	cleaned := CleanPlateText(raw)
	if cleaned == "" || !g.pattern.MatchString(cleaned) {
		return cleaned, false
	}
	return cleaned, true
}
