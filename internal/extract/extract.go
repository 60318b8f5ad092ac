// Package extract normalises raw build output into structured test outcomes.
// Parsing is stateless and order-preserving: identical input always yields an
// identical outcome list, and unrecognised lines are skipped, not errors.
package extract

import (
	"strings"

	"github.com/flakewatch/flakewatch/internal/models"
)

// Parser recognises one test framework's output convention. Implementations
// must be pure functions over the raw text.
type Parser interface {
	Name() string
	Parse(raw string) []models.TestOutcome
}

// Extractor runs every registered parser over the output in order.
type Extractor struct {
	parsers []Parser
}

// NewExtractor builds an extractor; with no parsers supplied it recognises
// the Surefire and go test conventions.
func NewExtractor(parsers ...Parser) *Extractor {
	if len(parsers) == 0 {
		parsers = []Parser{NewSurefireParser(), NewGoTestParser()}
	}
	return &Extractor{parsers: parsers}
}

// Extract returns one TestOutcome per identifiable test. Output no parser
// recognises degrades to zero outcomes.
func (e *Extractor) Extract(raw string) []models.TestOutcome {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	outcomes := make([]models.TestOutcome, 0)
	for _, parser := range e.parsers {
		outcomes = append(outcomes, parser.Parse(raw)...)
	}
	return outcomes
}

// collectSignature gathers the indented/stack lines following a failure
// marker, capped so a pathological trace does not balloon the outcome.
func collectSignature(lines []string, start, maxLines int) string {
	fragment := make([]string, 0, maxLines)
	for i := start; i < len(lines) && len(fragment) < maxLines; i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			break
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") &&
			!strings.HasPrefix(trimmed, "at ") && !strings.Contains(trimmed, "Exception") &&
			!strings.Contains(trimmed, "Error") {
			break
		}
		fragment = append(fragment, trimmed)
	}
	return strings.Join(fragment, "\n")
}
