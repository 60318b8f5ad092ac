package extract

import (
	"regexp"
	"strings"

	"github.com/flakewatch/flakewatch/internal/models"
)

// --- FAIL: TestSomething (0.03s)
var gotestResultLine = regexp.MustCompile(`^(\s*)--- (PASS|FAIL|SKIP): (\S+) \(([\d.]+)s\)`)

// GoTestParser recognises `go test -v` output, including subtests.
type GoTestParser struct{}

// NewGoTestParser constructs the go test convention parser.
func NewGoTestParser() *GoTestParser {
	return &GoTestParser{}
}

// Name identifies the convention.
func (p *GoTestParser) Name() string { return "gotest" }

// Parse extracts outcomes from go test output.
func (p *GoTestParser) Parse(raw string) []models.TestOutcome {
	lines := strings.Split(raw, "\n")
	outcomes := make([]models.TestOutcome, 0)

	for i, line := range lines {
		m := gotestResultLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		outcome := models.TestOutcome{
			TestID:   m[3],
			Duration: secondsToDuration(m[4]),
		}
		switch m[2] {
		case "PASS":
			outcome.Status = models.StatusPass
		case "SKIP":
			outcome.Status = models.StatusSkipped
		case "FAIL":
			outcome.Status = models.StatusFail
			outcome.FailureSignature = gotestSignature(lines, i+1, len(m[1]))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// gotestSignature gathers the output lines indented deeper than the result
// marker, stopping at the next marker or unindented line.
func gotestSignature(lines []string, start, markerIndent int) string {
	fragment := make([]string, 0, 12)
	for i := start; i < len(lines) && len(fragment) < 12; i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			break
		}
		if gotestResultLine.MatchString(line) || strings.HasPrefix(trimmed, "=== ") {
			break
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent <= markerIndent {
			break
		}
		fragment = append(fragment, trimmed)
	}
	return strings.Join(fragment, "\n")
}
