package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flakewatch/flakewatch/internal/models"
)

var (
	// testMethod(com.example.FooTest)  Time elapsed: 0.12 s  <<< FAILURE!
	surefireTestLine = regexp.MustCompile(`^(\w[\w$]*)\(([\w.$]+)\)\s+Time elapsed:\s+([\d.]+)\s+s(?:ec)?\s+<<<\s+(FAILURE|ERROR)!`)
	// Tests run: 5, Failures: 1, Errors: 0, Skipped: 1[, Time elapsed: 3.21 s ...]
	surefireSummary = regexp.MustCompile(`^Tests run:\s*(\d+),\s*Failures:\s*(\d+),\s*Errors:\s*(\d+),\s*Skipped:\s*(\d+)(?:,\s*Time elapsed:\s*([\d.]+)\s*s)?`)
	surefireRunning = regexp.MustCompile(`^Running\s+([\w.$]+)`)
)

// SurefireParser recognises Maven Surefire console output. Failed and errored
// tests are reported individually by Surefire; passing tests only appear in
// the per-class summary, so a fully green class yields a single class-level
// pass outcome rather than fabricated per-method records.
type SurefireParser struct{}

// NewSurefireParser constructs the Surefire convention parser.
func NewSurefireParser() *SurefireParser {
	return &SurefireParser{}
}

// Name identifies the convention.
func (p *SurefireParser) Name() string { return "surefire" }

// Parse extracts outcomes from Surefire-convention output.
func (p *SurefireParser) Parse(raw string) []models.TestOutcome {
	lines := strings.Split(raw, "\n")
	outcomes := make([]models.TestOutcome, 0)
	currentClass := ""

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if m := surefireRunning.FindStringSubmatch(trimmed); m != nil {
			currentClass = m[1]
			continue
		}

		if m := surefireTestLine.FindStringSubmatch(trimmed); m != nil {
			status := models.StatusFail
			if m[4] == "ERROR" {
				status = models.StatusError
			}
			outcomes = append(outcomes, models.TestOutcome{
				TestID:           m[2] + "." + m[1],
				Status:           status,
				Duration:         secondsToDuration(m[3]),
				FailureSignature: collectSignature(lines, i+1, 12),
			})
			continue
		}

		if m := surefireSummary.FindStringSubmatch(trimmed); m != nil {
			failures, _ := strconv.Atoi(m[2])
			errs, _ := strconv.Atoi(m[3])
			if failures == 0 && errs == 0 && currentClass != "" {
				outcomes = append(outcomes, models.TestOutcome{
					TestID:   currentClass,
					Status:   models.StatusPass,
					Duration: secondsToDuration(m[5]),
				})
			}
			currentClass = ""
		}
	}
	return outcomes
}

func secondsToDuration(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
