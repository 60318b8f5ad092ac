package engine

import (
	"log/slog"
	"time"

	"github.com/flakewatch/flakewatch/internal/models"
)

// AssembleInput bundles the pieces of a diagnosis ready for aggregation.
type AssembleInput struct {
	RunCount       int
	Records        []models.FlakyTestRecord
	Assessments    []models.ConfidenceAssessment
	Correlations   []models.CorrelationEntry
	LayerSummaries []models.LayerSummary
	DurationTrend  models.TrendSummary
	Overall        models.OverallConfidence
	DataGaps       []string
}

// Assemble aggregates the classifier and statistics outputs into one report.
// No new computation happens here beyond reference validation: an evidence
// reference naming a dimension with no assessment in the input is dangling,
// and is dropped with a log line rather than failing the whole assembly.
func Assemble(logger *slog.Logger, in AssembleInput) models.DiagnosisReport {
	if logger == nil {
		logger = slog.Default()
	}

	assessed := make(map[models.DimensionID]struct{}, len(in.Assessments))
	for _, assessment := range in.Assessments {
		assessed[assessment.Dimension] = struct{}{}
	}

	records := make([]models.FlakyTestRecord, 0, len(in.Records))
	for _, record := range in.Records {
		kept := make([]models.EvidenceRef, 0, len(record.Evidence))
		for _, ref := range record.Evidence {
			if ref.Dimension != "" {
				if _, ok := assessed[ref.Dimension]; !ok {
					logger.Warn("dropping dangling evidence reference",
						slog.String("test_id", record.TestID),
						slog.String("dimension", string(ref.Dimension)))
					continue
				}
			}
			kept = append(kept, ref)
		}
		record.Evidence = kept
		records = append(records, record)
	}

	return models.DiagnosisReport{
		GeneratedAt:          time.Now().UTC(),
		RunCount:             in.RunCount,
		FlakyTests:           records,
		DimensionAssessments: in.Assessments,
		Correlations:         in.Correlations,
		LayerSummaries:       in.LayerSummaries,
		DurationTrend:        in.DurationTrend,
		OverallConfidence:    in.Overall,
		DataGaps:             in.DataGaps,
	}
}
