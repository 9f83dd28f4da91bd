package pipeline

import (
	"log/slog"

	"github.com/JaimeStill/healthplan-dw/internal/document"
	"github.com/JaimeStill/healthplan-dw/internal/plans"
	"github.com/JaimeStill/healthplan-dw/internal/warehouse"
)

// Transform coerces and maps normalized documents into warehouse records.
// Documents that cannot be coerced are counted as failed and skipped, and
// services dropped during coercion are counted as skipped; the returned
// stats carry only those counts.
func Transform(docs []document.Value, opts plans.Options, logger *slog.Logger) ([]plans.Record, warehouse.LoadStats) {
	var stats warehouse.LoadStats
	records := make([]plans.Record, 0, len(docs))

	for i, doc := range docs {
		p, warns, err := plans.FromDocument(doc, opts)
		if err != nil {
			stats.Processed++
			stats.Failed++
			logger.Warn("plan document skipped", "index", i, "error", err)
			continue
		}

		for _, w := range warns {
			logger.Warn("plan document defaulted",
				"plan_id", w.PlanID,
				"field", w.Field,
				"detail", w.Message,
			)
		}

		stats.ServicesSkipped += p.SkippedServices
		records = append(records, plans.Map(p))
	}

	return records, stats
}
