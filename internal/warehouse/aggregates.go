package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JaimeStill/healthplan-dw/pkg/repository"
)

const refreshDailyAggregates = `
	INSERT INTO agg_daily_plan_costs (
		date_key, plan_type_key, total_plans, avg_deductible, avg_copay, total_cost_shares
	)
	SELECT
		creation_date_key,
		plan_type_key,
		COUNT(*),
		ROUND(AVG(deductible), 2),
		ROUND(AVG(copay), 2),
		SUM(total_cost_shares)
	FROM fact_plan_costs
	GROUP BY creation_date_key, plan_type_key
	ON CONFLICT (date_key, plan_type_key) DO UPDATE
	SET total_plans = EXCLUDED.total_plans,
		avg_deductible = EXCLUDED.avg_deductible,
		avg_copay = EXCLUDED.avg_copay,
		total_cost_shares = EXCLUDED.total_cost_shares,
		updated_at = now()`

// refreshAggregates recomputes agg_daily_plan_costs from fact_plan_costs.
// With rebuild set the table is emptied first so groups that no longer
// exist in the facts disappear.
func refreshAggregates(ctx context.Context, db *sql.DB, rebuild bool) (int64, error) {
	return repository.WithTx(ctx, db, func(tx *sql.Tx) (int64, error) {
		if rebuild {
			if _, err := tx.ExecContext(ctx, "DELETE FROM agg_daily_plan_costs"); err != nil {
				return 0, fmt.Errorf("clear agg_daily_plan_costs: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, refreshDailyAggregates)
		if err != nil {
			return 0, fmt.Errorf("refresh agg_daily_plan_costs: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		return n, nil
	})
}
