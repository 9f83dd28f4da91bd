package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/JaimeStill/healthplan-dw/internal/plans"
	"github.com/JaimeStill/healthplan-dw/pkg/repository"
)

const (
	upsertDate = `
		INSERT INTO dim_date (
			date_key, date_value, year, quarter, month, month_name,
			day, day_of_week, day_name, week_of_year, is_weekend
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (date_key) DO NOTHING
		RETURNING date_key, (xmax = 0)`

	lookupDate = `SELECT date_key FROM dim_date WHERE date_key = $1`

	upsertOrg = `
		INSERT INTO dim_organization (org_id, org_name)
		VALUES ($1, $2)
		ON CONFLICT (org_id) DO UPDATE
		SET org_name = EXCLUDED.org_name, updated_at = now()
		WHERE dim_organization.org_name IS DISTINCT FROM EXCLUDED.org_name
		RETURNING org_key, (xmax = 0)`

	lookupOrg = `SELECT org_key FROM dim_organization WHERE org_id = $1`

	upsertPlanType = `
		INSERT INTO dim_plan_type (plan_type_code, plan_type_name)
		VALUES ($1, $2)
		ON CONFLICT (plan_type_code) DO NOTHING
		RETURNING plan_type_key, (xmax = 0)`

	lookupPlanType = `SELECT plan_type_key FROM dim_plan_type WHERE plan_type_code = $1`

	upsertPlanType1 = `
		INSERT INTO dim_plan (plan_id, plan_name, plan_type_key, org_key, is_current, effective_date)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (plan_id) DO UPDATE
		SET plan_name = EXCLUDED.plan_name,
			plan_type_key = EXCLUDED.plan_type_key,
			org_key = EXCLUDED.org_key,
			is_current = TRUE,
			updated_at = now()
		WHERE (dim_plan.plan_name, dim_plan.plan_type_key, dim_plan.org_key, dim_plan.is_current)
			IS DISTINCT FROM (EXCLUDED.plan_name, EXCLUDED.plan_type_key, EXCLUDED.org_key, TRUE)
		RETURNING plan_key, (xmax = 0)`

	insertPlan = `
		INSERT INTO dim_plan (plan_id, plan_name, plan_type_key, org_key, is_current, effective_date)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (plan_id) DO NOTHING
		RETURNING plan_key, (xmax = 0)`

	lookupPlan = `SELECT plan_key FROM dim_plan WHERE plan_id = $1`

	insertPlanCost = `
		INSERT INTO fact_plan_costs (
			plan_key, plan_type_key, org_key, creation_date_key,
			deductible, copay, total_cost_shares, service_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (plan_key, creation_date_key) DO NOTHING
		RETURNING plan_cost_key, (xmax = 0)`

	lookupPlanCost = `
		SELECT plan_cost_key FROM fact_plan_costs
		WHERE plan_key = $1 AND creation_date_key = $2`

	upsertServiceRefresh = `
		INSERT INTO dim_service (service_id, service_name, service_type, service_category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (service_id) DO UPDATE
		SET service_name = EXCLUDED.service_name,
			service_type = EXCLUDED.service_type,
			updated_at = now()
		WHERE (dim_service.service_name, dim_service.service_type)
			IS DISTINCT FROM (EXCLUDED.service_name, EXCLUDED.service_type)
		RETURNING service_key, (xmax = 0)`

	insertService = `
		INSERT INTO dim_service (service_id, service_name, service_type, service_category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (service_id) DO NOTHING
		RETURNING service_key, (xmax = 0)`

	lookupService = `SELECT service_key FROM dim_service WHERE service_id = $1`

	insertServiceCost = `
		INSERT INTO fact_service_costs (
			plan_key, service_key, plan_type_key, org_key, date_key, service_line,
			deductible, copay, total_service_cost
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (plan_key, service_key, date_key, service_line) DO NOTHING
		RETURNING service_cost_key, (xmax = 0)`

	lookupServiceCost = `
		SELECT service_cost_key FROM fact_service_costs
		WHERE plan_key = $1 AND service_key = $2 AND date_key = $3 AND service_line = $4`
)

// stepFunc writes one graph node for a record.
type stepFunc func(ctx context.Context, tx repository.Conn, st *recordState) error

type serviceState struct {
	svc      plans.Service
	key      int64
	resolved bool
	loaded   bool
	skipped  bool
}

// recordState carries the keys resolved so far for one plan record.
type recordState struct {
	rec plans.Record

	dateKey     int64
	orgKey      int64
	planTypeKey int64
	planKey     int64
	plan        repository.Upserted
	planFactNew bool

	services []serviceState
	failed   bool
}

func newRecordState(rec plans.Record) *recordState {
	st := &recordState{
		rec:      rec,
		services: make([]serviceState, len(rec.Services)),
	}
	for i, s := range rec.Services {
		st.services[i].svc = s
	}
	return st
}

func (w *Writer) stepFuncs() map[string]stepFunc {
	return map[string]stepFunc{
		StepDate:        w.writeDate,
		StepOrg:         w.writeOrg,
		StepPlanType:    w.writePlanType,
		StepPlan:        w.writePlan,
		StepPlanCost:    w.writePlanCost,
		StepService:     w.writeServices,
		StepServiceCost: w.writeServiceCosts,
	}
}

func resolve(ctx context.Context, q repository.Querier, upsert string, upsertArgs []any, lookup string, lookupArgs []any) (repository.Upserted, error) {
	res, err := repository.InsertOrLookup(ctx, q, upsert, upsertArgs, lookup, lookupArgs)
	if err != nil {
		return res, repository.MapError(err, ErrKeyNotResolved, err)
	}
	return res, nil
}

func (w *Writer) writeDate(ctx context.Context, tx repository.Conn, st *recordState) error {
	d := st.rec.Date
	res, err := resolve(ctx, tx,
		upsertDate, []any{
			d.Key(), d.Time(), d.Year, d.Quarter(), int(d.Month), d.MonthName(),
			d.Day, d.DayOfWeek(), d.DayName(), d.ISOWeek(), d.IsWeekend(),
		},
		lookupDate, []any{d.Key()},
	)
	if err != nil {
		return fmt.Errorf("dim_date %s: %w", d, err)
	}
	st.dateKey = res.Key
	return nil
}

func (w *Writer) writeOrg(ctx context.Context, tx repository.Conn, st *recordState) error {
	org := st.rec.Organization
	res, err := resolve(ctx, tx,
		upsertOrg, []any{org.ID, org.Name},
		lookupOrg, []any{org.ID},
	)
	if err != nil {
		return fmt.Errorf("dim_organization %s: %w", org.ID, err)
	}
	st.orgKey = res.Key
	return nil
}

func (w *Writer) writePlanType(ctx context.Context, tx repository.Conn, st *recordState) error {
	pt := st.rec.PlanType
	res, err := resolve(ctx, tx,
		upsertPlanType, []any{pt.Code, pt.Name},
		lookupPlanType, []any{pt.Code},
	)
	if err != nil {
		return fmt.Errorf("dim_plan_type %s: %w", pt.Code, err)
	}
	st.planTypeKey = res.Key
	return nil
}

func (w *Writer) writePlan(ctx context.Context, tx repository.Conn, st *recordState) error {
	p := st.rec.Plan

	upsert := upsertPlanType1
	if w.opts.PlanPolicy == PlanInsertOnly {
		upsert = insertPlan
	}

	res, err := resolve(ctx, tx,
		upsert, []any{p.ID, p.Name, st.planTypeKey, st.orgKey, p.EffectiveDate.Time()},
		lookupPlan, []any{p.ID},
	)
	if err != nil {
		return fmt.Errorf("dim_plan %s: %w", p.ID, err)
	}
	st.planKey = res.Key
	st.plan = res
	return nil
}

func (w *Writer) writePlanCost(ctx context.Context, tx repository.Conn, st *recordState) error {
	c := st.rec.PlanCost
	res, err := resolve(ctx, tx,
		insertPlanCost, []any{
			st.planKey, st.planTypeKey, st.orgKey, st.dateKey,
			c.CostShares.Deductible, c.CostShares.Copay, c.CostShares.Total(), c.ServiceCount,
		},
		lookupPlanCost, []any{st.planKey, st.dateKey},
	)
	if err != nil {
		return fmt.Errorf("fact_plan_costs %s: %w", st.rec.Plan.ID, err)
	}
	st.planFactNew = res.Inserted && !res.Found
	return nil
}

// writeServices resolves the service dimension key of every linked service.
// A service that fails is rolled back alone and skipped.
func (w *Writer) writeServices(ctx context.Context, tx repository.Conn, st *recordState) error {
	upsert := upsertServiceRefresh
	if w.opts.ServicePolicy == ServiceImmutable {
		upsert = insertService
	}

	for i := range st.services {
		ss := &st.services[i]
		if ss.skipped {
			continue
		}

		err := repository.Savepoint(ctx, tx, "plan_service", func() error {
			res, err := resolve(ctx, tx,
				upsert, []any{ss.svc.Key, ss.svc.Name, ss.svc.Type, ss.svc.Category},
				lookupService, []any{ss.svc.Key},
			)
			if err != nil {
				return fmt.Errorf("dim_service %s: %w", ss.svc.Key, err)
			}
			ss.key = res.Key
			ss.resolved = true
			return nil
		})
		if err != nil {
			if errors.Is(err, repository.ErrSavepoint) {
				return err
			}
			w.skipService(st, ss, err)
		}
	}
	return nil
}

func (w *Writer) writeServiceCosts(ctx context.Context, tx repository.Conn, st *recordState) error {
	for i := range st.services {
		ss := &st.services[i]
		if ss.skipped || !ss.resolved {
			continue
		}

		c := ss.svc.CostShares
		err := repository.Savepoint(ctx, tx, "plan_service", func() error {
			_, err := resolve(ctx, tx,
				insertServiceCost, []any{
					st.planKey, ss.key, st.planTypeKey, st.orgKey, st.dateKey, ss.svc.Line,
					c.Deductible, c.Copay, c.Total(),
				},
				lookupServiceCost, []any{st.planKey, ss.key, st.dateKey, ss.svc.Line},
			)
			if err != nil {
				return fmt.Errorf("fact_service_costs %s line %d: %w", ss.svc.Key, ss.svc.Line, err)
			}
			ss.loaded = true
			return nil
		})
		if err != nil {
			if errors.Is(err, repository.ErrSavepoint) {
				return err
			}
			w.skipService(st, ss, err)
		}
	}
	return nil
}

func (w *Writer) skipService(st *recordState, ss *serviceState, err error) {
	ss.skipped = true
	w.logger.Warn("service skipped",
		"plan_id", st.rec.Plan.ID,
		"service", ss.svc.Key,
		"line", ss.svc.Line,
		"missing_reference", repository.IsForeignKeyViolation(err),
		"error", err,
	)
}
