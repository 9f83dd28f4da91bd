package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/healthplan-dw/internal/plans"
	"github.com/JaimeStill/healthplan-dw/pkg/repository"
)

// LoadStats summarizes one Load call.
type LoadStats struct {
	Processed         int `json:"processed"`
	Inserted          int `json:"inserted"`
	Updated           int `json:"updated"`
	Unchanged         int `json:"unchanged"`
	Failed            int `json:"failed"`
	PlanFactsInserted int `json:"plan_facts_inserted"`
	ServicesLoaded    int `json:"services_loaded"`
	ServicesSkipped   int `json:"services_skipped"`
}

// Add accumulates o into s.
func (s *LoadStats) Add(o LoadStats) {
	s.Processed += o.Processed
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Unchanged += o.Unchanged
	s.Failed += o.Failed
	s.PlanFactsInserted += o.PlanFactsInserted
	s.ServicesLoaded += o.ServicesLoaded
	s.ServicesSkipped += o.ServicesSkipped
}

// Writer persists mapped plan records in dependency order.
type Writer struct {
	db     *sql.DB
	logger *slog.Logger
	opts   Options
	graph  *Graph
	steps  map[string]stepFunc
}

// NewWriter validates opts and builds a writer over db.
func NewWriter(db *sql.DB, logger *slog.Logger, opts Options) (*Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	w := &Writer{
		db:     db,
		logger: logger,
		opts:   opts,
		graph:  LoadGraph(),
	}
	w.steps = w.stepFuncs()
	return w, nil
}

// Load writes records. A record that fails is rolled back alone, counted and
// skipped. Only connection, savepoint or commit failures abort the load and
// are returned.
func (w *Writer) Load(ctx context.Context, records []plans.Record) (LoadStats, error) {
	states := make([]*recordState, len(records))
	for i, rec := range records {
		states[i] = newRecordState(rec)
	}

	var err error
	switch w.opts.CommitMode {
	case CommitTiered:
		err = w.loadTiered(ctx, states)
	default:
		err = w.loadPeriodic(ctx, states)
	}

	stats := tally(states)
	if err != nil {
		return stats, err
	}

	w.logger.Info("load complete",
		"mode", w.opts.CommitMode,
		"processed", stats.Processed,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"failed", stats.Failed,
		"services_loaded", stats.ServicesLoaded,
		"services_skipped", stats.ServicesSkipped,
	)
	return stats, nil
}

func (w *Writer) loadPeriodic(ctx context.Context, states []*recordState) error {
	order := w.graph.Order()

	for start := 0; start < len(states); start += w.opts.CommitEvery {
		end := min(start+w.opts.CommitEvery, len(states))
		batch := states[start:end]

		_, err := repository.WithTx(ctx, w.db, func(tx *sql.Tx) (struct{}, error) {
			for _, st := range batch {
				if err := w.applyRecord(ctx, tx, st, order); err != nil {
					return struct{}{}, err
				}
			}
			return struct{}{}, nil
		})
		if err != nil {
			return fmt.Errorf("commit records %d-%d: %w", start+1, end, err)
		}

		w.logger.Debug("batch committed", "from", start+1, "to", end)
	}
	return nil
}

func (w *Writer) loadTiered(ctx context.Context, states []*recordState) error {
	for i, tier := range w.graph.Tiers() {
		_, err := repository.WithTx(ctx, w.db, func(tx *sql.Tx) (struct{}, error) {
			for _, st := range states {
				if st.failed {
					continue
				}
				if err := w.applyRecord(ctx, tx, st, tier); err != nil {
					return struct{}{}, err
				}
			}
			return struct{}{}, nil
		})
		if err != nil {
			return fmt.Errorf("commit tier %d %v: %w", i, tier, err)
		}

		w.logger.Debug("tier committed", "tier", i, "steps", tier)
	}
	return nil
}

// applyRecord runs steps for st under a savepoint. A record-level failure
// marks st failed and returns nil; only errors that leave tx unusable are
// returned.
func (w *Writer) applyRecord(ctx context.Context, tx *sql.Tx, st *recordState, steps []string) error {
	err := repository.Savepoint(ctx, tx, "plan_record", func() error {
		for _, name := range steps {
			if err := w.steps[name](ctx, tx, st); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrSavepoint) || ctx.Err() != nil {
		return err
	}

	st.failed = true
	w.logger.Warn("plan record failed",
		"plan_id", st.rec.Plan.ID,
		"constraint", repository.IsConstraintViolation(err),
		"error", err,
	)
	return nil
}

func tally(states []*recordState) LoadStats {
	var s LoadStats
	for _, st := range states {
		s.Processed++
		if st.failed {
			s.Failed++
			s.ServicesSkipped += len(st.services)
			continue
		}

		switch {
		case st.plan.Found:
			s.Unchanged++
		case st.plan.Inserted:
			s.Inserted++
		default:
			s.Updated++
		}
		if st.planFactNew {
			s.PlanFactsInserted++
		}

		for _, ss := range st.services {
			if ss.loaded {
				s.ServicesLoaded++
			} else {
				s.ServicesSkipped++
			}
		}
	}
	return s
}
