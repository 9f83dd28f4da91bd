package warehouse

import "fmt"

// CommitMode selects how the writer groups records into transactions.
type CommitMode string

const (
	// CommitPeriodic commits every CommitEvery records. Each record runs
	// under its own savepoint.
	CommitPeriodic CommitMode = "periodic"
	// CommitTiered runs every record through one dependency tier at a time
	// and commits after each tier.
	CommitTiered CommitMode = "tiered"
)

// PlanPolicy selects the conflict behavior of dim_plan.
type PlanPolicy string

const (
	// PlanType1 overwrites name, plan type and organization on conflict.
	PlanType1 PlanPolicy = "type1"
	// PlanInsertOnly leaves an existing plan row untouched.
	PlanInsertOnly PlanPolicy = "insert_only"
)

// ServicePolicy selects the conflict behavior of dim_service.
type ServicePolicy string

const (
	// ServiceRefresh overwrites name and type on conflict.
	ServiceRefresh ServicePolicy = "refresh"
	// ServiceImmutable leaves an existing service row untouched.
	ServiceImmutable ServicePolicy = "immutable"
)

// Options configure the warehouse writer.
type Options struct {
	CommitMode    CommitMode
	CommitEvery   int
	PlanPolicy    PlanPolicy
	ServicePolicy ServicePolicy
}

// DefaultOptions returns periodic commits of ten records with type-1 plans
// and refreshed service names.
func DefaultOptions() Options {
	return Options{
		CommitMode:    CommitPeriodic,
		CommitEvery:   10,
		PlanPolicy:    PlanType1,
		ServicePolicy: ServiceRefresh,
	}
}

// Validate rejects unknown modes and policies.
func (o Options) Validate() error {
	switch o.CommitMode {
	case CommitPeriodic, CommitTiered:
	default:
		return fmt.Errorf("%w: commit_mode %q", ErrInvalidOption, o.CommitMode)
	}
	if o.CommitMode == CommitPeriodic && o.CommitEvery < 1 {
		return fmt.Errorf("%w: commit_every must be positive", ErrInvalidOption)
	}
	switch o.PlanPolicy {
	case PlanType1, PlanInsertOnly:
	default:
		return fmt.Errorf("%w: plan_policy %q", ErrInvalidOption, o.PlanPolicy)
	}
	switch o.ServicePolicy {
	case ServiceRefresh, ServiceImmutable:
	default:
		return fmt.Errorf("%w: service_policy %q", ErrInvalidOption, o.ServicePolicy)
	}
	return nil
}
