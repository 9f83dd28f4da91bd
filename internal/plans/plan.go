// Package plans turns normalized plan documents into warehouse rows.
//
// FromDocument coerces a document.Value into a typed Plan, applying every
// source-side default. Map then projects a Plan onto the dimension and fact
// rows the warehouse writer persists.
package plans

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Defaults applied to absent source fields.
const (
	Unknown            = "unknown"
	UnknownServiceName = "Unknown Service"
	DefaultServiceType = "service"
	ServiceCategory    = "Healthcare Service"
)

// ServiceKey selects the natural key of the service dimension.
type ServiceKey string

const (
	ServiceKeyID   ServiceKey = "id"
	ServiceKeyName ServiceKey = "name"
)

// CostPath selects where a linked service's cost shares are read from.
type CostPath string

const (
	// CostPathFlat reads linkedPlanServices[i].planserviceCostShares.
	CostPathFlat CostPath = "flat"
	// CostPathLegacyNested reads linkedPlanServices[i].linkedService.planserviceCostShares.
	CostPathLegacyNested CostPath = "legacy_nested"
)

// Options control how documents are coerced.
type Options struct {
	ServiceKey   ServiceKey
	CostPath     CostPath
	FallbackDate CalendarDate
}

// DefaultOptions returns id-keyed services, flat cost shares and the default fallback date.
func DefaultOptions() Options {
	return Options{
		ServiceKey:   ServiceKeyID,
		CostPath:     CostPathFlat,
		FallbackDate: DefaultFallbackDate,
	}
}

// Validate rejects unknown option values.
func (o Options) Validate() error {
	switch o.ServiceKey {
	case ServiceKeyID, ServiceKeyName:
	default:
		return fmt.Errorf("%w: service_key %q", ErrInvalidOption, o.ServiceKey)
	}
	switch o.CostPath {
	case CostPathFlat, CostPathLegacyNested:
	default:
		return fmt.Errorf("%w: cost_path %q", ErrInvalidOption, o.CostPath)
	}
	if o.FallbackDate.IsZero() {
		return fmt.Errorf("%w: fallback date required", ErrInvalidOption)
	}
	return nil
}

// CostShares is a deductible and copay pair.
type CostShares struct {
	Deductible decimal.Decimal
	Copay      decimal.Decimal
}

// Total returns deductible plus copay.
func (c CostShares) Total() decimal.Decimal {
	return c.Deductible.Add(c.Copay)
}

// LinkedService is one entry of a plan's linkedPlanServices.
type LinkedService struct {
	// Line is the 1-based position of the entry in the source sequence.
	Line       int
	Key        string
	ID         string
	Name       string
	Type       string
	CostShares CostShares
}

// Plan is a coerced plan document.
type Plan struct {
	ID           string
	OrgID        string
	PlanType     string
	CreationDate CalendarDate
	CostShares   CostShares
	Services     []LinkedService
	// SkippedServices counts linkedPlanServices entries dropped as malformed.
	SkippedServices int
}

// Warning describes a source anomaly that was defaulted or skipped.
type Warning struct {
	PlanID  string
	Field   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("plan %s: %s: %s", w.PlanID, w.Field, w.Message)
}
