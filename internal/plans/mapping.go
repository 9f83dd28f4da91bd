package plans

import (
	"strings"
	"unicode"
)

// Organization is a dim_organization row.
type Organization struct {
	ID   string
	Name string
}

// PlanType is a dim_plan_type row.
type PlanType struct {
	Code string
	Name string
}

// PlanRow is a dim_plan row.
type PlanRow struct {
	ID            string
	Name          string
	EffectiveDate CalendarDate
}

// PlanCost is a fact_plan_costs row.
type PlanCost struct {
	CostShares   CostShares
	ServiceCount int
}

// Service is a dim_service row paired with its fact_service_costs measures.
type Service struct {
	Key        string
	Name       string
	Type       string
	Category   string
	Line       int
	CostShares CostShares
}

// Record is the full set of warehouse rows derived from one plan document.
// Surrogate keys are resolved by the writer.
type Record struct {
	Date         CalendarDate
	Organization Organization
	PlanType     PlanType
	Plan         PlanRow
	PlanCost     PlanCost
	Services     []Service
}

// Map projects p onto warehouse rows.
func Map(p Plan) Record {
	rec := Record{
		Date: p.CreationDate,
		Organization: Organization{
			ID:   p.OrgID,
			Name: p.OrgID,
		},
		PlanType: PlanType{
			Code: p.PlanType,
			Name: DisplayName(p.PlanType),
		},
		Plan: PlanRow{
			ID:            p.ID,
			Name:          p.PlanType + " Plan",
			EffectiveDate: p.CreationDate,
		},
		PlanCost: PlanCost{
			CostShares:   p.CostShares,
			ServiceCount: len(p.Services),
		},
		Services: make([]Service, 0, len(p.Services)),
	}

	for _, s := range p.Services {
		rec.Services = append(rec.Services, Service{
			Key:        s.Key,
			Name:       s.Name,
			Type:       s.Type,
			Category:   ServiceCategory,
			Line:       s.Line,
			CostShares: s.CostShares,
		})
	}

	return rec
}

// DisplayName turns a plan type code into a display name: underscores
// become spaces and every letter run is title-cased.
//
//	"inpatient"       -> "Inpatient"
//	"high_deductible" -> "High Deductible"
//	"out-of-network"  -> "Out-Of-Network"
func DisplayName(code string) string {
	s := strings.ReplaceAll(code, "_", " ")

	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, c := range s {
		if unicode.IsLetter(c) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(c))
			} else {
				b.WriteRune(unicode.ToTitle(c))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(c)
		prevLetter = false
	}
	return b.String()
}
