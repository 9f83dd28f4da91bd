package plans

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/JaimeStill/healthplan-dw/internal/document"
)

// FromDocument coerces a normalized plan document. Absent or malformed fields
// fall back to their defaults and are reported as warnings. Only a value that
// is not a mapping is an error.
func FromDocument(doc document.Value, opts Options) (Plan, []Warning, error) {
	if !doc.IsMap() {
		return Plan{}, nil, fmt.Errorf("%w: got %s", ErrNotDocument, doc.Kind())
	}

	p := Plan{
		ID:       planID(doc),
		OrgID:    textOr(doc.Get("_org"), Unknown),
		PlanType: textOr(doc.Get("planType"), Unknown),
	}

	var warns []Warning
	warn := func(field, format string, args ...any) {
		warns = append(warns, Warning{PlanID: p.ID, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	date, err := DateFromValue(doc.Get("creationDate"))
	if err != nil {
		date = opts.FallbackDate
		warn("creationDate", "%v; using %s", err, date)
	}
	p.CreationDate = date

	p.CostShares = costShares(doc.Get("planCostShares"), func(field string) {
		warn("planCostShares."+field, "non-numeric value; using 0")
	})

	linked := doc.Get("linkedPlanServices")
	switch linked.Kind() {
	case document.KindNull:
	case document.KindSeq:
		for i, entry := range linked.Items() {
			line := i + 1
			svc, ok, reason := linkedService(entry, line, opts, func(field string) {
				warn(fmt.Sprintf("linkedPlanServices[%d].%s", i, field), "non-numeric value; using 0")
			})
			if !ok {
				warn(fmt.Sprintf("linkedPlanServices[%d]", i), "skipped: %s", reason)
				p.SkippedServices++
				continue
			}
			p.Services = append(p.Services, svc)
		}
	default:
		warn("linkedPlanServices", "expected sequence, got %s", linked.Kind())
	}

	return p, warns, nil
}

func planID(doc document.Value) string {
	if id, ok := nonEmptyText(doc.Get("objectId")); ok {
		return id
	}
	if id, ok := nonEmptyText(doc.Get("_id")); ok {
		return id
	}
	return Unknown
}

func linkedService(entry document.Value, line int, opts Options, onBad func(string)) (LinkedService, bool, string) {
	if !entry.IsMap() {
		return LinkedService{}, false, fmt.Sprintf("entry is %s, not a mapping", entry.Kind())
	}

	ls := entry.Get("linkedService")
	if !ls.IsMap() {
		return LinkedService{}, false, "linkedService is not a mapping"
	}

	svc := LinkedService{
		Line: line,
		ID:   textOr(ls.Get("objectId"), ""),
		Name: textOr(ls.Get("name"), ""),
		Type: textOr(ls.Get("objectType"), DefaultServiceType),
	}

	switch opts.ServiceKey {
	case ServiceKeyName:
		svc.Key = svc.Name
	default:
		svc.Key = svc.ID
	}
	if svc.Key == "" {
		return LinkedService{}, false, fmt.Sprintf("linkedService has no %s", opts.ServiceKey)
	}
	if svc.Name == "" {
		svc.Name = UnknownServiceName
	}

	var shares document.Value
	switch opts.CostPath {
	case CostPathLegacyNested:
		shares = ls.Get("planserviceCostShares")
	default:
		shares = entry.Get("planserviceCostShares")
	}
	svc.CostShares = costShares(shares, func(field string) {
		onBad("planserviceCostShares." + field)
	})

	return svc, true, ""
}

// costShares reads deductible and copay, defaulting each to zero. onBad is
// called for a field that is present but not a number.
func costShares(v document.Value, onBad func(field string)) CostShares {
	return CostShares{
		Deductible: amount(v, "deductible", onBad),
		Copay:      amount(v, "copay", onBad),
	}
}

func amount(v document.Value, field string, onBad func(string)) decimal.Decimal {
	f := v.Get(field)
	if f.IsNull() {
		return decimal.Zero
	}
	d, ok := f.Decimal()
	if !ok {
		onBad(field)
		return decimal.Zero
	}
	return d
}

func textOr(v document.Value, fallback string) string {
	if s, ok := nonEmptyText(v); ok {
		return s
	}
	return fallback
}

func nonEmptyText(v document.Value) (string, bool) {
	s, ok := v.Text()
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
