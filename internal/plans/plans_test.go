package plans_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JaimeStill/healthplan-dw/internal/document"
	"github.com/JaimeStill/healthplan-dw/internal/plans"
)

func obj(pairs ...any) document.Value {
	fields := make([]document.Field, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields = append(fields, document.Field{Key: pairs[i].(string), Value: val(pairs[i+1])})
	}
	return document.Object(fields...)
}

func val(v any) document.Value {
	switch t := v.(type) {
	case document.Value:
		return t
	case string:
		return document.String(t)
	case int:
		return document.Int(int64(t))
	case nil:
		return document.Null()
	}
	panic("unsupported test value")
}

func samplePlan() document.Value {
	return obj(
		"objectId", "P1",
		"_org", "OrgA",
		"planType", "inpatient",
		"creationDate", "2024-03-15",
		"planCostShares", obj("deductible", 2000, "copay", 23),
		"linkedPlanServices", document.Seq(
			obj(
				"linkedService", obj("objectId", "S1", "name", "Yearly physical", "objectType", "service"),
				"planserviceCostShares", obj("deductible", 10, "copay", 175),
			),
			obj(
				"linkedService", obj("objectId", "S2", "name", "Well baby"),
				"planserviceCostShares", obj("deductible", 0, "copay", 0),
			),
		),
	)
}

func TestFromDocumentAndMap(t *testing.T) {
	p, warns, err := plans.FromDocument(samplePlan(), plans.DefaultOptions())
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}
	if len(warns) != 0 {
		t.Errorf("unexpected warnings: %v", warns)
	}

	rec := plans.Map(p)

	if rec.Date.Key() != 20240315 {
		t.Errorf("date key = %d, want 20240315", rec.Date.Key())
	}
	if rec.Organization.ID != "OrgA" || rec.Organization.Name != "OrgA" {
		t.Errorf("organization = %+v", rec.Organization)
	}
	if rec.PlanType.Code != "inpatient" || rec.PlanType.Name != "Inpatient" {
		t.Errorf("plan type = %+v", rec.PlanType)
	}
	if rec.Plan.ID != "P1" || rec.Plan.Name != "inpatient Plan" {
		t.Errorf("plan = %+v", rec.Plan)
	}
	if !rec.PlanCost.CostShares.Total().Equal(decimal.NewFromInt(2023)) {
		t.Errorf("total = %s, want 2023", rec.PlanCost.CostShares.Total())
	}
	if rec.PlanCost.ServiceCount != 2 {
		t.Errorf("service count = %d, want 2", rec.PlanCost.ServiceCount)
	}
	if len(rec.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(rec.Services))
	}

	s1 := rec.Services[0]
	if s1.Key != "S1" || s1.Line != 1 || s1.Category != plans.ServiceCategory {
		t.Errorf("service 1 = %+v", s1)
	}
	if !s1.CostShares.Total().Equal(decimal.NewFromInt(185)) {
		t.Errorf("service 1 total = %s, want 185", s1.CostShares.Total())
	}
	if rec.Services[1].Type != plans.DefaultServiceType || rec.Services[1].Line != 2 {
		t.Errorf("service 2 = %+v", rec.Services[1])
	}
}

func TestFromDocumentDefaults(t *testing.T) {
	p, _, err := plans.FromDocument(obj("_id", "abc123"), plans.DefaultOptions())
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}

	if p.ID != "abc123" {
		t.Errorf("id = %q, want _id fallback", p.ID)
	}
	if p.OrgID != plans.Unknown {
		t.Errorf("org = %q, want unknown", p.OrgID)
	}
	if p.PlanType != plans.Unknown {
		t.Errorf("plan type = %q, want unknown", p.PlanType)
	}
	if p.CreationDate != plans.DefaultFallbackDate {
		t.Errorf("date = %s, want fallback", p.CreationDate)
	}
	if !p.CostShares.Deductible.IsZero() || !p.CostShares.Copay.IsZero() {
		t.Errorf("cost shares = %+v, want zero", p.CostShares)
	}
	if len(p.Services) != 0 {
		t.Errorf("services = %d, want 0", len(p.Services))
	}

	p, _, _ = plans.FromDocument(obj(), plans.DefaultOptions())
	if p.ID != plans.Unknown {
		t.Errorf("id = %q, want unknown", p.ID)
	}
}

func TestFromDocumentNotMapping(t *testing.T) {
	if _, _, err := plans.FromDocument(document.String("x"), plans.DefaultOptions()); err == nil {
		t.Error("expected error for non-mapping document")
	}
}

func TestFromDocumentNonNumericCosts(t *testing.T) {
	doc := obj("objectId", "P2", "planCostShares", obj("deductible", "lots", "copay", 5))

	p, warns, err := plans.FromDocument(doc, plans.DefaultOptions())
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}
	if !p.CostShares.Deductible.IsZero() {
		t.Errorf("deductible = %s, want 0", p.CostShares.Deductible)
	}
	if !p.CostShares.Copay.Equal(decimal.NewFromInt(5)) {
		t.Errorf("copay = %s, want 5", p.CostShares.Copay)
	}
	if len(warns) != 2 {
		t.Errorf("warnings = %v, want deductible and date", warns)
	}
}

func TestFromDocumentSkipsServices(t *testing.T) {
	doc := obj(
		"objectId", "P3",
		"creationDate", "2024-01-01",
		"linkedPlanServices", document.Seq(
			obj("linkedService", "S1"),
			obj("linkedService", obj("name", "No id")),
			document.Int(4),
			obj("linkedService", obj("objectId", "S9")),
		),
	)

	p, warns, err := plans.FromDocument(doc, plans.DefaultOptions())
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}
	if len(p.Services) != 1 {
		t.Fatalf("services = %d, want 1", len(p.Services))
	}
	if p.Services[0].Line != 4 || p.Services[0].Name != plans.UnknownServiceName {
		t.Errorf("service = %+v", p.Services[0])
	}
	if len(warns) != 3 {
		t.Errorf("warnings = %d, want 3", len(warns))
	}
	if p.SkippedServices != 3 {
		t.Errorf("skipped services = %d, want 3", p.SkippedServices)
	}
}

func TestFromDocumentServiceOptions(t *testing.T) {
	doc := obj(
		"objectId", "P4",
		"creationDate", "2024-01-01",
		"linkedPlanServices", document.Seq(
			obj(
				"linkedService", obj(
					"objectId", "S1",
					"name", "Physical",
					"planserviceCostShares", obj("copay", 7),
				),
				"planserviceCostShares", obj("copay", 3),
			),
		),
	)

	tests := []struct {
		name    string
		opts    plans.Options
		wantKey string
		copay   int64
	}{
		{"id flat", plans.DefaultOptions(), "S1", 3},
		{"name legacy", plans.Options{
			ServiceKey:   plans.ServiceKeyName,
			CostPath:     plans.CostPathLegacyNested,
			FallbackDate: plans.DefaultFallbackDate,
		}, "Physical", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, err := plans.FromDocument(doc, tt.opts)
			if err != nil {
				t.Fatalf("FromDocument failed: %v", err)
			}
			if got := p.Services[0].Key; got != tt.wantKey {
				t.Errorf("key = %q, want %q", got, tt.wantKey)
			}
			if !p.Services[0].CostShares.Copay.Equal(decimal.NewFromInt(tt.copay)) {
				t.Errorf("copay = %s, want %d", p.Services[0].CostShares.Copay, tt.copay)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"inpatient", "Inpatient"},
		{"high_deductible", "High Deductible"},
		{"out-of-network", "Out-Of-Network"},
		{"tier_2b", "Tier 2B"},
		{"PPO", "Ppo"},
		{"unknown", "Unknown"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := plans.DisplayName(tt.code); got != tt.want {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestDateFromValue(t *testing.T) {
	millis := time.Date(2023, 7, 4, 12, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name    string
		v       document.Value
		want    int
		wantErr bool
	}{
		{"date string", document.String("2024-03-15"), 20240315, false},
		{"datetime string", document.String("2024-03-15T23:59:59Z"), 20240315, false},
		{"wrapper", obj("$date", "2024-12-31T00:00:00Z"), 20241231, false},
		{"wrapper millis", obj("$date", document.Int(millis)), 20230704, false},
		{"number long", obj("$date", obj("$numberLong", "1688472000000")), 20230704, false},
		{"epoch millis", document.Int(millis), 20230704, false},
		{"short string", document.String("2024"), 0, true},
		{"garbage", document.String("not-a-date"), 0, true},
		{"map without $date", obj("x", 1), 0, true},
		{"null", document.Null(), 0, true},
		{"bool", document.Bool(true), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := plans.DateFromValue(tt.v)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", d)
				}
				return
			}
			if err != nil {
				t.Fatalf("DateFromValue failed: %v", err)
			}
			if d.Key() != tt.want {
				t.Errorf("key = %d, want %d", d.Key(), tt.want)
			}
		})
	}
}

func TestCalendarDateAttributes(t *testing.T) {
	tests := []struct {
		date      plans.CalendarDate
		dow       int
		week      int
		quarter   int
		weekend   bool
		dayName   string
		monthName string
	}{
		{plans.CalendarDate{Year: 2024, Month: time.March, Day: 15}, 4, 11, 1, false, "Friday", "March"},
		{plans.CalendarDate{Year: 2024, Month: time.March, Day: 17}, 6, 11, 1, true, "Sunday", "March"},
		{plans.CalendarDate{Year: 2024, Month: time.December, Day: 30}, 0, 1, 4, false, "Monday", "December"},
		{plans.CalendarDate{Year: 2021, Month: time.January, Day: 2}, 5, 53, 1, true, "Saturday", "January"},
	}

	for _, tt := range tests {
		t.Run(tt.date.String(), func(t *testing.T) {
			if got := tt.date.DayOfWeek(); got != tt.dow {
				t.Errorf("DayOfWeek = %d, want %d", got, tt.dow)
			}
			if got := tt.date.ISOWeek(); got != tt.week {
				t.Errorf("ISOWeek = %d, want %d", got, tt.week)
			}
			if got := tt.date.Quarter(); got != tt.quarter {
				t.Errorf("Quarter = %d, want %d", got, tt.quarter)
			}
			if got := tt.date.IsWeekend(); got != tt.weekend {
				t.Errorf("IsWeekend = %v, want %v", got, tt.weekend)
			}
			if got := tt.date.DayName(); got != tt.dayName {
				t.Errorf("DayName = %q, want %q", got, tt.dayName)
			}
			if got := tt.date.MonthName(); got != tt.monthName {
				t.Errorf("MonthName = %q, want %q", got, tt.monthName)
			}
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := plans.DefaultOptions().Validate(); err != nil {
		t.Errorf("default options invalid: %v", err)
	}

	bad := plans.DefaultOptions()
	bad.ServiceKey = "uuid"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown service key")
	}

	bad = plans.DefaultOptions()
	bad.CostPath = "deep"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown cost path")
	}
}
