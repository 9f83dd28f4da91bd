package plans

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JaimeStill/healthplan-dw/internal/document"
)

// CalendarDate is a day without time or zone.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// DefaultFallbackDate is used when a document carries no parsable creation date.
var DefaultFallbackDate = CalendarDate{Year: 2025, Month: time.January, Day: 1}

// NewCalendarDate returns the calendar date of t in its own location.
func NewCalendarDate(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

// ParseCalendarDate parses a YYYY-MM-DD string.
func ParseCalendarDate(s string) (CalendarDate, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return CalendarDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return NewCalendarDate(t), nil
}

// Time returns midnight UTC of d.
func (d CalendarDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Key returns the YYYYMMDD surrogate key of d.
func (d CalendarDate) Key() int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

// Quarter returns 1 through 4.
func (d CalendarDate) Quarter() int {
	return (int(d.Month)-1)/3 + 1
}

// DayOfWeek returns 0 for Monday through 6 for Sunday.
func (d CalendarDate) DayOfWeek() int {
	return (int(d.Time().Weekday()) + 6) % 7
}

// ISOWeek returns the ISO 8601 week number.
func (d CalendarDate) ISOWeek() int {
	_, w := d.Time().ISOWeek()
	return w
}

// IsWeekend reports whether d falls on Saturday or Sunday.
func (d CalendarDate) IsWeekend() bool {
	return d.DayOfWeek() >= 5
}

// MonthName returns the English month name.
func (d CalendarDate) MonthName() string {
	return d.Month.String()
}

// DayName returns the English weekday name.
func (d CalendarDate) DayName() string {
	return d.Time().Weekday().String()
}

func (d CalendarDate) String() string {
	return d.Time().Format(time.DateOnly)
}

// IsZero reports whether d is the zero value.
func (d CalendarDate) IsZero() bool {
	return d == CalendarDate{}
}

// DateFromValue reads a creation date in any of the accepted forms: a string
// whose first ten characters are YYYY-MM-DD, a {"$date": ...} wrapper around
// such a string or epoch milliseconds, or a bare number of epoch milliseconds.
func DateFromValue(v document.Value) (CalendarDate, error) {
	switch v.Kind() {
	case document.KindString:
		s, _ := v.Str()
		return parsePrefix(s)
	case document.KindNumber:
		ms, _ := v.Decimal()
		return fromEpochMillis(ms), nil
	case document.KindMap:
		if !v.Has(document.DateKey) {
			return CalendarDate{}, fmt.Errorf("%w: map without %s", ErrInvalidDate, document.DateKey)
		}
		inner := v.Get(document.DateKey)
		// Extended JSON canonical form nests the millis as {"$numberLong": "..."}.
		if n, ok := inner.Get("$numberLong").Str(); ok {
			ms, err := decimal.NewFromString(n)
			if err != nil {
				return CalendarDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, n)
			}
			return fromEpochMillis(ms), nil
		}
		if inner.Kind() == document.KindMap {
			return CalendarDate{}, fmt.Errorf("%w: nested %s", ErrInvalidDate, document.DateKey)
		}
		return DateFromValue(inner)
	case document.KindNull:
		return CalendarDate{}, ErrMissingDate
	default:
		return CalendarDate{}, fmt.Errorf("%w: %s value", ErrInvalidDate, v.Kind())
	}
}

func parsePrefix(s string) (CalendarDate, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(time.DateOnly) {
		return CalendarDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return ParseCalendarDate(s[:len(time.DateOnly)])
}

func fromEpochMillis(ms decimal.Decimal) CalendarDate {
	return NewCalendarDate(time.UnixMilli(ms.IntPart()).UTC())
}
