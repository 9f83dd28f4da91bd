// Package formatting converts byte sizes between counts and the
// human-readable form used in configuration and logs.
package formatting

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Units are base-1024.
var units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

// FormatBytes renders n with the largest unit that keeps the value at or
// above one, using precision decimals.
func FormatBytes(n int64, precision int) string {
	if n <= 0 {
		return "0 B"
	}
	precision = max(precision, 0)

	exp := min(int(math.Log(float64(n))/math.Log(1024)), len(units)-1)
	if exp == 0 {
		return strconv.FormatInt(n, 10) + " B"
	}

	size := float64(n) / math.Pow(1024, float64(exp))
	return strconv.FormatFloat(size, 'f', precision, 64) + " " + units[exp]
}

// ParseBytes parses sizes such as "256MB", "1.5 GB" or "4096". Units are
// case-insensitive and a bare number is a byte count.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number: %w", err)
	}

	unit := strings.ToUpper(m[2])
	if unit == "" {
		unit = "B"
	}
	exp := slices.Index(units, unit)
	if exp < 0 {
		return 0, fmt.Errorf("unknown byte size unit: %q", m[2])
	}

	return int64(value * math.Pow(1024, float64(exp))), nil
}
