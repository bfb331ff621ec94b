// Package formatting renders and parses byte sizes and pulls JSON out
// of free-form model output.
package formatting

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Sizes are base-1024 throughout. "MB" and "MiB" name the same unit.
var symbols = [...]string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

var exponents = map[string]int{"": 0, "B": 0}

func init() {
	for exp, sym := range symbols[1:] {
		letter := sym[:1]
		exponents[letter] = exp + 1
		exponents[sym] = exp + 1
		exponents[letter+"IB"] = exp + 1
	}
}

// FormatBytes renders n with the largest unit that keeps the value at or
// above one, e.g. FormatBytes(1536*1024, 1) is "1.5 MB".
func FormatBytes(n int64, precision int) string {
	precision = max(precision, 0)

	v := float64(n)
	exp := 0
	for math.Abs(v) >= 1024 && exp < len(symbols)-1 {
		v /= 1024
		exp++
	}

	if exp == 0 {
		return strconv.FormatInt(n, 10) + " B"
	}
	return strconv.FormatFloat(v, 'f', precision, 64) + " " + symbols[exp]
}

// ParseBytes reads sizes such as "512", "10MB", "1.5 GiB" or "64k".
// Units are case-insensitive; a bare number is a byte count.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	num, unit := s, ""
	if split >= 0 {
		num, unit = s[:split], strings.TrimSpace(s[split:])
	}
	if num == "" {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}

	exp, ok := exponents[strings.ToUpper(unit)]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", unit)
	}

	return int64(value * math.Pow(1024, float64(exp))), nil
}
