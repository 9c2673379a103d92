// Package sweep searches the artifact-rejection parameter space for the
// combination that best balances data retention against cleaning strength.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WindowDisabled is the sentinel window criterion meaning "no window-level
// rejection". Any negative value is treated as disabled; this constant is
// the canonical spelling.
const WindowDisabled = -1.0

// RangeSpec defines a parameter range for sweeping.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}
	step, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}
	if step <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %g", step)
	}
	return RangeSpec{Min: min, Max: max, Step: step}, nil
}

// GenerateRange expands a range into values from min to max inclusive.
// Values are rounded to 3 decimals to avoid floating point accumulation.
func GenerateRange(min, max, step float64) []float64 {
	const maxValues = 10000
	if step <= 0 || min > max {
		return nil
	}
	if int((max-min)/step)+1 > maxValues {
		return nil
	}
	var out []float64
	for v := min; v <= max+step/1000; v += step {
		rounded := math.Round(v*1000) / 1000
		if rounded <= max {
			out = append(out, rounded)
		}
	}
	return out
}

// ParseValueList parses either a comma-separated value list or a
// "min:max:step" range spec.
func ParseValueList(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		return GenerateRange(spec.Min, spec.Max, spec.Step), nil
	}
	var out []float64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseWindowList is ParseValueList plus the "disabled" keyword, which maps
// to WindowDisabled.
func ParseWindowList(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if strings.EqualFold(part, "disabled") {
			out = append(out, WindowDisabled)
			continue
		}
		vals, err := ParseValueList(part)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}
