package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxValues caps generated range sizes so a bad step cannot exhaust memory.
const maxValues = 10000

// GenerateRange generates float64 values from min to max (inclusive) stepping
// by step. Returns nil if min > max or step is not positive.
func GenerateRange(min, max, step float64) []float64 {
	if step <= 0 || min > max {
		return nil
	}

	expected := int((max-min)/step) + 1
	if expected > maxValues || expected < 0 {
		return nil
	}

	var result []float64
	for v := min; v <= max+step/1000; v += step {
		if len(result) >= maxValues {
			break
		}
		// Round to avoid floating point accumulation errors.
		rounded := math.Round(v*1e6) / 1e6
		if rounded <= max {
			result = append(result, rounded)
		}
	}
	return result
}

// GenerateIntRange generates int values from min to max (inclusive) stepping
// by step. Returns nil if min > max or step is not positive.
func GenerateIntRange(min, max, step int) []int {
	if step <= 0 || min > max {
		return nil
	}

	expected := (max-min)/step + 1
	if expected > maxValues || expected < 0 {
		return nil
	}

	var result []int
	for v := min; v <= max; v += step {
		if len(result) >= maxValues {
			break
		}
		result = append(result, v)
	}
	return result
}

// ParseDimensionSpec parses a "name=spec" dimension flag. The spec is either
// a "min:max:step" range or a comma-separated value list. Values that parse
// as numbers produce a float64 dimension; anything else produces a string
// dimension.
//
//	snr_db=0:20:5
//	snr_db=0,10,20
//	modulation=bpsk,qpsk
func ParseDimensionSpec(s string) (Dimension, error) {
	name, spec, ok := strings.Cut(s, "=")
	if !ok || name == "" || spec == "" {
		return Dimension{}, fmt.Errorf("invalid dimension %q: expected name=spec", s)
	}

	if strings.Contains(spec, ":") {
		parts := strings.Split(spec, ":")
		if len(parts) != 3 {
			return Dimension{}, fmt.Errorf("invalid range %q: expected min:max:step", spec)
		}
		nums := make([]float64, 3)
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return Dimension{}, fmt.Errorf("invalid range component %q: %w", p, err)
			}
			nums[i] = v
		}
		return Dimension{Name: name, Type: "float64", Start: nums[0], End: nums[1], Step: nums[2]}, nil
	}

	parts := strings.Split(spec, ",")
	values := make([]interface{}, 0, len(parts))
	numeric := true
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if v, err := strconv.ParseFloat(p, 64); err == nil {
			values = append(values, v)
		} else {
			numeric = false
			values = append(values, p)
		}
	}
	if len(values) == 0 {
		return Dimension{}, fmt.Errorf("dimension %q has no values", name)
	}

	typ := "float64"
	if !numeric {
		typ = "string"
		// Mixed lists degrade to strings so the pipeline sees one type.
		for i, v := range values {
			values[i] = fmt.Sprintf("%v", v)
		}
	}
	return Dimension{Name: name, Type: typ, Values: values}, nil
}

// coerceValue converts a value (possibly JSON-decoded) to the Go type for
// the given dimension type.
func coerceValue(v interface{}, typ string) (interface{}, error) {
	switch typ {
	case "float64":
		switch val := v.(type) {
		case float64:
			return val, nil
		case int:
			return float64(val), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid float %q", val)
			}
			return f, nil
		}
	case "int":
		switch val := v.(type) {
		case int:
			return val, nil
		case float64:
			return int(val), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("invalid int %q", val)
			}
			return n, nil
		}
	case "bool":
		switch val := v.(type) {
		case bool:
			return val, nil
		case string:
			return strings.TrimSpace(strings.ToLower(val)) == "true", nil
		}
	case "string":
		switch val := v.(type) {
		case string:
			return strings.TrimSpace(val), nil
		default:
			return fmt.Sprintf("%v", val), nil
		}
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, typ)
}
