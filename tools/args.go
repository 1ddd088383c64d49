package tools

import (
	"encoding/json"
	"math"
)

type arguments map[string]any

func (a arguments) requiredString(name string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", &ArgumentError{Field: name, Reason: "required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgumentError{Field: name, Reason: "must be a string"}
	}
	if s == "" {
		return "", &ArgumentError{Field: name, Reason: "must not be empty"}
	}
	return s, nil
}

func (a arguments) optionalString(name string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgumentError{Field: name, Reason: "must be a string"}
	}
	return s, nil
}

// requiredCount reads a positive whole number
func (a arguments) requiredCount(name string) (int, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return 0, &ArgumentError{Field: name, Reason: "required"}
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, &ArgumentError{Field: name, Reason: "must be a number"}
		}
		f = parsed
	default:
		return 0, &ArgumentError{Field: name, Reason: "must be a number"}
	}

	if f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return 0, &ArgumentError{Field: name, Reason: "must be a positive whole number"}
	}
	return int(f), nil
}
