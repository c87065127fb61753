package hp

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Constraint is one constraint object keyed by operator, e.g.
// {"equals": {"value": 2}} or {"contains": "MG"}. A well-formed constraint
// carries exactly one operator; if several are present they are all
// evaluated and AND-ed in a fixed order so the result stays deterministic.
// Unknown operators fail closed: the constraint does not match.
type Constraint map[string]any

// Operator evaluation order. Also the set of recognized operators.
var constraintOperators = []string{
	"equals",
	"notEquals",
	"contains",
	"doesNotContain",
	"containsI",
	"greaterThan",
	"greaterThanOrEqualTo",
	"lessThan",
	"range",
	"notNull",
}

// EvaluateConstraint tests a resolved attribute value against a constraint.
// A nil value fails every operator except notNull's negative form. An empty
// constraint passes. The evaluator never panics on malformed operands; they
// simply do not match.
func EvaluateConstraint(c Constraint, value any) bool {
	if len(c) == 0 {
		return true
	}

	recognized := 0
	for _, op := range constraintOperators {
		operandRaw, present := c[op]
		if !present {
			continue
		}
		recognized++
		if !evaluateOperator(op, unwrapOperand(operandRaw), value) {
			return false
		}
	}

	// Any leftover key is an unrecognized operator.
	return recognized == len(c)
}

// MalformedOperators returns the unrecognized operator keys of a constraint,
// so callers can log configuration warnings for protocol authors.
func MalformedOperators(c Constraint) []string {
	var unknown []string
	for key := range c {
		found := false
		for _, op := range constraintOperators {
			if key == op {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

func evaluateOperator(op string, operand, value any) bool {
	switch op {
	case "equals":
		return equalValues(value, operand)
	case "notEquals":
		return !equalValues(value, operand)
	case "contains":
		return containsValue(value, operand, false)
	case "doesNotContain":
		return value != nil && !containsValue(value, operand, false)
	case "containsI":
		return containsValue(value, operand, true)
	case "greaterThan":
		return compareNumeric(value, operand, func(a, b float64) bool { return a > b })
	case "greaterThanOrEqualTo":
		return compareNumeric(value, operand, func(a, b float64) bool { return a >= b })
	case "lessThan":
		return compareNumeric(value, operand, func(a, b float64) bool { return a < b })
	case "range":
		return inRange(value, operand)
	case "notNull":
		want := true
		if b, ok := operand.(bool); ok {
			want = b
		}
		return (value != nil) == want
	}
	return false
}

// unwrapOperand accepts both the bare form ("MG") and the wrapped form
// ({"value": "MG"}) used by protocol authors.
func unwrapOperand(operand any) any {
	if m, ok := toAttributeMap(operand); ok {
		if v, ok := m["value"]; ok {
			return v
		}
	}
	return operand
}

// equalValues performs structural equality with numeric coercion so that an
// authored 2 matches a metadata 2.0 and vice versa.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			return fa == fb
		}
		return false
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// containsValue implements substring matching for strings and membership for
// arrays.
func containsValue(value, operand any, caseless bool) bool {
	switch v := value.(type) {
	case string:
		needle, ok := operand.(string)
		if !ok {
			return false
		}
		if caseless {
			return strings.Contains(strings.ToLower(v), strings.ToLower(needle))
		}
		return strings.Contains(v, needle)
	case []string:
		for _, item := range v {
			if matchElement(item, operand, caseless) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if matchElement(item, operand, caseless) {
				return true
			}
		}
	}
	return false
}

func matchElement(item, operand any, caseless bool) bool {
	if caseless {
		si, iok := item.(string)
		so, ook := operand.(string)
		if iok && ook {
			return strings.EqualFold(si, so)
		}
	}
	return equalValues(item, operand)
}

func compareNumeric(value, operand any, cmp func(a, b float64) bool) bool {
	a, aok := toFloat(value)
	b, bok := toFloat(operand)
	if !aok || !bok || math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return cmp(a, b)
}

func inRange(value, operand any) bool {
	bounds, ok := toSequence(operand)
	if !ok || len(bounds) != 2 {
		return false
	}
	v, vok := toFloat(value)
	low, lok := toFloat(bounds[0])
	high, hok := toFloat(bounds[1])
	if !vok || !lok || !hok || math.IsNaN(v) {
		return false
	}
	return v >= low && v <= high
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
