package hp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateConstraintEquals(t *testing.T) {
	assert.True(t, EvaluateConstraint(Constraint{"equals": "MG"}, "MG"))
	assert.False(t, EvaluateConstraint(Constraint{"equals": "MG"}, "CT"))

	// Wrapped operand form
	assert.True(t, EvaluateConstraint(Constraint{"equals": map[string]any{"value": 2}}, 2))

	// Numeric coercion across int/float/string representations
	assert.True(t, EvaluateConstraint(Constraint{"equals": 2}, 2.0))
	assert.True(t, EvaluateConstraint(Constraint{"equals": "2"}, 2))

	// nil never equals a concrete value
	assert.False(t, EvaluateConstraint(Constraint{"equals": "MG"}, nil))
}

func TestEvaluateConstraintContains(t *testing.T) {
	assert.True(t, EvaluateConstraint(Constraint{"contains": "T-1"}, "AX T-1 POST"))
	assert.False(t, EvaluateConstraint(Constraint{"contains": "T-1"}, "AX T2"))

	// Array membership
	assert.True(t, EvaluateConstraint(Constraint{"contains": "MG"}, []string{"CT", "MG"}))
	assert.False(t, EvaluateConstraint(Constraint{"contains": "MG"}, []string{"CT", "MR"}))

	// Caseless variant
	assert.True(t, EvaluateConstraint(Constraint{"containsI": "lccv"}, "R LCCV Spot"))
	assert.False(t, EvaluateConstraint(Constraint{"contains": "lccv"}, "R LCCV Spot"))

	assert.False(t, EvaluateConstraint(Constraint{"contains": "MG"}, nil))
	assert.True(t, EvaluateConstraint(Constraint{"doesNotContain": "MG"}, "CT ABDOMEN"))
	assert.False(t, EvaluateConstraint(Constraint{"doesNotContain": "MG"}, nil))
}

func TestEvaluateConstraintNumeric(t *testing.T) {
	assert.True(t, EvaluateConstraint(Constraint{"greaterThan": 10}, 11))
	assert.False(t, EvaluateConstraint(Constraint{"greaterThan": 10}, 10))
	assert.True(t, EvaluateConstraint(Constraint{"greaterThanOrEqualTo": 10}, 10))
	assert.True(t, EvaluateConstraint(Constraint{"lessThan": 10}, 9))

	// Strings that parse as numbers are coerced
	assert.True(t, EvaluateConstraint(Constraint{"greaterThan": 10}, "11"))

	// Non-numeric and nil values never match, and never panic
	assert.False(t, EvaluateConstraint(Constraint{"greaterThan": 10}, "abc"))
	assert.False(t, EvaluateConstraint(Constraint{"greaterThan": 10}, nil))

	assert.True(t, EvaluateConstraint(Constraint{"range": []int{1, 5}}, 3))
	assert.False(t, EvaluateConstraint(Constraint{"range": []int{1, 5}}, 6))
	assert.False(t, EvaluateConstraint(Constraint{"range": []int{1}}, 1))
}

func TestEvaluateConstraintNotNull(t *testing.T) {
	assert.True(t, EvaluateConstraint(Constraint{"notNull": true}, "anything"))
	assert.False(t, EvaluateConstraint(Constraint{"notNull": true}, nil))
	assert.True(t, EvaluateConstraint(Constraint{"notNull": false}, nil))
}

func TestEvaluateConstraintUnknownOperatorFailsClosed(t *testing.T) {
	assert.False(t, EvaluateConstraint(Constraint{"fuzzyMatch": "MG"}, "MG"))

	// A recognized operator AND-ed with an unknown one still fails
	assert.False(t, EvaluateConstraint(Constraint{"equals": "MG", "fuzzyMatch": "MG"}, "MG"))

	assert.Equal(t, []string{"fuzzyMatch"}, MalformedOperators(Constraint{"fuzzyMatch": "MG"}))
	assert.Empty(t, MalformedOperators(Constraint{"equals": "MG"}))
}

func TestEvaluateConstraintMultipleOperatorsAreANDed(t *testing.T) {
	c := Constraint{"greaterThan": 1, "lessThan": 5}
	assert.True(t, EvaluateConstraint(c, 3))
	assert.False(t, EvaluateConstraint(c, 7))
}

func TestEvaluateConstraintEmptyPasses(t *testing.T) {
	assert.True(t, EvaluateConstraint(nil, nil))
	assert.True(t, EvaluateConstraint(Constraint{}, "whatever"))
}
