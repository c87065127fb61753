package hp

import "github.com/google/uuid"

// RuleKind tags which entity level a rule applies to. The kinds are pure
// discriminants: evaluation is identical across kinds, only the candidate
// pool and owning array differ.
type RuleKind string

const (
	RuleKindProtocol RuleKind = "protocol"
	RuleKindStudy    RuleKind = "study"
	RuleKindSeries   RuleKind = "series"
	RuleKindImage    RuleKind = "image"
)

// Rule is a weighted, optionally required attribute/constraint pair used for
// scoring candidate entities during protocol, study, series, and image
// matching.
type Rule struct {
	ID         string     `json:"id,omitempty"`
	Kind       RuleKind   `json:"kind,omitempty"`
	Attribute  string     `json:"attribute"`
	Constraint Constraint `json:"constraint,omitempty"`
	Required   bool       `json:"required,omitempty"`
	// Weight defaults to 1; a zero weight in authored data means "unset".
	Weight float64 `json:"weight,omitempty"`
	// From set to "options" sources the attribute from the per-pass options
	// bag instead of the candidate entity.
	From string `json:"from,omitempty"`
}

// NewRule creates a rule with a fresh identifier.
func NewRule(kind RuleKind, attribute string, constraint Constraint, required bool, weight float64) Rule {
	return Rule{
		ID:         uuid.NewString(),
		Kind:       kind,
		Attribute:  attribute,
		Constraint: constraint,
		Required:   required,
		Weight:     weight,
	}
}

// EffectiveWeight returns the rule weight, defaulting to 1 when unset.
func (r Rule) EffectiveWeight() float64 {
	if r.Weight == 0 {
		return 1
	}
	return r.Weight
}

// normalize preserves an existing identifier on hydrated rules and mints one
// otherwise.
func (r *Rule) normalize(kind RuleKind) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Kind == "" {
		r.Kind = kind
	}
}

func normalizeRules(rules []Rule, kind RuleKind) {
	for i := range rules {
		rules[i].normalize(kind)
	}
}

// removeRule drops the first rule with a matching id and reports whether
// anything was removed.
func removeRule(rules []Rule, id string) ([]Rule, bool) {
	for i := range rules {
		if rules[i].ID == id {
			return append(rules[:i:i], rules[i+1:]...), true
		}
	}
	return rules, false
}
