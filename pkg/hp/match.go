package hp

import (
	"sort"

	"github.com/rs/zerolog"
)

// MatchResult is the outcome of evaluating a rule array against one entity.
type MatchResult struct {
	// Score is the sum of the weights of passing rules. Scoring continues
	// past a failed required rule for diagnostic purposes; the caller must
	// discard candidates where RequiredSatisfied is false.
	Score float64
	// RequiredSatisfied is true when no required rule failed. An empty rule
	// array is vacuously satisfied.
	RequiredSatisfied bool
	Passed            []Rule
	Failed            []Rule
}

// RankedEntity is one candidate with its match score, ordered best-first.
type RankedEntity struct {
	Entity Entity
	Result MatchResult
}

// RankedSeries is a series candidate ranked by a display set selector,
// scored by its series rules plus its parent study's rules.
type RankedSeries struct {
	Study  *Study
	Series *Series
	Score  float64
}

// Matcher evaluates weighted rule arrays against candidate entities. It is
// stateless apart from the attribute resolver and safe for concurrent use.
type Matcher struct {
	resolver *Resolver
	log      zerolog.Logger
}

// NewMatcher creates a matcher on top of the given resolver. The logger is
// used for configuration warnings only (e.g. unknown constraint operators);
// pass zerolog.Nop() to silence them.
func NewMatcher(resolver *Resolver, log zerolog.Logger) *Matcher {
	return &Matcher{resolver: resolver, log: log}
}

// Match evaluates each rule independently: resolve the attribute, test the
// constraint, and accumulate the weight on pass. Rules never throw for
// data-shape problems; an unresolvable attribute or malformed constraint is
// simply a non-match.
func (m *Matcher) Match(rules []Rule, entity Entity, opts Options) MatchResult {
	result := MatchResult{RequiredSatisfied: true}

	for _, rule := range rules {
		value := m.resolver.Resolve(rule.Attribute, rule.From, entity, opts)

		if unknown := MalformedOperators(rule.Constraint); len(unknown) > 0 {
			m.log.Warn().
				Str("attribute", rule.Attribute).
				Strs("operators", unknown).
				Msg("Unrecognized constraint operator, rule will not match")
		}

		if EvaluateConstraint(rule.Constraint, value) {
			result.Score += rule.EffectiveWeight()
			result.Passed = append(result.Passed, rule)
			continue
		}

		if rule.Required {
			result.RequiredSatisfied = false
		}
		result.Failed = append(result.Failed, rule)
	}

	return result
}

// Rank scores every candidate, drops those failing a required rule, and
// returns the survivors sorted by descending score. The sort is stable:
// candidates with equal scores keep their input order.
func (m *Matcher) Rank(rules []Rule, candidates []Entity, opts Options) []RankedEntity {
	ranked := make([]RankedEntity, 0, len(candidates))
	for _, candidate := range candidates {
		result := m.Match(rules, candidate, opts)
		if !result.RequiredSatisfied {
			continue
		}
		ranked = append(ranked, RankedEntity{Entity: candidate, Result: result})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.Score > ranked[j].Result.Score
	})
	return ranked
}

// RankSeries ranks all series across the supplied studies for one display
// set selector. A study failing a required study rule excludes all of its
// series; series scores include the parent study's score so that
// study-level preferences carry through. The positional study index is
// exposed to rules via the "studyInstanceUIDsIndex" option, which lets one
// selector definition be reused against current vs prior studies.
func (m *Matcher) RankSeries(studies []*Study, selector *DisplaySetSelector, opts Options) []RankedSeries {
	if selector == nil {
		return nil
	}

	ranked := make([]RankedSeries, 0)
	for index, study := range studies {
		passOpts := opts.with("studyInstanceUIDsIndex", index)

		studyResult := m.Match(selector.StudyMatchingRules, study, passOpts)
		if !studyResult.RequiredSatisfied {
			continue
		}

		for _, series := range study.Series {
			seriesResult := m.Match(selector.SeriesMatchingRules, series, passOpts)
			if !seriesResult.RequiredSatisfied {
				continue
			}
			ranked = append(ranked, RankedSeries{
				Study:  study,
				Series: series,
				Score:  studyResult.Score + seriesResult.Score,
			})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
