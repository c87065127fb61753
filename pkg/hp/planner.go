package hp

import (
	"errors"
	"fmt"
)

// ViewportAssignment resolves one viewport slot to concrete study/series/
// display set identifiers, plus pass-through viewport options for the
// rendering layer.
type ViewportAssignment struct {
	ViewportIndex int  `json:"viewportIndex"`
	Matched       bool `json:"matched"`
	// AllowUnmatched is true when the viewport is permitted to render empty.
	AllowUnmatched        bool            `json:"allowUnmatched,omitempty"`
	StudyInstanceUID      string          `json:"studyInstanceUID,omitempty"`
	SeriesInstanceUID     string          `json:"seriesInstanceUID,omitempty"`
	DisplaySetInstanceUID string          `json:"displaySetInstanceUID,omitempty"`
	SOPInstanceUID        string          `json:"sopInstanceUID,omitempty"`
	ViewportOptions       ViewportOptions `json:"viewportOptions,omitempty"`
	DisplaySetOptions     map[string]any  `json:"displaySetOptions,omitempty"`
}

// planContext caches selector rankings for the duration of one matching
// pass. Multiple viewports referencing the same selector id, possibly at
// different matchedDisplaySetsIndex values, share a single ranking.
type planContext struct {
	rankings map[string][]RankedSeries
}

func newPlanContext() *planContext {
	return &planContext{rankings: make(map[string][]RankedSeries)}
}

func (c *planContext) ranking(m *Matcher, protocol *Protocol, selectorID string, studies []*Study, opts Options) ([]RankedSeries, bool) {
	if ranked, ok := c.rankings[selectorID]; ok {
		return ranked, true
	}
	selector, ok := protocol.DisplaySetSelectors[selectorID]
	if !ok {
		return nil, false
	}
	ranked := m.RankSeries(studies, selector, opts)
	c.rankings[selectorID] = ranked
	return ranked, true
}

// Plan resolves every viewport of a stage into a concrete assignment. It is
// the public entry point for callers that already selected a protocol and
// stage; Hang composes it internally with a shared selector cache.
func (e *Engine) Plan(protocol *Protocol, stage *Stage, studies []*Study, opts Options) ([]ViewportAssignment, error) {
	if protocol == nil {
		return nil, errors.New("hp: plan called without a selected protocol")
	}
	if stage == nil {
		return nil, errors.New("hp: plan called without a selected stage")
	}
	assignments, _ := e.planStage(protocol, stage, studies, opts, newPlanContext())
	return assignments, nil
}

// planStage assigns all viewports of one stage and reports how many ended up
// matched, which feeds stage activation.
func (e *Engine) planStage(protocol *Protocol, stage *Stage, studies []*Study, opts Options, ctx *planContext) ([]ViewportAssignment, int) {
	assignments := make([]ViewportAssignment, 0, len(stage.Viewports))
	matched := 0

	for index, viewport := range stage.Viewports {
		assignment := e.planViewport(protocol, viewport, index, studies, opts, ctx)
		if assignment.Matched {
			matched++
		}
		assignments = append(assignments, assignment)
	}

	return assignments, matched
}

func (e *Engine) planViewport(protocol *Protocol, viewport *Viewport, index int, studies []*Study, opts Options, ctx *planContext) ViewportAssignment {
	assignment := ViewportAssignment{
		ViewportIndex:   index,
		ViewportOptions: viewport.ViewportOptions,
	}

	if len(viewport.DisplaySets) > 0 {
		e.planDeclarative(protocol, viewport, &assignment, studies, opts, ctx)
		return assignment
	}

	e.planLegacy(viewport, &assignment, studies, opts)
	return assignment
}

// planDeclarative resolves the viewport's displaySets references against the
// protocol's named selectors. The candidate at matchedDisplaySetsIndex is
// taken; an out-of-range index or an unknown selector id leaves the viewport
// unmatched rather than failing the pass.
func (e *Engine) planDeclarative(protocol *Protocol, viewport *Viewport, assignment *ViewportAssignment, studies []*Study, opts Options, ctx *planContext) {
	for _, ref := range viewport.DisplaySets {
		allowUnmatched := ref.AllowUnmatchedView || viewportAllowsUnmatched(viewport)
		selector, known := protocol.DisplaySetSelectors[ref.ID]
		if known && selector.AllowUnmatchedView {
			allowUnmatched = true
		}
		if allowUnmatched {
			assignment.AllowUnmatched = true
		}

		if !known {
			e.log.Warn().
				Str("protocol_id", protocol.ID).
				Str("selector_id", ref.ID).
				Msg("Viewport references unknown display set selector")
			continue
		}

		ranked, _ := ctx.ranking(e.matcher, protocol, ref.ID, studies, opts)
		if ref.MatchedDisplaySetsIndex < 0 || ref.MatchedDisplaySetsIndex >= len(ranked) {
			continue
		}

		candidate := ranked[ref.MatchedDisplaySetsIndex]
		if !assignment.Matched {
			assignment.Matched = true
			assignment.StudyInstanceUID = candidate.Study.StudyInstanceUID()
			assignment.SeriesInstanceUID = candidate.Series.SeriesInstanceUID()
			assignment.DisplaySetInstanceUID = candidate.Series.DisplaySetInstanceUID()
			assignment.DisplaySetOptions = ref.Options
		}
	}
}

// planLegacy narrows straight to an image through the viewport's own
// study/series/image rule arrays. Empty rule arrays match vacuously, so a
// bare viewport hangs the first series of the first study.
func (e *Engine) planLegacy(viewport *Viewport, assignment *ViewportAssignment, studies []*Study, opts Options) {
	assignment.AllowUnmatched = viewportAllowsUnmatched(viewport)

	var bestScore float64
	var found bool

	for index, study := range studies {
		passOpts := opts.with("studyInstanceUIDsIndex", index)

		studyResult := e.matcher.Match(viewport.StudyMatchingRules, study, passOpts)
		if !studyResult.RequiredSatisfied {
			continue
		}

		for _, series := range study.Series {
			seriesResult := e.matcher.Match(viewport.SeriesMatchingRules, series, passOpts)
			if !seriesResult.RequiredSatisfied {
				continue
			}

			instance, instanceScore, ok := e.bestInstance(viewport.ImageMatchingRules, series, passOpts)
			if !ok {
				continue
			}

			total := studyResult.Score + seriesResult.Score + instanceScore
			if !found || total > bestScore {
				found = true
				bestScore = total
				assignment.Matched = true
				assignment.StudyInstanceUID = study.StudyInstanceUID()
				assignment.SeriesInstanceUID = series.SeriesInstanceUID()
				assignment.DisplaySetInstanceUID = series.DisplaySetInstanceUID()
				if instance != nil {
					assignment.SOPInstanceUID = instance.SOPInstanceUID()
				}
			}
		}
	}
}

// bestInstance picks the highest-scoring instance of a series, first-seen on
// ties. A series without instances still matches at zero score when no image
// rule is required, so series-level protocols keep working on sparse
// metadata.
func (e *Engine) bestInstance(rules []Rule, series *Series, opts Options) (*Instance, float64, bool) {
	if len(series.Instances) == 0 {
		result := e.matcher.Match(rules, nil, opts)
		if !result.RequiredSatisfied {
			return nil, 0, false
		}
		return nil, result.Score, true
	}

	var best *Instance
	var bestScore float64
	for _, instance := range series.Instances {
		result := e.matcher.Match(rules, instance, opts)
		if !result.RequiredSatisfied {
			continue
		}
		if best == nil || result.Score > bestScore {
			best = instance
			bestScore = result.Score
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestScore, true
}

func viewportAllowsUnmatched(viewport *Viewport) bool {
	if viewport.ViewportOptions == nil {
		return false
	}
	allow, _ := viewport.ViewportOptions["allowUnmatchedView"].(bool)
	return allow
}

// String renders a short human-readable summary, useful in debug logs.
func (a ViewportAssignment) String() string {
	if !a.Matched {
		return fmt.Sprintf("viewport %d: unmatched", a.ViewportIndex)
	}
	return fmt.Sprintf("viewport %d: %s/%s", a.ViewportIndex, a.StudyInstanceUID, a.SeriesInstanceUID)
}
