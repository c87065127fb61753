package hp

import (
	"github.com/rs/zerolog"
)

// Engine runs the full matching pass: protocol selection, stage selection,
// and viewport assignment. It is pure computation over the supplied
// snapshot; the protocol library and metadata tree are treated as read-only
// for the duration of one pass.
type Engine struct {
	matcher         *Matcher
	log             zerolog.Logger
	defaultProtocol *Protocol
}

// NewEngine creates an engine with its own matcher on top of the given
// resolver. The engine carries a built-in default protocol as the terminal
// fallback; a library may override it by containing a protocol with
// DefaultProtocolID.
func NewEngine(resolver *Resolver, log zerolog.Logger) *Engine {
	return &Engine{
		matcher:         NewMatcher(resolver, log),
		log:             log,
		defaultProtocol: DefaultProtocol(),
	}
}

// Matcher exposes the engine's entity matcher for callers that need direct
// rule evaluation (e.g. validating a dropped display set against a selector).
func (e *Engine) Matcher() *Matcher {
	return e.matcher
}

// ProtocolSelection is the outcome of ranking a protocol library.
type ProtocolSelection struct {
	Protocol *Protocol
	Score    float64
	// Fallback is true when no library protocol survived the required-rule
	// gate and the default protocol was substituted.
	Fallback bool
}

// StageSelection is the outcome of first-fit stage selection within a
// protocol.
type StageSelection struct {
	Stage            *Stage
	Index            int
	MatchedViewports int
	// Fallback is true when no stage met its activation threshold and the
	// last-declared stage was substituted.
	Fallback bool
}

// HangResult is the full output of one matching pass, handed to the
// rendering layer.
type HangResult struct {
	Protocol                 *Protocol             `json:"-"`
	ProtocolID               string                `json:"protocolId"`
	ProtocolScore            float64               `json:"protocolScore"`
	ProtocolFallback         bool                  `json:"protocolFallback,omitempty"`
	StageID                  string                `json:"stageId,omitempty"`
	StageIndex               int                   `json:"stageIndex"`
	StageFallback            bool                  `json:"stageFallback,omitempty"`
	LayoutType               string                `json:"layoutType,omitempty"`
	LayoutTemplate           string                `json:"layoutTemplate,omitempty"`
	Rows                     int                   `json:"rows,omitempty"`
	Columns                  int                   `json:"columns,omitempty"`
	Viewports                []ViewportAssignment  `json:"viewports"`
	NumberOfPriorsReferenced int                   `json:"numberOfPriorsReferenced"`
}

// SelectProtocol ranks the protocol library against the current study (the
// first study of the snapshot) and returns the highest-scoring protocol
// whose required rules all pass. Ties keep library order. A protocol
// referencing more priors than the snapshot provides is skipped before
// scoring. When nothing survives, the designated default protocol is
// returned; selection never fails.
func (e *Engine) SelectProtocol(library []*Protocol, studies []*Study, opts Options) ProtocolSelection {
	var activeStudy Entity
	if len(studies) > 0 {
		activeStudy = studies[0]
	}
	availablePriors := len(studies) - 1
	if availablePriors < 0 {
		availablePriors = 0
	}

	var best *Protocol
	var bestScore float64
	for _, protocol := range library {
		if protocol == nil {
			continue
		}
		if protocol.NumberOfPriorsReferenced > availablePriors {
			continue
		}

		result := e.matcher.Match(protocol.ProtocolMatchingRules, activeStudy, opts)
		if !result.RequiredSatisfied {
			continue
		}
		if best == nil || result.Score > bestScore {
			best = protocol
			bestScore = result.Score
		}
	}

	if best != nil {
		return ProtocolSelection{Protocol: best, Score: bestScore}
	}

	e.log.Debug().Msg("No protocol matched, falling back to default protocol")
	return ProtocolSelection{Protocol: e.findDefault(library), Fallback: true}
}

// findDefault prefers a library-provided default protocol over the built-in
// one, so deployments can ship their own terminal fallback.
func (e *Engine) findDefault(library []*Protocol) *Protocol {
	for _, protocol := range library {
		if protocol != nil && protocol.ID == DefaultProtocolID {
			return protocol
		}
	}
	return e.defaultProtocol
}

// SelectStage walks the protocol's stages in declared order and selects the
// first whose matched-viewport count reaches its activation threshold. This
// is first-fit, not best-fit: stages are expected to be authored in
// descending specificity, and reordering them changes the outcome. When no
// stage qualifies, the last-declared stage is the terminal fallback.
func (e *Engine) SelectStage(protocol *Protocol, studies []*Study, opts Options) StageSelection {
	return e.selectStage(protocol, studies, opts, newPlanContext())
}

func (e *Engine) selectStage(protocol *Protocol, studies []*Study, opts Options, ctx *planContext) StageSelection {
	if protocol == nil || len(protocol.Stages) == 0 {
		return StageSelection{Index: -1}
	}

	for index, stage := range protocol.Stages {
		_, matched := e.planStage(protocol, stage, studies, opts, ctx)
		if matched >= stage.enabledThreshold() {
			return StageSelection{Stage: stage, Index: index, MatchedViewports: matched}
		}
	}

	last := len(protocol.Stages) - 1
	stage := protocol.Stages[last]
	_, matched := e.planStage(protocol, stage, studies, opts, ctx)
	return StageSelection{Stage: stage, Index: last, MatchedViewports: matched, Fallback: true}
}

// Hang runs one complete matching pass over the supplied snapshot and
// returns the stage and per-viewport assignments for the rendering layer.
// It degrades through the fallback chain rather than failing: malformed
// protocols yield unmatched viewports, never errors.
func (e *Engine) Hang(library []*Protocol, studies []*Study, opts Options) *HangResult {
	if opts == nil {
		opts = Options{}
	}

	selection := e.SelectProtocol(library, studies, opts)
	protocol := selection.Protocol

	ctx := newPlanContext()
	stageSelection := e.selectStage(protocol, studies, opts, ctx)

	result := &HangResult{
		Protocol:         protocol,
		ProtocolID:       protocol.ID,
		ProtocolScore:    selection.Score,
		ProtocolFallback: selection.Fallback,
		StageIndex:       stageSelection.Index,
		StageFallback:    stageSelection.Fallback,
		Viewports:        []ViewportAssignment{},

		NumberOfPriorsReferenced: protocol.NumberOfPriorsReferenced,
	}

	stage := stageSelection.Stage
	if stage == nil {
		e.log.Warn().Str("protocol_id", protocol.ID).Msg("Selected protocol has no stages")
		return result
	}

	assignments, _ := e.planStage(protocol, stage, studies, opts, ctx)
	result.StageID = stage.ID
	result.LayoutType = stage.ViewportStructure.Type
	result.LayoutTemplate = stage.ViewportStructure.LayoutTemplateName()
	result.Rows = stage.ViewportStructure.Properties.Rows
	result.Columns = stage.ViewportStructure.Properties.Columns
	result.Viewports = assignments

	return result
}
