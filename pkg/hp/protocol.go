package hp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attributes that reference a prior study from a viewport study-matching
// rule. Used to maintain the numberOfPriorsReferenced invariant.
const (
	attributeAbstractPriorValue = "abstractPriorValue"
	attributeRelativeTime       = "relativeTime"
)

// GridLayout is the only viewport structure type currently defined.
const GridLayout = "grid"

// LayoutProperties are the type-specific properties of a viewport structure.
// For grid layouts rows and columns are required.
type LayoutProperties struct {
	Rows    int `json:"rows,omitempty"`
	Columns int `json:"columns,omitempty"`
}

// ViewportStructure describes the layout viewports are displayed in. The
// type corresponds to a layout template consumed by the rendering layer.
type ViewportStructure struct {
	Type       string           `json:"type"`
	Properties LayoutProperties `json:"properties"`
}

// LayoutTemplateName maps the structure type to a rendering template name.
// Unknown types yield "": the rendering collaborator treats that as
// "cannot render".
func (v ViewportStructure) LayoutTemplateName() string {
	switch v.Type {
	case GridLayout:
		return "gridLayout"
	}
	return ""
}

// NumViewports returns how many viewport slots this layout provides, or 0
// for unknown layout types.
func (v ViewportStructure) NumViewports() int {
	switch v.Type {
	case GridLayout:
		return v.Properties.Rows * v.Properties.Columns
	}
	return 0
}

// ViewportOptions are free-form rendering options (toolGroupId, orientation,
// syncGroups, displayArea) passed through to the rendering layer verbatim.
type ViewportOptions map[string]any

// DisplaySetRef references a named display set selector from a viewport.
type DisplaySetRef struct {
	ID string `json:"id"`
	// MatchedDisplaySetsIndex selects the Nth-ranked match of the selector
	// instead of the best one. Out-of-range indexes leave the viewport
	// unmatched.
	MatchedDisplaySetsIndex int `json:"matchedDisplaySetsIndex,omitempty"`
	// AllowUnmatchedView permits the viewport to render empty when the
	// selector produced no usable candidate.
	AllowUnmatchedView bool           `json:"allowUnmatchedView,omitempty"`
	Options            map[string]any `json:"options,omitempty"`
}

// Viewport is a single display slot within a stage. The declarative form
// references display set selectors; the legacy form carries direct matching
// rule arrays that narrow straight to an image.
type Viewport struct {
	ViewportOptions     ViewportOptions `json:"viewportOptions,omitempty"`
	DisplaySets         []DisplaySetRef `json:"displaySets,omitempty"`
	StudyMatchingRules  []Rule          `json:"studyMatchingRules,omitempty"`
	SeriesMatchingRules []Rule          `json:"seriesMatchingRules,omitempty"`
	ImageMatchingRules  []Rule          `json:"imageMatchingRules,omitempty"`
}

// NewViewport creates an empty viewport.
func NewViewport() *Viewport {
	return &Viewport{ViewportOptions: ViewportOptions{}}
}

// AddRule appends a rule to the array matching its kind.
func (v *Viewport) AddRule(rule Rule) {
	switch rule.Kind {
	case RuleKindStudy:
		v.StudyMatchingRules = append(v.StudyMatchingRules, rule)
	case RuleKindSeries:
		v.SeriesMatchingRules = append(v.SeriesMatchingRules, rule)
	case RuleKindImage:
		v.ImageMatchingRules = append(v.ImageMatchingRules, rule)
	}
}

// RemoveRule finds and removes a rule from whichever array its kind selects,
// reporting whether it was present.
func (v *Viewport) RemoveRule(rule Rule) bool {
	var removed bool
	switch rule.Kind {
	case RuleKindStudy:
		v.StudyMatchingRules, removed = removeRule(v.StudyMatchingRules, rule.ID)
	case RuleKindSeries:
		v.SeriesMatchingRules, removed = removeRule(v.SeriesMatchingRules, rule.ID)
	case RuleKindImage:
		v.ImageMatchingRules, removed = removeRule(v.ImageMatchingRules, rule.ID)
	}
	return removed
}

func (v *Viewport) normalize() {
	normalizeRules(v.StudyMatchingRules, RuleKindStudy)
	normalizeRules(v.SeriesMatchingRules, RuleKindSeries)
	normalizeRules(v.ImageMatchingRules, RuleKindImage)
}

// StageActivation gates whether a stage is eligible, by the minimum number
// of viewports that must have a matched display set.
type StageActivation struct {
	MinViewportsMatched int `json:"minViewportsMatched"`
}

// StageActivations groups the enabled (automatic selection) and passive
// (manual selection) activation thresholds.
type StageActivations struct {
	Enabled *StageActivation `json:"enabled,omitempty"`
	Passive *StageActivation `json:"passive,omitempty"`
}

// Stage is one step in a protocol's display set sequence: a layout plus the
// viewports that fill it. Stages must be authored in descending specificity;
// stage selection is first-fit over declaration order.
type Stage struct {
	ID                string            `json:"id,omitempty"`
	Name              string            `json:"name,omitempty"`
	ViewportStructure ViewportStructure `json:"viewportStructure"`
	Viewports         []*Viewport       `json:"viewports,omitempty"`
	CreatedDate       time.Time         `json:"createdDate,omitempty"`
	StageActivation   *StageActivations `json:"stageActivation,omitempty"`
}

// NewStage creates a stage with a fresh identifier.
func NewStage(structure ViewportStructure, name string) *Stage {
	return &Stage{
		ID:                uuid.NewString(),
		Name:              name,
		ViewportStructure: structure,
		CreatedDate:       time.Now().UTC(),
	}
}

// CreateClone returns a deep copy of the stage with a regenerated identifier
// and, when given, a new name.
func (s *Stage) CreateClone(name string) (*Stage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize stage: %w", err)
	}
	var clone Stage
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to hydrate stage clone: %w", err)
	}
	clone.ID = uuid.NewString()
	if name != "" {
		clone.Name = name
	}
	clone.normalize()
	return &clone, nil
}

func (s *Stage) normalize() {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for _, vp := range s.Viewports {
		vp.normalize()
	}
}

// enabledThreshold returns the minimum matched-viewport count for this stage
// to be eligible during automatic selection. Stages without an activation
// block require a single matched viewport.
func (s *Stage) enabledThreshold() int {
	if s.StageActivation == nil || s.StageActivation.Enabled == nil {
		return 1
	}
	return s.StageActivation.Enabled.MinViewportsMatched
}

// DisplaySetSelector is a named, reusable rule bundle referenced by id from
// one or more viewports. Selector rankings are computed once per matching
// pass and shared across viewports.
type DisplaySetSelector struct {
	ID                  string `json:"id,omitempty"`
	AllowUnmatchedView  bool   `json:"allowUnmatchedView,omitempty"`
	StudyMatchingRules  []Rule `json:"studyMatchingRules,omitempty"`
	SeriesMatchingRules []Rule `json:"seriesMatchingRules,omitempty"`
}

// Protocol is the top-level hanging protocol: a set of matching rules that
// decide when it applies, and an ordered sequence of stages to hang.
type Protocol struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	// Locked protocols cannot be edited; the default protocol ships locked.
	Locked       bool      `json:"locked,omitempty"`
	CreatedDate  time.Time `json:"createdDate,omitempty"`
	ModifiedDate time.Time `json:"modifiedDate,omitempty"`
	CreatedBy    string    `json:"createdBy,omitempty"`
	ModifiedBy   string    `json:"modifiedBy,omitempty"`

	// Role identifiers with read and write access.
	AvailableTo map[string]bool `json:"availableTo,omitempty"`
	EditableBy  map[string]bool `json:"editableBy,omitempty"`

	ProtocolMatchingRules []Rule   `json:"protocolMatchingRules,omitempty"`
	Stages                []*Stage `json:"stages,omitempty"`

	// DisplaySetSelectors are the named selectors viewports reference in
	// the declarative form.
	DisplaySetSelectors map[string]*DisplaySetSelector `json:"displaySetSelectors,omitempty"`

	// NumberOfPriorsReferenced is derived: the count of viewport
	// study-matching rules across all stages whose attribute is
	// abstractPriorValue or relativeTime. Recomputed on every structural
	// mutation.
	NumberOfPriorsReferenced int `json:"numberOfPriorsReferenced"`
}

// NewProtocol creates a protocol with the bare minimum information.
func NewProtocol(name string) *Protocol {
	now := time.Now().UTC()
	return &Protocol{
		ID:           uuid.NewString(),
		Name:         name,
		CreatedDate:  now,
		ModifiedDate: now,
		AvailableTo:  make(map[string]bool),
		EditableBy:   make(map[string]bool),
	}
}

// ProtocolFromObject hydrates a protocol from decoded data, preserving
// identifiers that are present and minting fresh ones otherwise, then
// restores the derived prior count.
func ProtocolFromObject(input *Protocol) *Protocol {
	if input == nil {
		return nil
	}
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.AvailableTo == nil {
		input.AvailableTo = make(map[string]bool)
	}
	if input.EditableBy == nil {
		input.EditableBy = make(map[string]bool)
	}
	normalizeRules(input.ProtocolMatchingRules, RuleKindProtocol)
	for _, stage := range input.Stages {
		stage.normalize()
	}
	for id, selector := range input.DisplaySetSelectors {
		if selector.ID == "" {
			selector.ID = id
		}
		normalizeRules(selector.StudyMatchingRules, RuleKindStudy)
		normalizeRules(selector.SeriesMatchingRules, RuleKindSeries)
	}
	input.updateNumberOfPriorsReferenced()
	return input
}

// ParseProtocol decodes a serialized protocol and hydrates it.
func ParseProtocol(data []byte) (*Protocol, error) {
	var p Protocol
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse protocol: %w", err)
	}
	return ProtocolFromObject(&p), nil
}

// Serialize encodes the protocol for storage. ParseProtocol(Serialize())
// reproduces an equivalent protocol.
func (p *Protocol) Serialize() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize protocol: %w", err)
	}
	return data, nil
}

// CreateClone returns a deep copy of the protocol with a regenerated
// identifier and the locked flag cleared, optionally renamed.
func (p *Protocol) CreateClone(name string) (*Protocol, error) {
	data, err := p.Serialize()
	if err != nil {
		return nil, err
	}
	clone, err := ParseProtocol(data)
	if err != nil {
		return nil, err
	}
	clone.ID = uuid.NewString()
	clone.Locked = false
	if name != "" {
		clone.Name = name
	}
	return clone, nil
}

// AddStage appends a stage to the display set sequence.
func (p *Protocol) AddStage(stage *Stage) {
	p.Stages = append(p.Stages, stage)
	p.protocolWasModified()
}

// RemoveStage removes a stage by id, reporting whether it was present.
func (p *Protocol) RemoveStage(stageID string) bool {
	for i, stage := range p.Stages {
		if stage.ID == stageID {
			p.Stages = append(p.Stages[:i:i], p.Stages[i+1:]...)
			p.protocolWasModified()
			return true
		}
	}
	return false
}

// AddProtocolMatchingRule appends a rule to the protocol matching rules.
func (p *Protocol) AddProtocolMatchingRule(rule Rule) {
	p.ProtocolMatchingRules = append(p.ProtocolMatchingRules, rule)
	p.protocolWasModified()
}

// RemoveProtocolMatchingRule removes a rule by id, reporting whether it was
// present.
func (p *Protocol) RemoveProtocolMatchingRule(rule Rule) bool {
	rules, removed := removeRule(p.ProtocolMatchingRules, rule.ID)
	if removed {
		p.ProtocolMatchingRules = rules
		p.protocolWasModified()
	}
	return removed
}

// AddAvailableTo grants a role read access.
func (p *Protocol) AddAvailableTo(roleID string) {
	if p.AvailableTo == nil {
		p.AvailableTo = make(map[string]bool)
	}
	p.AvailableTo[roleID] = true
	p.protocolWasModified()
}

// AddEditableBy grants a role write access.
func (p *Protocol) AddEditableBy(roleID string) {
	if p.EditableBy == nil {
		p.EditableBy = make(map[string]bool)
	}
	p.EditableBy[roleID] = true
	p.protocolWasModified()
}

// protocolWasModified is invoked from every mutator: it refreshes the
// modified timestamp and keeps the derived prior count in step with the
// structure.
func (p *Protocol) protocolWasModified() {
	p.updateNumberOfPriorsReferenced()
	p.ModifiedDate = time.Now().UTC()
}

func (p *Protocol) updateNumberOfPriorsReferenced() {
	count := 0
	for _, stage := range p.Stages {
		for _, viewport := range stage.Viewports {
			for _, rule := range viewport.StudyMatchingRules {
				switch rule.Attribute {
				case attributeAbstractPriorValue, attributeRelativeTime:
					count++
				}
			}
		}
	}
	p.NumberOfPriorsReferenced = count
}
