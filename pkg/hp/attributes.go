package hp

// AttributeFunc computes an attribute value for an entity at matching time.
// Returning nil means the attribute is absent for this entity.
type AttributeFunc func(entity Entity, opts Options) any

// Resolver resolves rule attributes against an entity, an options bag, or a
// registered custom attribute callback. Custom attributes let extensions add
// computed values (e.g. timepoint type, laterality) without the engine
// knowing about them.
type Resolver struct {
	custom map[string]AttributeFunc
}

// NewResolver creates a resolver pre-populated with the built-in computed
// attributes (numImages, laterality, isDisplaySetFromUrl).
func NewResolver() *Resolver {
	r := &Resolver{custom: make(map[string]AttributeFunc)}
	registerBuiltins(r)
	return r
}

// Register adds or replaces a custom attribute callback.
func (r *Resolver) Register(attributeID string, fn AttributeFunc) {
	r.custom[attributeID] = fn
}

// Resolve returns the current value of an attribute for the given entity.
// When from is "options" the value is read from the options bag instead of
// the entity. Missing attributes resolve to nil, never an error.
func (r *Resolver) Resolve(attribute, from string, entity Entity, opts Options) any {
	if from == FromOptions {
		return opts[attribute]
	}
	if entity != nil {
		if v, ok := entity.Attribute(attribute); ok {
			return v
		}
	}
	if fn, ok := r.custom[attribute]; ok {
		return fn(entity, opts)
	}
	return nil
}

// FromOptions marks a rule whose attribute is sourced from the options bag
// rather than the candidate entity.
const FromOptions = "options"

func registerBuiltins(r *Resolver) {
	// Number of image-level entries in a series.
	r.Register("numImages", func(entity Entity, _ Options) any {
		if s, ok := entity.(*Series); ok {
			return len(s.Instances)
		}
		return nil
	})

	// Frame laterality buried in the shared functional groups sequence.
	r.Register("laterality", func(entity Entity, _ Options) any {
		inst, ok := entity.(*Instance)
		if !ok {
			return nil
		}
		return sequenceValue(inst.Attributes,
			"SharedFunctionalGroupsSequence", "FrameAnatomySequence", "FrameLaterality")
	})

	// True when the series was explicitly requested via deep link. Used as a
	// high-weight preference rule, never required.
	r.Register("isDisplaySetFromUrl", func(entity Entity, opts Options) any {
		s, ok := entity.(*Series)
		if !ok {
			return false
		}
		requested, ok := opts["displaySetsFromUrl"].([]string)
		if !ok {
			return false
		}
		uid := s.DisplaySetInstanceUID()
		for _, r := range requested {
			if r == uid {
				return true
			}
		}
		return false
	})
}

// sequenceValue walks nested DICOM sequences, taking the first item at each
// level, and returns the terminal attribute or nil when any hop is absent.
func sequenceValue(attrs Attributes, path ...string) any {
	current := any(attrs)
	for i, key := range path {
		m, ok := toAttributeMap(current)
		if !ok {
			return nil
		}
		v, ok := m[key]
		if !ok {
			return nil
		}
		if i == len(path)-1 {
			return v
		}
		items, ok := toSequence(v)
		if !ok || len(items) == 0 {
			return nil
		}
		current = items[0]
	}
	return nil
}

func toAttributeMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Attributes:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func toSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	}
	return nil, false
}
