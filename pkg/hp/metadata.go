package hp

// Attributes holds DICOM-derived attributes by name, e.g. "StudyInstanceUID",
// "SeriesDescription", "Modality". Values are whatever the metadata source
// produced: strings, numbers, booleans, or nested sequences.
type Attributes map[string]any

// Entity is anything with named attributes that rules can be evaluated
// against: a study, a series, or an instance.
type Entity interface {
	Attribute(name string) (any, bool)
}

// Study is one node of the normalized metadata tree supplied by the data
// source. The first study in a matching pass is the "current" study; the
// rest are priors in positional order.
type Study struct {
	Attributes Attributes `json:"attributes"`
	Series     []*Series  `json:"series,omitempty"`
}

// Series belongs to a study and carries its instances in acquisition order.
type Series struct {
	Attributes Attributes  `json:"attributes"`
	Instances  []*Instance `json:"instances,omitempty"`
}

// Instance is a single image-level entry within a series.
type Instance struct {
	Attributes Attributes `json:"attributes"`
}

// Attribute implements Entity.
func (s *Study) Attribute(name string) (any, bool) {
	v, ok := s.Attributes[name]
	return v, ok
}

// Attribute implements Entity.
func (s *Series) Attribute(name string) (any, bool) {
	v, ok := s.Attributes[name]
	return v, ok
}

// Attribute implements Entity.
func (i *Instance) Attribute(name string) (any, bool) {
	v, ok := i.Attributes[name]
	return v, ok
}

// StudyInstanceUID returns the study UID attribute, or "" when absent.
func (s *Study) StudyInstanceUID() string {
	return stringAttribute(s.Attributes, "StudyInstanceUID")
}

// SeriesInstanceUID returns the series UID attribute, or "" when absent.
func (s *Series) SeriesInstanceUID() string {
	return stringAttribute(s.Attributes, "SeriesInstanceUID")
}

// DisplaySetInstanceUID returns the display set UID the viewer assigned to
// this series, falling back to the series UID when the metadata source did
// not group instances into display sets.
func (s *Series) DisplaySetInstanceUID() string {
	if uid := stringAttribute(s.Attributes, "displaySetInstanceUID"); uid != "" {
		return uid
	}
	return s.SeriesInstanceUID()
}

// SOPInstanceUID returns the instance UID attribute, or "" when absent.
func (i *Instance) SOPInstanceUID() string {
	return stringAttribute(i.Attributes, "SOPInstanceUID")
}

func stringAttribute(attrs Attributes, name string) string {
	if v, ok := attrs[name].(string); ok {
		return v
	}
	return ""
}

// Options is the per-pass options bag carrying cross-cutting context such as
// the positional study index ("studyInstanceUIDsIndex") or URL-driven
// display set preferences. It is read-only during a matching pass.
type Options map[string]any

// with returns a shallow copy of the options with one extra key set, leaving
// the caller's bag untouched.
func (o Options) with(key string, value any) Options {
	out := make(Options, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	out[key] = value
	return out
}
