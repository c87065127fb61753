package hp

// DefaultProtocolID is the reserved identifier of the terminal fallback
// protocol. A library may ship its own protocol under this id to override
// the built-in one.
const DefaultProtocolID = "default"

// DefaultProtocol builds the locked terminal fallback: a single 1x1 stage
// with an unconstrained viewport, which hangs the first series of the first
// study. Protocol selection falls back to it whenever nothing else matches,
// so it must itself match anything.
func DefaultProtocol() *Protocol {
	stage := NewStage(ViewportStructure{
		Type:       GridLayout,
		Properties: LayoutProperties{Rows: 1, Columns: 1},
	}, "1x1")
	stage.Viewports = []*Viewport{NewViewport()}

	protocol := NewProtocol("Default")
	protocol.ID = DefaultProtocolID
	protocol.Locked = true
	protocol.Stages = []*Stage{stage}
	return protocol
}
