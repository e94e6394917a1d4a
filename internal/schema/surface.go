package schema

// ValueArity classifies whether a surface item takes a value.
type ValueArity string

const (
	ArityNone     ValueArity = "none"
	ArityOptional ValueArity = "optional"
	ArityRequired ValueArity = "required"
	ArityUnknown  ValueArity = "unknown"
)

// ValueSeparator classifies how a surface item's value is attached.
type ValueSeparator string

const (
	SeparatorNone   ValueSeparator = "none"
	SeparatorSpace  ValueSeparator = "space"
	SeparatorEquals ValueSeparator = "equals"
	SeparatorEither ValueSeparator = "either"
	SeparatorUnknown ValueSeparator = "unknown"
)

// Invocation describes how a surface item is actually invoked, extracted
// from help text and augmented by semantics.json overlays.
type Invocation struct {
	ValueArity     ValueArity     `json:"value_arity"`
	ValueSeparator ValueSeparator `json:"value_separator"`
	ValueExamples  []string       `json:"value_examples,omitempty"`
	RequiresArgv   []string       `json:"requires_argv,omitempty"`
}

// SurfaceItem is one observable element of the binary's interface.
type SurfaceItem struct {
	ID          string     `json:"id"`
	ParentID    string     `json:"parent_id,omitempty"`
	ContextArgv []string   `json:"context_argv"`
	Forms       []string   `json:"forms"`
	Invocation  Invocation `json:"invocation"`
	Description string     `json:"description,omitempty"`
	EvidenceRefs []string  `json:"evidence_refs,omitempty"`
}

// SurfaceInventory is inventory/surface.json.
type SurfaceInventory struct {
	Items []SurfaceItem `json:"items"`
}

// ByID indexes the inventory by surface id.
func (s *SurfaceInventory) ByID() map[string]SurfaceItem {
	m := make(map[string]SurfaceItem, len(s.Items))
	for _, it := range s.Items {
		m[it.ID] = it
	}
	return m
}

// LoadSurfaceInventory reads inventory/surface.json, returning an empty
// inventory if the file does not yet exist.
func LoadSurfaceInventory(path string) (*SurfaceInventory, error) {
	var s SurfaceInventory
	if err := LoadFile(path, &s); err != nil {
		if isNotExist(err) {
			return &SurfaceInventory{}, nil
		}
		return nil, err
	}
	return &s, nil
}
