package model

// ContextElement is a typed, named piece of data scoped to an execution.
type ContextElement struct {
	Name  string         `json:"name"`
	Type  string         `json:"type"`
	Value map[string]any `json:"value,omitempty"`
}

// ContextStack holds context elements oldest first. The most recently pushed
// element wins on lookups.
type ContextStack []ContextElement

func (cs *ContextStack) Push(e ContextElement) {
	*cs = append(*cs, e)
}

func (cs ContextStack) Peek() (ContextElement, bool) {
	if len(cs) == 0 {
		return ContextElement{}, false
	}
	return cs[len(cs)-1], true
}

func (cs ContextStack) PeekByType(elementType string) (ContextElement, bool) {
	for i := len(cs) - 1; i >= 0; i-- {
		if cs[i].Type == elementType {
			return cs[i], true
		}
	}
	return ContextElement{}, false
}

func (cs ContextStack) PeekByName(name string) (ContextElement, bool) {
	for i := len(cs) - 1; i >= 0; i-- {
		if cs[i].Name == name {
			return cs[i], true
		}
	}
	return ContextElement{}, false
}

func (cs ContextStack) Len() int {
	return len(cs)
}

func (cs ContextStack) Copy() ContextStack {
	if cs == nil {
		return nil
	}
	out := make(ContextStack, 0, len(cs))
	for _, e := range cs {
		out = append(out, ContextElement{
			Name:  e.Name,
			Type:  e.Type,
			Value: copyMap(e.Value),
		})
	}
	return out
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
