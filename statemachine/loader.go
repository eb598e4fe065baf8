package statemachine

import (
	"fmt"
	"os"

	"github.com/mohitkumar/stepflow/model"
	"gopkg.in/yaml.v3"
)

// LoadDefinition reads a definition file. JSON files parse as YAML too.
func LoadDefinition(path string) (*model.StateMachine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefinition(data)
}

func ParseDefinition(data []byte) (*model.StateMachine, error) {
	var def model.StateMachine
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("error parsing state machine definition: %w", err)
	}
	for i := range def.States {
		def.States[i].Params = normalizeYaml(def.States[i].Params).(map[string]any)
	}
	return &def, nil
}

// normalizeYaml turns yaml maps into JSON shaped maps so that params behave
// the same whether a definition came from a file or over http.
func normalizeYaml(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYaml(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYaml(item)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, normalizeYaml(item))
		}
		return out
	case int:
		return float64(val)
	default:
		return v
	}
}
