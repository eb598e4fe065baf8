package state

import (
	"fmt"

	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/util"
)

var _ State = new(jsonMapperState)

type jsonMapperState struct {
	baseState
	Output map[string]any `json:"output"`
	// PublishAs pushes the resolved output as a context element with this name.
	PublishAs string `json:"publishAs"`
}

func NewJsonMapperState(def model.StateDef) (State, error) {
	s := &jsonMapperState{baseState: newBaseState(def, JSON_MAPPER_STATE)}
	if err := decodeParams(def.Params, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *jsonMapperState) Validate() error {
	if err := s.baseState.Validate(); err != nil {
		return err
	}
	if len(s.Output) == 0 {
		return fmt.Errorf("state %s: output can not be empty", s.name)
	}
	return nil
}

func (s *jsonMapperState) Execute(ctx Context) (*model.ExecutionResponse, error) {
	output := util.ResolveParams(ctx.Data(), s.Output)
	if len(s.PublishAs) > 0 {
		ctx.PushContextElement(model.ContextElement{
			Name:  s.PublishAs,
			Type:  string(JSON_MAPPER_STATE),
			Value: output,
		})
	}
	return model.SuccessResponse(output), nil
}
