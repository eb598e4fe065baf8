package state

import (
	"fmt"

	"github.com/mohitkumar/stepflow/model"
)

var _ State = new(noopState)

type noopState struct {
	baseState
}

func NewNoopState(def model.StateDef) (State, error) {
	return &noopState{baseState: newBaseState(def, NOOP_STATE)}, nil
}

func (s *noopState) Execute(ctx Context) (*model.ExecutionResponse, error) {
	return model.SuccessResponse(nil), nil
}

var _ State = new(failState)

type failState struct {
	baseState
	Message string `json:"message"`
}

func NewFailState(def model.StateDef) (State, error) {
	s := &failState{baseState: newBaseState(def, FAIL_STATE)}
	if err := decodeParams(def.Params, s); err != nil {
		return nil, err
	}
	if len(s.Message) == 0 {
		s.Message = fmt.Sprintf("state %s failed", def.Name)
	}
	return s, nil
}

func (s *failState) Execute(ctx Context) (*model.ExecutionResponse, error) {
	return model.FailedResponse(s.Message, nil), nil
}
