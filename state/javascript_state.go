package state

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/util"
	"go.uber.org/zap"
)

var _ State = new(javascriptState)

// javascriptState runs a script with $ bound to the context data. The state
// fails when the script evaluates to false; $ after the run is the output.
type javascriptState struct {
	baseState
	Script string `json:"script"`
}

func NewJavascriptState(def model.StateDef) (State, error) {
	s := &javascriptState{baseState: newBaseState(def, JAVASCRIPT_STATE)}
	if err := decodeParams(def.Params, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *javascriptState) Validate() error {
	if err := s.baseState.Validate(); err != nil {
		return err
	}
	if len(s.Script) == 0 {
		return fmt.Errorf("state %s: script can not be empty", s.name)
	}
	if _, err := goja.Compile(s.name, s.Script, false); err != nil {
		return fmt.Errorf("state %s: invalid script: %w", s.name, err)
	}
	return nil
}

func (s *javascriptState) Execute(ctx Context) (*model.ExecutionResponse, error) {
	logger.Debug("running javascript state", zap.String("state", s.name), zap.String("instanceId", ctx.InstanceId()))
	vm := goja.New()
	if err := vm.Set("$", ctx.Data()); err != nil {
		return nil, err
	}
	val, err := vm.RunString(s.Script)
	if err != nil {
		return nil, fmt.Errorf("error executing javascript %w", err)
	}
	output, err := util.Normalize(vm.Get("$").Export())
	if err != nil {
		return nil, err
	}
	if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) && !val.ToBoolean() {
		return model.FailedResponse(fmt.Sprintf("script of state %s evaluated to false", s.name), output), nil
	}
	return model.SuccessResponse(output), nil
}
