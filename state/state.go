package state

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/mohitkumar/stepflow/model"
)

type StateType string

const NOOP_STATE StateType = "noop"
const FAIL_STATE StateType = "fail"
const JAVASCRIPT_STATE StateType = "javascript"
const CONDITION_STATE StateType = "condition"
const JSON_MAPPER_STATE StateType = "jsonmapper"
const WAIT_STATE StateType = "wait"
const FORK_STATE StateType = "fork"

// Context is the view of a running instance handed to a state.
type Context interface {
	AppId() string
	ExecutionUuid() string
	InstanceId() string
	StateName() string
	ContextElements() model.ContextStack
	PushContextElement(e model.ContextElement)
	// Data is a JSON shaped view used by expressions:
	// {"context": {elementName: value}, "states": {stateName: data}}.
	Data() map[string]any
	ScheduleTimeout(correlationId string, d time.Duration) error
}

type State interface {
	Name() string
	Type() StateType
	SkipType() string
	Validate() error
	Execute(ctx Context) (*model.ExecutionResponse, error)
	HandleAsyncResponse(ctx Context, responses map[string]model.NotifyResponse) (*model.ExecutionResponse, error)
}

var _ State = new(baseState)

type baseState struct {
	name      string
	stateType StateType
	skipType  string
	params    map[string]any
}

func newBaseState(def model.StateDef, stateType StateType) baseState {
	return baseState{
		name:      def.Name,
		stateType: stateType,
		skipType:  def.SkipType,
		params:    def.Params,
	}
}

func (bs *baseState) Name() string {
	return bs.name
}

func (bs *baseState) Type() StateType {
	return bs.stateType
}

func (bs *baseState) SkipType() string {
	return bs.skipType
}

func (bs *baseState) Validate() error {
	if len(bs.name) == 0 {
		return fmt.Errorf("state of type %s has no name", bs.stateType)
	}
	return nil
}

func (bs *baseState) Execute(ctx Context) (*model.ExecutionResponse, error) {
	return nil, fmt.Errorf("state %s can not be executed", bs.name)
}

func (bs *baseState) HandleAsyncResponse(ctx Context, responses map[string]model.NotifyResponse) (*model.ExecutionResponse, error) {
	return nil, fmt.Errorf("state %s of type %s does not accept async responses", bs.name, bs.stateType)
}

func decodeParams(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(params)
}
