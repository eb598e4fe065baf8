package engine

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/state"
	"github.com/mohitkumar/stepflow/statemachine"
	"github.com/mohitkumar/stepflow/util"
)

var _ state.Context = new(ExecutionContext)

// ExecutionContext is the per-run view of one instance inside its state
// machine.
type ExecutionContext struct {
	executor     *StateMachineExecutor
	stateMachine *statemachine.StateMachine
	instance     *model.StateExecutionInstance
	mu           sync.Mutex
	contextDirty bool
}

func newExecutionContext(e *StateMachineExecutor, sm *statemachine.StateMachine, instance *model.StateExecutionInstance) *ExecutionContext {
	return &ExecutionContext{
		executor:     e,
		stateMachine: sm,
		instance:     instance,
	}
}

func (ec *ExecutionContext) StateMachine() *statemachine.StateMachine {
	return ec.stateMachine
}

func (ec *ExecutionContext) Instance() *model.StateExecutionInstance {
	return ec.instance
}

func (ec *ExecutionContext) AppId() string {
	return ec.instance.AppId
}

func (ec *ExecutionContext) ExecutionUuid() string {
	return ec.instance.ExecutionUuid
}

func (ec *ExecutionContext) InstanceId() string {
	return ec.instance.Uuid
}

func (ec *ExecutionContext) StateName() string {
	return ec.instance.StateName
}

func (ec *ExecutionContext) ContextElements() model.ContextStack {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.instance.ContextElements.Copy()
}

func (ec *ExecutionContext) PushContextElement(e model.ContextElement) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.instance.ContextElements.Push(e)
	ec.contextDirty = true
}

func (ec *ExecutionContext) Data() map[string]any {
	ec.mu.Lock()
	elements := make(map[string]any, ec.instance.ContextElements.Len())
	for _, e := range ec.instance.ContextElements {
		elements[e.Name] = e.Value
	}
	states := make(map[string]any, len(ec.instance.StateExecutionMap))
	for name, data := range ec.instance.StateExecutionMap {
		states[name] = map[string]any{
			"status": string(data.Status),
			"data":   data.Data,
		}
	}
	ec.mu.Unlock()
	data, err := util.Normalize(map[string]any{
		"context": elements,
		"states":  states,
	})
	if err != nil {
		return map[string]any{"context": elements, "states": states}
	}
	return data
}

func (ec *ExecutionContext) ScheduleTimeout(correlationId string, d time.Duration) error {
	return ec.executor.coordinator.Timeout(context.Background(), correlationId, d)
}

func (ec *ExecutionContext) isContextDirty() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.contextDirty
}
