package model

// StateExecutionData is the per-state record kept on an instance.
type StateExecutionData struct {
	StateName      string          `json:"stateName"`
	StateType      string          `json:"stateType,omitempty"`
	Status         ExecutionStatus `json:"status"`
	StartTs        int64           `json:"startTs,omitempty"`
	EndTs          int64           `json:"endTs,omitempty"`
	ErrorMsg       string          `json:"errorMsg,omitempty"`
	CorrelationIds []string        `json:"correlationIds,omitempty"`
	Data           map[string]any  `json:"data,omitempty"`
}

// CallbackRef names a terminal callback registered on the executor. It is
// persisted with the instance so it survives a restart between hops.
type CallbackRef struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

// StateExecutionInstance is the durable record of one hop of an execution.
type StateExecutionInstance struct {
	Uuid              string                        `json:"uuid"`
	AppId             string                        `json:"appId"`
	ExecutionUuid     string                        `json:"executionUuid"`
	StateMachineId    string                        `json:"stateMachineId"`
	StateName         string                        `json:"stateName"`
	StateType         string                        `json:"stateType,omitempty"`
	ContextElements   ContextStack                  `json:"contextElements,omitempty"`
	StateExecutionMap map[string]StateExecutionData `json:"stateExecutionMap,omitempty"`
	Status            ExecutionStatus               `json:"status"`
	StartTs           int64                         `json:"startTs,omitempty"`
	EndTs             int64                         `json:"endTs,omitempty"`
	NotifyId          string                        `json:"notifyId,omitempty"`
	ParentInstanceId  string                        `json:"parentInstanceId,omitempty"`
	PrevInstanceId    string                        `json:"prevInstanceId,omitempty"`
	ErrorMsg          string                        `json:"errorMsg,omitempty"`
	Suspended         bool                          `json:"suspended,omitempty"`
	Callback          *CallbackRef                  `json:"callback,omitempty"`
	CreatedAt         int64                         `json:"createdAt,omitempty"`
}

// CloneForTransition builds the instance for the next hop. Identity, status
// and timestamps are reset; ownership ids, context and the terminal hooks
// carry over.
func (si *StateExecutionInstance) CloneForTransition(nextState string) *StateExecutionInstance {
	clone := &StateExecutionInstance{
		AppId:             si.AppId,
		ExecutionUuid:     si.ExecutionUuid,
		StateMachineId:    si.StateMachineId,
		StateName:         nextState,
		ContextElements:   si.ContextElements.Copy(),
		StateExecutionMap: make(map[string]StateExecutionData, len(si.StateExecutionMap)),
		Status:            NEW,
		NotifyId:          si.NotifyId,
		ParentInstanceId:  si.ParentInstanceId,
		PrevInstanceId:    si.Uuid,
	}
	for k, v := range si.StateExecutionMap {
		clone.StateExecutionMap[k] = v
	}
	if si.Callback != nil {
		cb := &CallbackRef{Name: si.Callback.Name}
		if si.Callback.Params != nil {
			cb.Params = make(map[string]string, len(si.Callback.Params))
			for k, v := range si.Callback.Params {
				cb.Params[k] = v
			}
		}
		clone.Callback = cb
	}
	return clone
}

func (si *StateExecutionInstance) PutStateExecutionData(data StateExecutionData) {
	if si.StateExecutionMap == nil {
		si.StateExecutionMap = make(map[string]StateExecutionData)
	}
	si.StateExecutionMap[data.StateName] = data
}
