package model

// StateDef is the persisted definition of a single state.
type StateDef struct {
	Name     string         `json:"name" yaml:"name"`
	Type     string         `json:"type" yaml:"type"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	SkipType string         `json:"skipType,omitempty" yaml:"skipType,omitempty"`
}

// StateMachine is the persisted definition of an execution graph.
type StateMachine struct {
	Uuid               string            `json:"uuid" yaml:"uuid"`
	AppId              string            `json:"appId" yaml:"appId"`
	Name               string            `json:"name" yaml:"name"`
	InitialStateName   string            `json:"initialStateName" yaml:"initialStateName"`
	States             []StateDef        `json:"states" yaml:"states"`
	SuccessTransitions map[string]string `json:"successTransitions,omitempty" yaml:"successTransitions,omitempty"`
	FailureTransitions map[string]string `json:"failureTransitions,omitempty" yaml:"failureTransitions,omitempty"`
}

type ExecutionRequest struct {
	AppId           string           `json:"appId"`
	StateMachineId  string           `json:"stateMachineId"`
	ExecutionUuid   string           `json:"executionUuid,omitempty"`
	ContextElements []ContextElement `json:"contextElements,omitempty"`
	Callback        *CallbackRef     `json:"callback,omitempty"`
}
