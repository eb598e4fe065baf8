package model

const TOPIC_ADVISE string = "advise"
const TOPIC_START string = "start"

// Message is a single entry read from the event stream.
type Message struct {
	Id          string
	Topic       string
	SubTopic    string
	ServiceName string
	Payload     []byte
}

type AdviseEvent struct {
	AppId         string          `json:"appId"`
	CorrelationId string          `json:"correlationId"`
	Status        ExecutionStatus `json:"status"`
	ErrorMsg      string          `json:"errorMsg,omitempty"`
	Data          map[string]any  `json:"data,omitempty"`
}

type StartEvent struct {
	AppId           string           `json:"appId"`
	StateMachineId  string           `json:"stateMachineId"`
	ExecutionUuid   string           `json:"executionUuid,omitempty"`
	ContextElements []ContextElement `json:"contextElements,omitempty"`
	Callback        *CallbackRef     `json:"callback,omitempty"`
}
