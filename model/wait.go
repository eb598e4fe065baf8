package model

// WaitInstance is a registration waiting on every one of CorrelationIds.
type WaitInstance struct {
	Id             string      `json:"id"`
	CorrelationIds []string    `json:"correlationIds"`
	Callback       CallbackRef `json:"callback"`
	CreatedAt      int64       `json:"createdAt"`
}

// NotifyResponse is the result delivered for one correlation id.
type NotifyResponse struct {
	CorrelationId string          `json:"correlationId"`
	Status        ExecutionStatus `json:"status"`
	ErrorMsg      string          `json:"errorMsg,omitempty"`
	Data          map[string]any  `json:"data,omitempty"`
}
