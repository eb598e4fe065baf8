package model

// ExecutionResponse is what a state returns from Execute or
// HandleAsyncResponse. Async responses suspend the instance on the given
// correlation ids; SpawnInstances are started as independent executions.
type ExecutionResponse struct {
	Async              bool
	CorrelationIds     []string
	Status             ExecutionStatus
	StateExecutionData *StateExecutionData
	SpawnInstances     []*StateExecutionInstance
	ErrorMsg           string
}

func SuccessResponse(data map[string]any) *ExecutionResponse {
	return &ExecutionResponse{
		Status:             SUCCESS,
		StateExecutionData: &StateExecutionData{Status: SUCCESS, Data: data},
	}
}

func FailedResponse(msg string, data map[string]any) *ExecutionResponse {
	return &ExecutionResponse{
		Status:             FAILED,
		ErrorMsg:           msg,
		StateExecutionData: &StateExecutionData{Status: FAILED, ErrorMsg: msg, Data: data},
	}
}

func AsyncResponse(correlationIds ...string) *ExecutionResponse {
	return &ExecutionResponse{
		Async:              true,
		Status:             RUNNING,
		CorrelationIds:     correlationIds,
		StateExecutionData: &StateExecutionData{Status: RUNNING, CorrelationIds: correlationIds},
	}
}

func (r *ExecutionResponse) WithSpawn(instances ...*StateExecutionInstance) *ExecutionResponse {
	r.SpawnInstances = append(r.SpawnInstances, instances...)
	return r
}
