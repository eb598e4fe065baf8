package engine

import (
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/model"
	"go.uber.org/zap"
)

const NOOP_CALLBACK = "noop"
const LOG_CALLBACK = "log"

// ExecutionCallback is invoked once when an execution chain without a notify
// id reaches its end.
type ExecutionCallback interface {
	Callback(ctx *ExecutionContext, status model.ExecutionStatus, err error)
}

type ExecutionCallbackFunc func(ctx *ExecutionContext, status model.ExecutionStatus, err error)

func (f ExecutionCallbackFunc) Callback(ctx *ExecutionContext, status model.ExecutionStatus, err error) {
	f(ctx, status, err)
}

func logCallback(ctx *ExecutionContext, status model.ExecutionStatus, err error) {
	fields := []zap.Field{
		zap.String("appId", ctx.AppId()),
		zap.String("executionUuid", ctx.ExecutionUuid()),
		zap.String("state", ctx.StateName()),
		zap.String("status", string(status)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Info("execution finished", fields...)
}
