package analytics

import (
	"os"

	"github.com/mohitkumar/stepflow/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogFileDataCollector struct {
	fileName string
	logger   *zap.Logger
}

var _ StateDataCollector = new(LogFileDataCollector)

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (lc *LogFileDataCollector) RecordStateSuccess(instance *model.StateExecutionInstance, data map[string]any) {
	lc.logger.Info("success", instanceFields(instance, zap.Any("data", data))...)
}

func (lc *LogFileDataCollector) RecordStateFailure(instance *model.StateExecutionInstance, reason string) {
	lc.logger.Info("failure", instanceFields(instance, zap.String("reason", reason))...)
}

func (lc *LogFileDataCollector) Sync() error {
	return lc.logger.Sync()
}

func instanceFields(instance *model.StateExecutionInstance, extra ...zap.Field) []zap.Field {
	fields := []zap.Field{
		zap.String("appId", instance.AppId),
		zap.String("executionUuid", instance.ExecutionUuid),
		zap.String("stateMachineId", instance.StateMachineId),
		zap.String("state", instance.StateName),
		zap.String("instanceId", instance.Uuid),
		zap.Int64("startTs", instance.StartTs),
		zap.Int64("endTs", instance.EndTs),
	}
	return append(fields, extra...)
}
