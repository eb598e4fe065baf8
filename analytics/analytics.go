package analytics

import (
	"sync"

	"github.com/mohitkumar/stepflow/model"
)

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"
const NOOP_DATA_COLLECTOR DataCollectorType = "NOOP"

type StateDataCollector interface {
	RecordStateSuccess(instance *model.StateExecutionInstance, data map[string]any)
	RecordStateFailure(instance *model.StateExecutionInstance, reason string)
}

var (
	mu        sync.RWMutex
	collector StateDataCollector = noopCollector{}
)

func InitDataCollector(config DataCollectorConfig) error {
	var c StateDataCollector = noopCollector{}
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		lc, err := NewLogFileDataCollector(config.FileName)
		if err != nil {
			return err
		}
		c = lc
	}
	mu.Lock()
	collector = c
	mu.Unlock()
	return nil
}

func current() StateDataCollector {
	mu.RLock()
	defer mu.RUnlock()
	return collector
}

func RecordStateSuccess(instance *model.StateExecutionInstance, data map[string]any) {
	current().RecordStateSuccess(instance, data)
}

func RecordStateFailure(instance *model.StateExecutionInstance, reason string) {
	current().RecordStateFailure(instance, reason)
}

type noopCollector struct{}

func (noopCollector) RecordStateSuccess(*model.StateExecutionInstance, map[string]any) {}
func (noopCollector) RecordStateFailure(*model.StateExecutionInstance, string)         {}

// Sync flushes the current collector when it buffers records.
func Sync() error {
	if s, ok := current().(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}
