package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/stepflow/analytics"
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/metrics"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/state"
	"github.com/mohitkumar/stepflow/statemachine"
	"github.com/mohitkumar/stepflow/util"
	"github.com/mohitkumar/stepflow/waitnotify"
	"go.uber.org/zap"
)

// RESUME_CALLBACK is the wait callback that resumes a suspended instance.
const RESUME_CALLBACK = "state-machine-resume"

const (
	paramAppId      = "appId"
	paramInstanceId = "instanceId"
)

type StateMachineExecutor struct {
	store       persistence.ExecutionStore
	smStore     persistence.StateMachineStore
	registry    *state.Registry
	coordinator *waitnotify.Coordinator
	worker      *util.Worker
	definitions *DefinitionCache
	mu          sync.RWMutex
	callbacks   map[string]ExecutionCallback
}

func NewStateMachineExecutor(store persistence.ExecutionStore, smStore persistence.StateMachineStore, registry *state.Registry,
	coordinator *waitnotify.Coordinator, worker *util.Worker) *StateMachineExecutor {
	e := &StateMachineExecutor{
		store:       store,
		smStore:     smStore,
		registry:    registry,
		coordinator: coordinator,
		worker:      worker,
		definitions: NewDefinitionCache(30 * time.Minute),
		callbacks:   make(map[string]ExecutionCallback),
	}
	e.RegisterCallback(NOOP_CALLBACK, ExecutionCallbackFunc(func(*ExecutionContext, model.ExecutionStatus, error) {}))
	e.RegisterCallback(LOG_CALLBACK, ExecutionCallbackFunc(logCallback))
	coordinator.RegisterCallback(RESUME_CALLBACK, e.resumeCallback)
	return e
}

func (e *StateMachineExecutor) RegisterCallback(name string, cb ExecutionCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks[name] = cb
}

func (e *StateMachineExecutor) callback(name string) (ExecutionCallback, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cb, ok := e.callbacks[name]
	return cb, ok
}

func (e *StateMachineExecutor) Registry() *state.Registry {
	return e.registry
}

// SaveStateMachine validates a definition against the registry and stores it.
func (e *StateMachineExecutor) SaveStateMachine(ctx context.Context, def *model.StateMachine) (*statemachine.StateMachine, error) {
	if def == nil {
		return nil, InvalidArgumentError{Arg: "stateMachine"}
	}
	if len(def.Uuid) == 0 {
		def.Uuid = uuid.New().String()
	}
	sm, err := statemachine.New(*def, e.registry)
	if err != nil {
		return nil, err
	}
	if err := e.smStore.Save(ctx, def); err != nil {
		return nil, err
	}
	e.definitions.Put(sm)
	return sm, nil
}

func (e *StateMachineExecutor) DeleteStateMachine(ctx context.Context, appId string, id string) error {
	e.definitions.Evict(appId, id)
	return e.smStore.Delete(ctx, appId, id)
}

// LoadStateMachine returns the built state machine, reading and validating the
// stored definition on a cache miss.
func (e *StateMachineExecutor) LoadStateMachine(ctx context.Context, appId string, id string) (*statemachine.StateMachine, error) {
	if sm, ok := e.definitions.Get(appId, id); ok {
		return sm, nil
	}
	def, err := e.smStore.Get(ctx, appId, id)
	if err != nil {
		return nil, err
	}
	sm, err := statemachine.New(*def, e.registry)
	if err != nil {
		return nil, err
	}
	e.definitions.Put(sm)
	return sm, nil
}

// Execute persists the instance if it has no identity yet and dispatches its
// current state to the worker pool.
func (e *StateMachineExecutor) Execute(ctx context.Context, sm *statemachine.StateMachine, instance *model.StateExecutionInstance) (*model.StateExecutionInstance, error) {
	if sm == nil {
		return nil, InvalidArgumentError{Arg: "stateMachine"}
	}
	if instance == nil {
		return nil, InvalidArgumentError{Arg: "instance"}
	}
	if len(instance.StateName) == 0 {
		instance.StateName = sm.InitialStateName()
	}
	if s, ok := sm.State(instance.StateName); ok {
		instance.StateType = string(s.Type())
	}
	if len(instance.AppId) == 0 {
		instance.AppId = sm.AppId()
	}
	if len(instance.StateMachineId) == 0 {
		instance.StateMachineId = sm.Id()
	}
	if len(instance.ExecutionUuid) == 0 {
		instance.ExecutionUuid = uuid.New().String()
	}
	if len(instance.Status) == 0 {
		instance.Status = model.NEW
	}
	if len(instance.Uuid) == 0 {
		saved, err := e.store.SaveAndGet(ctx, instance)
		if err != nil {
			return nil, err
		}
		instance = saved
	}
	appId, instanceId := instance.AppId, instance.Uuid
	metrics.ExecutionsStarted.Inc()
	e.worker.Submit(func() {
		e.startExecution(sm, appId, instanceId)
	})
	return instance, nil
}

// ExecuteNew starts a fresh execution at the initial state.
func (e *StateMachineExecutor) ExecuteNew(ctx context.Context, sm *statemachine.StateMachine, executionUuid string, elements []model.ContextElement, cb *model.CallbackRef) (*model.StateExecutionInstance, error) {
	if sm == nil {
		return nil, InvalidArgumentError{Arg: "stateMachine"}
	}
	if cb != nil {
		if _, ok := e.callback(cb.Name); !ok {
			return nil, fmt.Errorf("execution callback %s is not registered", cb.Name)
		}
	}
	instance := &model.StateExecutionInstance{
		ExecutionUuid:   executionUuid,
		StateName:       sm.InitialStateName(),
		ContextElements: model.ContextStack(elements).Copy(),
		Callback:        cb,
		Status:          model.NEW,
	}
	return e.Execute(ctx, sm, instance)
}

func (e *StateMachineExecutor) ExecuteByID(ctx context.Context, req model.ExecutionRequest) (*model.StateExecutionInstance, error) {
	if len(req.AppId) == 0 {
		return nil, InvalidArgumentError{Arg: "appId"}
	}
	if len(req.StateMachineId) == 0 {
		return nil, InvalidArgumentError{Arg: "stateMachineId"}
	}
	sm, err := e.LoadStateMachine(ctx, req.AppId, req.StateMachineId)
	if err != nil {
		return nil, err
	}
	return e.ExecuteNew(ctx, sm, req.ExecutionUuid, req.ContextElements, req.Callback)
}

func (e *StateMachineExecutor) GetInstance(ctx context.Context, appId string, instanceId string) (*model.StateExecutionInstance, error) {
	return e.store.Get(ctx, appId, instanceId)
}

func (e *StateMachineExecutor) ListInstances(ctx context.Context, appId string, executionUuid string) ([]*model.StateExecutionInstance, error) {
	return e.store.ListByExecution(ctx, appId, executionUuid)
}

func (e *StateMachineExecutor) resumeCallback(ctx context.Context, params map[string]string, responses map[string]model.NotifyResponse) error {
	return e.Resume(ctx, params[paramAppId], params[paramInstanceId], responses)
}

// Resume hands the collected responses to the suspended state. A second resume
// of the same suspension returns ErrDoubleResume.
func (e *StateMachineExecutor) Resume(ctx context.Context, appId string, instanceId string, responses map[string]model.NotifyResponse) error {
	instance, err := e.store.Get(ctx, appId, instanceId)
	if err != nil {
		return err
	}
	sm, err := e.LoadStateMachine(ctx, instance.AppId, instance.StateMachineId)
	if err != nil {
		return err
	}
	claimed, err := e.store.ClaimResume(ctx, appId, instanceId)
	if err != nil {
		return err
	}
	if !claimed {
		metrics.Resumes.WithLabelValues("rejected").Inc()
		logger.Warn("resume rejected", zap.String("appId", appId), zap.String("instanceId", instanceId))
		return ErrDoubleResume
	}
	metrics.Resumes.WithLabelValues("accepted").Inc()
	instance.Suspended = false
	ectx := newExecutionContext(e, sm, instance)
	s, ok := sm.State(instance.StateName)
	if !ok {
		e.handleExecuteError(ectx, fmt.Errorf("state %s not found in %s", instance.StateName, sm.Id()))
		return nil
	}
	resp, err := handleAsync(s, ectx, responses)
	if err != nil {
		e.handleExecuteError(ectx, err)
		return nil
	}
	e.handleExecuteResponse(ectx, resp)
	return nil
}

func (e *StateMachineExecutor) startExecution(sm *statemachine.StateMachine, appId string, instanceId string) {
	ctx := context.Background()
	instance, err := e.store.Get(ctx, appId, instanceId)
	if err != nil {
		logger.Error("error loading instance", zap.String("appId", appId), zap.String("instanceId", instanceId), zap.Error(err))
		return
	}
	ectx := newExecutionContext(e, sm, instance)
	instance.Status = model.RUNNING
	instance.StartTs = time.Now().UnixMilli()
	if err := e.store.Update(ctx, instance, persistence.UpdateOps{persistence.FIELD_STATUS, persistence.FIELD_START_TS}); err != nil {
		logger.Error("error updating instance", zap.String("instanceId", instanceId), zap.Error(err))
		return
	}
	s, ok := sm.State(instance.StateName)
	if !ok {
		e.handleExecuteError(ectx, fmt.Errorf("state %s not found in %s", instance.StateName, sm.Id()))
		return
	}
	resp, err := execute(s, ectx)
	if err != nil {
		e.handleExecuteError(ectx, err)
		return
	}
	e.handleExecuteResponse(ectx, resp)
}

func execute(s state.State, ectx *ExecutionContext) (resp *model.ExecutionResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	resp, err = s.Execute(ectx)
	if err == nil && resp == nil {
		err = errors.New("state returned no response")
	}
	return
}

func handleAsync(s state.State, ectx *ExecutionContext, responses map[string]model.NotifyResponse) (resp *model.ExecutionResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	resp, err = s.HandleAsyncResponse(ectx, responses)
	if err == nil && resp == nil {
		err = errors.New("state returned no response")
	}
	return
}

func (e *StateMachineExecutor) handleExecuteResponse(ectx *ExecutionContext, resp *model.ExecutionResponse) {
	ctx := context.Background()
	instance := ectx.instance
	data := e.stateExecutionData(instance, resp)
	instance.PutStateExecutionData(data)
	ops := persistence.UpdateOps{persistence.FIELD_STATE_EXECUTION_MAP}
	if ectx.isContextDirty() {
		ops = append(ops, persistence.FIELD_CONTEXT_ELEMENTS)
	}

	if resp.Async {
		if len(resp.CorrelationIds) == 0 {
			logger.Error("async response without correlation ids", zap.String("instanceId", instance.Uuid), zap.String("state", instance.StateName))
			instance.ErrorMsg = "async response without correlation ids"
			instance.Status = model.ERROR
			instance.EndTs = time.Now().UnixMilli()
			ops = append(ops, persistence.FIELD_STATUS, persistence.FIELD_END_TS, persistence.FIELD_ERROR_MSG)
			if err := e.store.Update(ctx, instance, ops); err != nil {
				logger.Error("error updating instance", zap.String("instanceId", instance.Uuid), zap.Error(err))
			}
			e.record(instance)
			return
		}
		instance.Suspended = true
		ops = append(ops, persistence.FIELD_SUSPENDED)
		if err := e.store.Update(ctx, instance, ops); err != nil {
			logger.Error("error updating instance", zap.String("instanceId", instance.Uuid), zap.Error(err))
			return
		}
		cb := model.CallbackRef{
			Name: RESUME_CALLBACK,
			Params: map[string]string{
				paramAppId:      instance.AppId,
				paramInstanceId: instance.Uuid,
			},
		}
		if _, err := e.coordinator.WaitForAll(ctx, cb, resp.CorrelationIds...); err != nil {
			e.handleExecuteError(ectx, err)
			return
		}
		e.spawn(ectx, resp.SpawnInstances)
		return
	}

	if err := e.store.Update(ctx, instance, ops); err != nil {
		logger.Error("error updating instance", zap.String("instanceId", instance.Uuid), zap.Error(err))
		return
	}
	e.spawn(ectx, resp.SpawnInstances)
	if resp.Status == model.SUCCESS {
		e.successTransition(ectx)
		return
	}
	msg := resp.ErrorMsg
	if len(msg) == 0 && resp.StateExecutionData != nil {
		msg = resp.StateExecutionData.ErrorMsg
	}
	var cause error
	if len(msg) > 0 {
		cause = errors.New(msg)
	}
	e.failedTransition(ectx, cause)
}

func (e *StateMachineExecutor) stateExecutionData(instance *model.StateExecutionInstance, resp *model.ExecutionResponse) model.StateExecutionData {
	var data model.StateExecutionData
	if resp.StateExecutionData != nil {
		data = *resp.StateExecutionData
	}
	data.StateName = instance.StateName
	data.StateType = instance.StateType
	data.StartTs = instance.StartTs
	if len(data.Status) == 0 {
		data.Status = resp.Status
	}
	if len(data.CorrelationIds) == 0 {
		data.CorrelationIds = resp.CorrelationIds
	}
	if prev, ok := instance.StateExecutionMap[instance.StateName]; ok && len(data.CorrelationIds) == 0 {
		data.CorrelationIds = prev.CorrelationIds
	}
	if len(data.ErrorMsg) == 0 {
		data.ErrorMsg = resp.ErrorMsg
	}
	if !resp.Async {
		data.EndTs = time.Now().UnixMilli()
	}
	return data
}

// spawn starts children as independent executions owned by the parent.
func (e *StateMachineExecutor) spawn(ectx *ExecutionContext, children []*model.StateExecutionInstance) {
	parent := ectx.instance
	for _, child := range children {
		child.AppId = parent.AppId
		child.ExecutionUuid = parent.ExecutionUuid
		child.StateMachineId = parent.StateMachineId
		if len(child.ParentInstanceId) == 0 {
			child.ParentInstanceId = parent.Uuid
		}
		child.Uuid = ""
		child.Callback = nil
		if _, err := e.Execute(context.Background(), ectx.stateMachine, child); err != nil {
			logger.Error("error spawning instance", zap.String("parent", parent.Uuid), zap.String("state", child.StateName), zap.Error(err))
		}
	}
}

func (e *StateMachineExecutor) handleExecuteError(ectx *ExecutionContext, err error) {
	instance := ectx.instance
	fault := ExecutionFault{State: instance.StateName, Err: err}
	logger.Error("state execution failed", zap.String("instanceId", instance.Uuid), zap.String("state", instance.StateName), zap.Error(err))
	instance.PutStateExecutionData(model.StateExecutionData{
		StateName: instance.StateName,
		StateType: instance.StateType,
		Status:    model.FAILED,
		StartTs:   instance.StartTs,
		EndTs:     time.Now().UnixMilli(),
		ErrorMsg:  err.Error(),
	})
	if err := e.store.Update(context.Background(), instance, persistence.UpdateOps{persistence.FIELD_STATE_EXECUTION_MAP}); err != nil {
		logger.Error("error updating instance", zap.String("instanceId", instance.Uuid), zap.Error(err))
	}
	e.failedTransition(ectx, fault)
}

func (e *StateMachineExecutor) successTransition(ectx *ExecutionContext) {
	if err := e.updateStatus(ectx, model.SUCCESS, ""); err != nil {
		logger.Error("transition rejected", zap.Error(err))
		return
	}
	next, ok := ectx.stateMachine.SuccessTransition(ectx.instance.StateName)
	if !ok {
		e.finish(ectx, model.SUCCESS, nil)
		return
	}
	e.next(ectx, next)
}

func (e *StateMachineExecutor) failedTransition(ectx *ExecutionContext, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := e.updateStatus(ectx, model.FAILED, msg); err != nil {
		logger.Error("transition rejected", zap.Error(err))
		return
	}
	next, ok := ectx.stateMachine.FailureTransition(ectx.instance.StateName)
	if !ok {
		e.finish(ectx, model.FAILED, cause)
		return
	}
	e.next(ectx, next)
}

func (e *StateMachineExecutor) next(ectx *ExecutionContext, next state.State) {
	clone := ectx.instance.CloneForTransition(next.Name())
	clone.StateType = string(next.Type())
	if _, err := e.Execute(context.Background(), ectx.stateMachine, clone); err != nil {
		logger.Error("error executing next state", zap.String("from", ectx.instance.StateName), zap.String("to", next.Name()), zap.Error(err))
	}
}

func (e *StateMachineExecutor) updateStatus(ectx *ExecutionContext, status model.ExecutionStatus, msg string) error {
	instance := ectx.instance
	if instance.Status.IsFinal() {
		return TransitionInvariantViolation{State: instance.StateName, InstanceId: instance.Uuid}
	}
	instance.Status = status
	instance.EndTs = time.Now().UnixMilli()
	instance.ErrorMsg = msg
	ops := persistence.UpdateOps{persistence.FIELD_STATUS, persistence.FIELD_END_TS, persistence.FIELD_ERROR_MSG}
	if err := e.store.Update(context.Background(), instance, ops); err != nil {
		logger.Error("error updating instance status", zap.String("instanceId", instance.Uuid), zap.Error(err))
	}
	e.record(instance)
	return nil
}

func (e *StateMachineExecutor) record(instance *model.StateExecutionInstance) {
	metrics.ObserveState(instance.StateType, string(instance.Status), instance.StartTs, instance.EndTs)
	if instance.Status == model.SUCCESS {
		var data map[string]any
		if d, ok := instance.StateExecutionMap[instance.StateName]; ok {
			data = d.Data
		}
		analytics.RecordStateSuccess(instance, data)
		return
	}
	analytics.RecordStateFailure(instance, instance.ErrorMsg)
}

// finish ends a chain: children report to their parent's wait, top level
// executions invoke their callback.
func (e *StateMachineExecutor) finish(ectx *ExecutionContext, status model.ExecutionStatus, cause error) {
	instance := ectx.instance
	if len(instance.NotifyId) > 0 {
		resp := model.NotifyResponse{
			CorrelationId: instance.NotifyId,
			Status:        status,
			ErrorMsg:      instance.ErrorMsg,
		}
		if d, ok := instance.StateExecutionMap[instance.StateName]; ok {
			resp.Data = d.Data
		}
		if err := e.coordinator.Notify(context.Background(), resp); err != nil {
			logger.Error("error notifying parent", zap.String("notifyId", instance.NotifyId), zap.Error(err))
		}
		return
	}
	if instance.Callback == nil {
		logger.Info("execution finished without callback", zap.String("executionUuid", instance.ExecutionUuid), zap.String("status", string(status)))
		return
	}
	cb, ok := e.callback(instance.Callback.Name)
	if !ok {
		logger.Error("execution callback not registered", zap.String("callback", instance.Callback.Name))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("execution callback panicked", zap.String("callback", instance.Callback.Name), zap.Any("panic", r))
		}
	}()
	cb.Callback(ectx, status, cause)
}
