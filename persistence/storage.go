package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/stepflow/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

var ErrNotFound = errors.New("not found")

const SEI_PREFIX string = "SEI"
const EXEC_PREFIX string = "EXEC"
const SM_PREFIX string = "SM"
const WAIT_PREFIX string = "WAIT"
const WAITERS_PREFIX string = "WAITERS"
const RESPONSE_PREFIX string = "RESP"
const DEADLINE_KEY string = "DEADLINES"
const MAINTENANCE_KEY string = "MAINTENANCE"

// DEFAULT_RESPONSE_TTL bounds how long a response delivered before any wait
// is kept.
const DEFAULT_RESPONSE_TTL = 24 * time.Hour

// Field names a partial update may touch.
type Field string

const FIELD_STATUS Field = "status"
const FIELD_START_TS Field = "startTs"
const FIELD_END_TS Field = "endTs"
const FIELD_STATE_EXECUTION_MAP Field = "stateExecutionMap"
const FIELD_ERROR_MSG Field = "errorMsg"
const FIELD_SUSPENDED Field = "suspended"
const FIELD_CONTEXT_ELEMENTS Field = "contextElements"

// UpdateOps copies the listed fields from the instance to storage in one
// atomic write.
type UpdateOps []Field

type ExecutionStore interface {
	SaveAndGet(ctx context.Context, instance *model.StateExecutionInstance) (*model.StateExecutionInstance, error)
	Get(ctx context.Context, appId string, instanceId string) (*model.StateExecutionInstance, error)
	Update(ctx context.Context, instance *model.StateExecutionInstance, ops UpdateOps) error
	ListByExecution(ctx context.Context, appId string, executionUuid string) ([]*model.StateExecutionInstance, error)
	// ClaimResume flips suspended from true to false. Only one caller per
	// suspension gets true back.
	ClaimResume(ctx context.Context, appId string, instanceId string) (bool, error)
}

type StateMachineStore interface {
	Save(ctx context.Context, sm *model.StateMachine) error
	Get(ctx context.Context, appId string, id string) (*model.StateMachine, error)
	Delete(ctx context.Context, appId string, id string) error
}

type WaitNotifyStore interface {
	SaveWaitInstance(ctx context.Context, wait *model.WaitInstance) error
	GetWaitInstance(ctx context.Context, waitId string) (*model.WaitInstance, error)
	// ClaimWaitInstance removes the wait instance. Only the caller that
	// actually removed it gets true back. Responses and deadlines of ids no
	// other wait refers to are removed with it, so a later wait on the same
	// id needs a new notify.
	ClaimWaitInstance(ctx context.Context, wait *model.WaitInstance) (bool, error)
	GetWaiters(ctx context.Context, correlationId string) ([]string, error)
	// SaveResponse stores a response. One that no wait refers to expires
	// after the store's response ttl.
	SaveResponse(ctx context.Context, response *model.NotifyResponse) error
	GetResponses(ctx context.Context, correlationIds ...string) (map[string]model.NotifyResponse, error)
	AddDeadline(ctx context.Context, correlationId string, delay time.Duration) error
	PollExpiredDeadlines(ctx context.Context) ([]string, error)
}

type MaintenanceStore interface {
	GetMaintenance(ctx context.Context) (bool, error)
	SetMaintenance(ctx context.Context, on bool) error
}
