package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/util"
)

var _ persistence.ExecutionStore = new(inMemoryExecutionStore)

// inMemoryExecutionStore stores encoded copies so callers never share
// instances with the store.
type inMemoryExecutionStore struct {
	mu         sync.Mutex
	instances  map[string][]byte
	executions map[string][]string
	encDec     util.EncoderDecoder[model.StateExecutionInstance]
}

func NewInMemoryExecutionStore() *inMemoryExecutionStore {
	return &inMemoryExecutionStore{
		instances:  make(map[string][]byte),
		executions: make(map[string][]string),
		encDec:     util.NewJsonEncoderDecoder[model.StateExecutionInstance](),
	}
}

func instanceKey(appId string, id string) string {
	return appId + ":" + id
}

func (s *inMemoryExecutionStore) SaveAndGet(ctx context.Context, instance *model.StateExecutionInstance) (*model.StateExecutionInstance, error) {
	if len(instance.Uuid) == 0 {
		instance.Uuid = uuid.New().String()
	}
	if instance.CreatedAt == 0 {
		instance.CreatedAt = time.Now().UnixMilli()
	}
	if len(instance.Status) == 0 {
		instance.Status = model.NEW
	}
	data, err := s.encDec.Encode(*instance)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	key := instanceKey(instance.AppId, instance.Uuid)
	if _, ok := s.instances[key]; !ok {
		execKey := instanceKey(instance.AppId, instance.ExecutionUuid)
		s.executions[execKey] = append(s.executions[execKey], instance.Uuid)
	}
	s.instances[key] = data
	s.mu.Unlock()
	return s.encDec.Decode(data)
}

func (s *inMemoryExecutionStore) Get(ctx context.Context, appId string, instanceId string) (*model.StateExecutionInstance, error) {
	s.mu.Lock()
	data, ok := s.instances[instanceKey(appId, instanceId)]
	s.mu.Unlock()
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return s.encDec.Decode(data)
}

func (s *inMemoryExecutionStore) Update(ctx context.Context, instance *model.StateExecutionInstance, ops persistence.UpdateOps) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := instanceKey(instance.AppId, instance.Uuid)
	data, ok := s.instances[key]
	if !ok {
		return persistence.ErrNotFound
	}
	stored, err := s.encDec.Decode(data)
	if err != nil {
		return err
	}
	for _, f := range ops {
		switch f {
		case persistence.FIELD_STATUS:
			stored.Status = instance.Status
		case persistence.FIELD_START_TS:
			stored.StartTs = instance.StartTs
		case persistence.FIELD_END_TS:
			stored.EndTs = instance.EndTs
		case persistence.FIELD_STATE_EXECUTION_MAP:
			stored.StateExecutionMap = instance.StateExecutionMap
		case persistence.FIELD_ERROR_MSG:
			stored.ErrorMsg = instance.ErrorMsg
		case persistence.FIELD_SUSPENDED:
			stored.Suspended = instance.Suspended
		case persistence.FIELD_CONTEXT_ELEMENTS:
			stored.ContextElements = instance.ContextElements
		}
	}
	encoded, err := s.encDec.Encode(*stored)
	if err != nil {
		return err
	}
	s.instances[key] = encoded
	return nil
}

func (s *inMemoryExecutionStore) ListByExecution(ctx context.Context, appId string, executionUuid string) ([]*model.StateExecutionInstance, error) {
	s.mu.Lock()
	ids := append([]string{}, s.executions[instanceKey(appId, executionUuid)]...)
	s.mu.Unlock()
	out := make([]*model.StateExecutionInstance, 0, len(ids))
	for _, id := range ids {
		inst, err := s.Get(ctx, appId, id)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (s *inMemoryExecutionStore) ClaimResume(ctx context.Context, appId string, instanceId string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := instanceKey(appId, instanceId)
	data, ok := s.instances[key]
	if !ok {
		return false, nil
	}
	stored, err := s.encDec.Decode(data)
	if err != nil {
		return false, err
	}
	if !stored.Suspended {
		return false, nil
	}
	stored.Suspended = false
	encoded, err := s.encDec.Encode(*stored)
	if err != nil {
		return false, err
	}
	s.instances[key] = encoded
	return true, nil
}
