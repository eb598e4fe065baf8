package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/persistence"
	"github.com/mohitkumar/stepflow/util"
)

var _ persistence.StateMachineStore = new(inMemoryStateMachineStore)

type inMemoryStateMachineStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	encDec util.EncoderDecoder[model.StateMachine]
}

func NewInMemoryStateMachineStore() *inMemoryStateMachineStore {
	return &inMemoryStateMachineStore{
		data:   make(map[string][]byte),
		encDec: util.NewJsonEncoderDecoder[model.StateMachine](),
	}
}

func (s *inMemoryStateMachineStore) Save(ctx context.Context, sm *model.StateMachine) error {
	if len(sm.Uuid) == 0 {
		sm.Uuid = uuid.New().String()
	}
	data, err := s.encDec.Encode(*sm)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[instanceKey(sm.AppId, sm.Uuid)] = data
	s.mu.Unlock()
	return nil
}

func (s *inMemoryStateMachineStore) Get(ctx context.Context, appId string, id string) (*model.StateMachine, error) {
	s.mu.RLock()
	data, ok := s.data[instanceKey(appId, id)]
	s.mu.RUnlock()
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return s.encDec.Decode(data)
}

func (s *inMemoryStateMachineStore) Delete(ctx context.Context, appId string, id string) error {
	s.mu.Lock()
	delete(s.data, instanceKey(appId, id))
	s.mu.Unlock()
	return nil
}
